package models

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// Handle is a trained, read-only model ready to serve forecasts.
// A Handle that failed to load stays usable: every Predict returns
// forecast.ErrModelUnavailable.
type Handle struct {
	model  Model
	origin time.Time
	err    error
}

// LoadHandle reads the artifact at path and fits its model. It never
// returns nil; on failure the handle is unavailable and Err reports why.
func LoadHandle(ctx context.Context, path string, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}

	artifact, err := ReadArtifact(path)
	if err != nil {
		logger.Error("failed to load model artifact", "path", path, "error", err)
		return Unavailable(err)
	}

	h, err := NewHandle(ctx, artifact)
	if err != nil {
		logger.Error("failed to fit model from artifact", "path", path, "error", err)
		return Unavailable(err)
	}

	logger.Info("model loaded",
		"path", path,
		"model", h.Name(),
		"origin", h.origin.Format(forecast.DateLayout),
		"trained_at", artifact.TrainedAt,
		"history_days", len(artifact.History),
	)
	return h
}

// NewHandle builds the model described by artifact and trains it on the artifact history.
func NewHandle(ctx context.Context, artifact *Artifact) (*Handle, error) {
	model, err := New(artifact.Spec)
	if err != nil {
		return nil, err
	}
	if err := model.Train(ctx, BuildFeatures(artifact.History)); err != nil {
		return nil, fmt.Errorf("train %s: %w", model.Name(), err)
	}
	return &Handle{model: model, origin: artifact.Origin()}, nil
}

// NewHandleFromModel wraps an already trained model whose last training day is origin.
func NewHandleFromModel(model Model, origin time.Time) *Handle {
	return &Handle{model: model, origin: forecast.Day(origin)}
}

// Unavailable returns a handle whose every call fails with forecast.ErrModelUnavailable.
func Unavailable(cause error) *Handle {
	if cause == nil {
		cause = forecast.ErrModelUnavailable
	}
	return &Handle{err: cause}
}

// Available reports whether the handle can serve predictions.
func (h *Handle) Available() bool {
	return h != nil && h.err == nil && h.model != nil
}

// Err returns the load failure, or nil for an available handle.
func (h *Handle) Err() error {
	if h == nil {
		return forecast.ErrModelUnavailable
	}
	return h.err
}

// Name returns the model name, or "unavailable".
func (h *Handle) Name() string {
	if !h.Available() {
		return "unavailable"
	}
	return h.model.Name()
}

// Origin returns the last training day.
func (h *Handle) Origin() time.Time {
	if h == nil {
		return time.Time{}
	}
	return h.origin
}

// Predict returns days forecast points dated origin+1 .. origin+days.
func (h *Handle) Predict(ctx context.Context, days int) ([]forecast.Point, error) {
	if !h.Available() {
		return nil, forecast.ErrModelUnavailable
	}
	if days < forecast.MinHorizonDays || days > forecast.MaxHorizonDays {
		return nil, &forecast.ValidationError{
			Field:  "days",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", forecast.MinHorizonDays, forecast.MaxHorizonDays, days),
		}
	}

	fc, err := h.model.Predict(ctx, days)
	if err != nil {
		return nil, err
	}
	if len(fc.Values) != days || len(fc.Lower) != days || len(fc.Upper) != days {
		return nil, fmt.Errorf("%s returned %d values for %d days", h.model.Name(), len(fc.Values), days)
	}

	points := make([]forecast.Point, days)
	for i := range points {
		points[i] = forecast.Point{
			Timestamp: h.origin.AddDate(0, 0, i+1),
			Predicted: fc.Values[i],
			Lower:     fc.Lower[i],
			Upper:     fc.Upper[i],
		}
	}
	return points, nil
}
