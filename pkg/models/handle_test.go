package models

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

func writeTestArtifact(t *testing.T, spec Spec, days int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	err := WriteArtifact(path, &Artifact{
		Spec:      spec,
		TrainedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		History:   syntheticDaily(days, 50000, 10, true),
	})
	if err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	return path
}

func TestLoadHandle_MissingFile(t *testing.T) {
	h := LoadHandle(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	if h == nil {
		t.Fatal("LoadHandle() returned nil")
	}
	if h.Available() {
		t.Error("Available() = true for missing artifact")
	}
	if h.Err() == nil {
		t.Error("Err() = nil, want load cause")
	}

	_, err := h.Predict(context.Background(), 7)
	if !errors.Is(err, forecast.ErrModelUnavailable) {
		t.Errorf("Predict() error = %v, want ErrModelUnavailable", err)
	}
}

func TestLoadHandle_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := LoadHandle(context.Background(), path, nil)
	if h.Available() {
		t.Error("Available() = true for corrupt artifact")
	}
}

func TestLoadHandle_Predict(t *testing.T) {
	path := writeTestArtifact(t, Spec{Kind: KindBaseline, IntervalWidth: 0.8}, 70)

	h := LoadHandle(context.Background(), path, nil)
	if !h.Available() {
		t.Fatalf("handle unavailable: %v", h.Err())
	}
	if h.Name() != "baseline" {
		t.Errorf("Name() = %q, want baseline", h.Name())
	}

	origin := historyStart.AddDate(0, 0, 69)
	if !h.Origin().Equal(origin) {
		t.Errorf("Origin() = %v, want %v", h.Origin(), origin)
	}

	points, err := h.Predict(context.Background(), 7)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("len(points) = %d, want 7", len(points))
	}
	for i, p := range points {
		want := origin.AddDate(0, 0, i+1)
		if !p.Timestamp.Equal(want) {
			t.Errorf("points[%d].Timestamp = %v, want %v", i, p.Timestamp, want)
		}
		if p.Lower > p.Predicted || p.Upper < p.Predicted {
			t.Errorf("points[%d] = %+v, prediction outside bounds", i, p)
		}
	}

	again, _ := h.Predict(context.Background(), 7)
	for i := range points {
		if points[i] != again[i] {
			t.Errorf("Predict() not deterministic at %d: %+v vs %+v", i, points[i], again[i])
		}
	}
}

func TestHandle_Predict_InvalidDays(t *testing.T) {
	path := writeTestArtifact(t, Spec{Kind: KindSARIMA, SP: 1, SD: 1, SQ: 1, S: 7}, 90)
	h := LoadHandle(context.Background(), path, nil)
	if !h.Available() {
		t.Fatalf("handle unavailable: %v", h.Err())
	}

	for _, days := range []int{0, -3, 366} {
		_, err := h.Predict(context.Background(), days)
		if !forecast.IsValidation(err) {
			t.Errorf("Predict(%d) error = %v, want validation error", days, err)
		}
	}
}

func TestHandle_Unavailable(t *testing.T) {
	h := Unavailable(nil)
	if h.Available() || h.Name() != "unavailable" {
		t.Errorf("Unavailable(nil): Available=%v Name=%q", h.Available(), h.Name())
	}
	if !errors.Is(h.Err(), forecast.ErrModelUnavailable) {
		t.Errorf("Err() = %v, want ErrModelUnavailable", h.Err())
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	spec := Spec{Kind: KindARIMA, P: 2, D: 1, Q: 1, IntervalWidth: 0.95}
	path := writeTestArtifact(t, spec, 30)

	a, err := ReadArtifact(path)
	if err != nil {
		t.Fatalf("ReadArtifact() error = %v", err)
	}
	if a.Spec != spec {
		t.Errorf("Spec = %+v, want %+v", a.Spec, spec)
	}
	if len(a.History) != 30 {
		t.Errorf("len(History) = %d, want 30", len(a.History))
	}
	if !a.History[0].Day.Equal(historyStart) {
		t.Errorf("History[0].Day = %v, want %v", a.History[0].Day, historyStart)
	}
}

func TestReadArtifact_InvalidSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	data := `{"spec":{"model":"prophet"},"history":[{"ds":"2024-01-01","y":1}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadArtifact(path); err == nil {
		t.Fatal("expected error for unknown model kind")
	}
}
