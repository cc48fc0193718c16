// Package pipeline runs the ETL that feeds the forecaster: extract hourly
// load from an adapter, aggregate it to daily means, replace the daily_load
// table, and train the model artifact the forecaster loads at startup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HatiCode/loadcast/pkg/adapters"
	"github.com/HatiCode/loadcast/pkg/forecast"
	"github.com/HatiCode/loadcast/pkg/models"
	"github.com/HatiCode/loadcast/pkg/storage"
)

// Step names one stage of a run.
type Step string

const (
	StepExtract   Step = "extract"
	StepTransform Step = "transform"
	StepLoad      Step = "load"
	StepTrain     Step = "train"
)

// AllSteps is the full run in execution order.
var AllSteps = []Step{StepExtract, StepTransform, StepLoad, StepTrain}

// ParseSteps parses a comma-separated step list. The result is in execution
// order regardless of input order. "all" selects every step.
func ParseSteps(s string) ([]Step, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return AllSteps, nil
	}

	want := make(map[Step]bool)
	for _, part := range strings.Split(s, ",") {
		step := Step(strings.ToLower(strings.TrimSpace(part)))
		switch step {
		case StepExtract, StepTransform, StepLoad, StepTrain:
			want[step] = true
		default:
			return nil, fmt.Errorf("unknown step %q (must be extract, transform, load, or train)", part)
		}
	}

	var steps []Step
	for _, step := range AllSteps {
		if want[step] {
			steps = append(steps, step)
		}
	}
	if want[StepTransform] && !want[StepExtract] {
		return nil, errors.New("step transform needs extract")
	}
	if want[StepLoad] && !want[StepTransform] {
		return nil, errors.New("step load needs transform")
	}
	return steps, nil
}

// Pipeline holds the collaborators of a run. Repo may be nil when neither
// load nor a stand-alone train is requested.
type Pipeline struct {
	Source adapters.Adapter
	Window adapters.Window

	// ExtractTimeout bounds the extract step; zero means no limit.
	ExtractTimeout time.Duration

	Repo         storage.DailyLoadRepository
	Spec         models.Spec
	ArtifactPath string
	Logger       *slog.Logger

	now func() time.Time
}

// Report summarizes a run.
type Report struct {
	Readings  int
	Days      int
	Loaded    bool
	TrainedOn int
	Artifact  string
	Duration  time.Duration
}

// Run executes steps in order. A step failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, steps []Step) (Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	start := time.Now()
	var (
		report   Report
		readings []adapters.Reading
		daily    []forecast.DailyLoad
	)

	for _, step := range steps {
		stepStart := time.Now()
		log := logger.With("step", string(step))

		var err error
		switch step {
		case StepExtract:
			readings, err = p.extract(ctx)
			report.Readings = len(readings)
			log.Info("extracted hourly load", "source", p.sourceName(), "readings", len(readings))

		case StepTransform:
			daily = HourlyToDaily(readings)
			report.Days = len(daily)
			log.Info("aggregated to daily load", "days", len(daily))

		case StepLoad:
			err = p.load(ctx, daily)
			report.Loaded = err == nil
			if err == nil {
				log.Info("daily load stored", "rows", len(daily))
			}

		case StepTrain:
			var trained int
			trained, err = p.train(ctx, daily, now())
			report.TrainedOn = trained
			if err == nil {
				report.Artifact = p.ArtifactPath
				log.Info("model artifact written", "model", p.Spec.Kind, "path", p.ArtifactPath, "history_days", trained)
			}

		default:
			err = fmt.Errorf("unknown step %q", step)
		}

		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("%s: %w", step, err)
		}
		log.Debug("step finished", "duration_ms", time.Since(stepStart).Milliseconds())
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (p *Pipeline) sourceName() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.Name()
}

func (p *Pipeline) extract(ctx context.Context) ([]adapters.Reading, error) {
	if p.Source == nil {
		return nil, errors.New("no source configured")
	}
	if p.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ExtractTimeout)
		defer cancel()
	}
	readings, err := p.Source.Collect(ctx, p.Window)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("source %s returned no readings", p.Source.Name())
	}
	return readings, nil
}

func (p *Pipeline) load(ctx context.Context, daily []forecast.DailyLoad) error {
	if p.Repo == nil {
		return errors.New("no daily load repository configured")
	}
	if len(daily) == 0 {
		return errors.New("nothing to load")
	}
	return p.Repo.ReplaceDailyLoad(ctx, daily)
}

// train fits the configured model on the daily history and writes the
// artifact. The history is read back from the repository when one is set,
// so a train-only run uses what a previous load stored.
func (p *Pipeline) train(ctx context.Context, daily []forecast.DailyLoad, trainedAt time.Time) (int, error) {
	if p.ArtifactPath == "" {
		return 0, errors.New("no artifact path configured")
	}

	history := daily
	if p.Repo != nil {
		stored, err := p.Repo.ListDailyLoad(ctx)
		if err != nil {
			return 0, fmt.Errorf("read daily load: %w", err)
		}
		history = stored
	}
	if len(history) == 0 {
		return 0, errors.New("no daily load history to train on")
	}

	model, err := models.New(p.Spec)
	if err != nil {
		return 0, err
	}
	// fit once here so a bad artifact never reaches the forecaster
	if err := model.Train(ctx, models.BuildFeatures(history)); err != nil {
		return 0, fmt.Errorf("train %s: %w", model.Name(), err)
	}

	artifact := &models.Artifact{Spec: p.Spec, TrainedAt: trainedAt, History: history}
	if err := models.WriteArtifact(p.ArtifactPath, artifact); err != nil {
		return 0, err
	}
	return len(history), nil
}
