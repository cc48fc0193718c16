package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// Artifact is the trained model file written by the pipeline and loaded by
// the forecaster. It carries the model spec and the daily history the model
// is fit on, so loading it reproduces the same fit.
type Artifact struct {
	Spec      Spec
	TrainedAt time.Time
	History   []forecast.DailyLoad
}

type artifactFile struct {
	Spec      Spec              `json:"spec"`
	TrainedAt time.Time         `json:"trained_at"`
	History   []artifactHistory `json:"history"`
}

type artifactHistory struct {
	Date  string  `json:"ds"`
	Value float64 `json:"y"`
}

// Origin returns the last training day, from which forecast dates are counted.
func (a *Artifact) Origin() time.Time {
	var last time.Time
	for _, h := range a.History {
		if h.Day.After(last) {
			last = h.Day
		}
	}
	return forecast.Day(last)
}

// WriteArtifact writes a to path atomically.
func WriteArtifact(path string, a *Artifact) error {
	if len(a.History) == 0 {
		return errors.New("artifact history is empty")
	}

	file := artifactFile{
		Spec:      a.Spec,
		TrainedAt: a.TrainedAt.UTC(),
		History:   make([]artifactHistory, len(a.History)),
	}
	for i, h := range a.History {
		file.History[i] = artifactHistory{Date: forecast.Day(h.Day).Format(forecast.DateLayout), Value: h.AvgLoadMW}
	}
	sort.Slice(file.History, func(i, j int) bool { return file.History[i].Date < file.History[j].Date })

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads and validates the artifact at path.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := file.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("artifact spec: %w", err)
	}
	if len(file.History) == 0 {
		return nil, errors.New("artifact history is empty")
	}

	a := &Artifact{
		Spec:      file.Spec,
		TrainedAt: file.TrainedAt,
		History:   make([]forecast.DailyLoad, len(file.History)),
	}
	for i, h := range file.History {
		day, err := forecast.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("artifact history row %d: %w", i, err)
		}
		a.History[i] = forecast.DailyLoad{Day: day, AvgLoadMW: h.Value}
	}
	return a, nil
}
