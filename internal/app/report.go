package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/docpipe/internal/pipeline"
)

// RunSummary is the serialisable form of a pipeline report.
type RunSummary struct {
	ID         string            `yaml:"id"`
	Source     string            `yaml:"source"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Duration   string            `yaml:"duration"`
	Succeeded  int               `yaml:"succeeded"`
	Failed     int               `yaml:"failed"`
	Error      string            `yaml:"error,omitempty"`
	Documents  []DocumentSummary `yaml:"documents"`
}

// DocumentSummary is the outcome of one document.
type DocumentSummary struct {
	Document    string   `yaml:"document"`
	Stages      []string `yaml:"stages,omitempty"`
	Duration    string   `yaml:"duration"`
	FailedStage string   `yaml:"failed_stage,omitempty"`
	Error       string   `yaml:"error,omitempty"`
}

// Summarize converts a report for output.
func Summarize(r *pipeline.Report) RunSummary {
	s := RunSummary{
		ID:         r.ID,
		Source:     r.Source,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Duration:   r.Duration().Round(time.Millisecond).String(),
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Documents:  make([]DocumentSummary, 0, len(r.Documents)),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	for _, d := range r.Documents {
		ds := DocumentSummary{
			Document:    d.Document,
			Duration:    d.Duration.Round(time.Microsecond).String(),
			FailedStage: d.FailedStage,
		}
		for _, st := range d.Stages {
			ds.Stages = append(ds.Stages, st.Stage)
		}
		if d.Err != nil {
			ds.Error = d.Err.Error()
		}
		s.Documents = append(s.Documents, ds)
	}
	return s
}

// WriteReport writes the summaries of reports to path as YAML.
func WriteReport(path string, reports []*pipeline.Report) error {
	runs := make([]RunSummary, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			runs = append(runs, Summarize(r))
		}
	}
	data, err := yaml.Marshal(map[string]any{"runs": runs})
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
