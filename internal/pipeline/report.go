package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/lucasnoah/rvstage/internal/staging"
)

// Report is the JSON form of a Result, with errors rendered as text.
type Report struct {
	*Result
	Error  string        `json:"error,omitempty"`
	Stages []stageReport `json:"stages"`
}

type stageReport struct {
	StageReport
	Error string `json:"error,omitempty"`
}

// NewReport builds the report for res.
func NewReport(res *Result) *Report {
	r := &Report{Result: res, Stages: make([]stageReport, len(res.Stages))}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	for i, s := range res.Stages {
		r.Stages[i] = stageReport{StageReport: s}
		if s.Err != nil {
			r.Stages[i].Error = s.Err.Error()
		}
	}
	return r
}

// WriteReport writes the report for res to path as indented JSON. The file
// is replaced atomically so a reader never sees a partial report.
func WriteReport(path string, res *Result) error {
	data, err := json.MarshalIndent(NewReport(res), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := staging.Ensure(filepath.Dir(path)); err != nil {
		return err
	}
	return staging.WriteFile(path, bytes.NewReader(append(data, '\n')), 0o644)
}
