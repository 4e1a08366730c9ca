package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/types"
)

// Report is the structured JSON report written by --report.
type Report struct {
	BuildID    string            `json:"build_id,omitempty"`
	ProjectID  string            `json:"project_id"`
	AccountID  string            `json:"account_id"`
	Attempt    int               `json:"attempt"`
	Outcome    Outcome           `json:"outcome"`
	Status     types.BuildStatus `json:"status,omitempty"`
	Message    string            `json:"message"`
	ExitCode   int               `json:"exit_code"`
	DurationMs int64             `json:"duration_ms"`
	URL        string            `json:"url,omitempty"`

	Archive      *ReportArchive      `json:"archive,omitempty"`
	Upload       *ReportUpload       `json:"upload,omitempty"`
	Advisories   []types.Advisory    `json:"advisories,omitempty"`
	ErrorContext *types.ErrorContext `json:"error_context,omitempty"`
	Metrics      *metrics.Snapshot   `json:"metrics"`
}

// ReportArchive describes the uploaded archive.
type ReportArchive struct {
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
	Files     int    `json:"files"`
	Retained  string `json:"retained,omitempty"`
}

// ReportUpload describes the upload attempts.
type ReportUpload struct {
	Attempts  int    `json:"attempts"`
	Transport string `json:"transport,omitempty"`
}

// BuildReport composes a Report from a Result. exitCode is the process
// exit code that will be returned to the caller.
func BuildReport(res *Result, exitCode int) *Report {
	snap := res.Metrics
	report := &Report{
		BuildID:    res.BuildID,
		ProjectID:  res.Meta.ProjectID,
		AccountID:  res.Meta.AccountID,
		Attempt:    res.Meta.Attempt,
		Outcome:    res.Outcome,
		Status:     res.Status(),
		Message:    res.Message(),
		ExitCode:   exitCode,
		DurationMs: res.Duration.Milliseconds(),
		Advisories: res.Advisories,
		Metrics:    &snap,
	}
	if res.Archive != nil {
		report.Archive = &ReportArchive{
			Checksum:  res.Archive.Checksum,
			SizeBytes: res.Archive.SizeBytes,
			Files:     res.Archive.Files,
			Retained:  res.RetainedArchive,
		}
	}
	if res.Attempts > 0 {
		report.Upload = &ReportUpload{Attempts: res.Attempts, Transport: res.Transport}
	}
	if res.Record != nil {
		report.URL = res.Record.URL
		report.ErrorContext = res.Record.ErrorContext
	}
	return report
}

// WriteReport writes the report as JSON to path. "-" writes to stderr.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeReportTo(report *Report, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
