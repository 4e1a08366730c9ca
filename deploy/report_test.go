package deploy

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
)

func newTestResult() *Result {
	return &Result{
		Meta:    types.DeploymentMeta{ProjectID: "proj-a", AccountID: "acct-1", Attempt: 1},
		BuildID: "b-1",
		Record: &types.BuildRecord{
			BuildID: "b-1",
			Status:  types.StatusBuilt,
			URL:     "https://app.example.com",
		},
		Archive:   &types.LocalArchive{Path: "/tmp/a.hoist.tar.gz", SizeBytes: 4096, Checksum: "sha256:abc", Files: 7},
		Outcome:   OutcomeSucceeded,
		Attempts:  2,
		Transport: "http",
		Duration:  95 * time.Second,
		Metrics: metrics.Snapshot{
			APIRequests:    9,
			UploadAttempts: 2,
			Polls:          4,
			ProjectID:      "proj-a",
			BuildID:        "b-1",
		},
	}
}

func TestBuildReport_Success(t *testing.T) {
	report := BuildReport(newTestResult(), ExitCodeSuccess)

	if report.BuildID != "b-1" || report.ProjectID != "proj-a" {
		t.Errorf("ids = %q/%q", report.BuildID, report.ProjectID)
	}
	if report.Outcome != OutcomeSucceeded {
		t.Errorf("Outcome = %q", report.Outcome)
	}
	if report.Status != types.StatusBuilt {
		t.Errorf("Status = %q", report.Status)
	}
	if report.DurationMs != 95000 {
		t.Errorf("DurationMs = %d", report.DurationMs)
	}
	if report.Archive == nil || report.Archive.Files != 7 || report.Archive.Checksum != "sha256:abc" {
		t.Errorf("Archive = %+v", report.Archive)
	}
	if report.Upload == nil || report.Upload.Attempts != 2 || report.Upload.Transport != "http" {
		t.Errorf("Upload = %+v", report.Upload)
	}
	if report.URL != "https://app.example.com" {
		t.Errorf("URL = %q", report.URL)
	}
	if report.Metrics == nil || report.Metrics.Polls != 4 {
		t.Errorf("Metrics = %+v", report.Metrics)
	}
	if report.Message != "build b-1 deployed" {
		t.Errorf("Message = %q", report.Message)
	}
}

func TestBuildReport_Failure(t *testing.T) {
	code := 127
	res := newTestResult()
	res.Outcome = OutcomeFailed
	res.Record.Status = types.StatusFailed
	res.Record.ErrorContext = &types.ErrorContext{Stage: types.StageBuild, ExitCode: &code}
	res.Err = &track.BuildFailedError{Record: res.Record}

	report := BuildReport(res, ExitCodeBuildFailed)
	if report.ExitCode != ExitCodeBuildFailed {
		t.Errorf("ExitCode = %d", report.ExitCode)
	}
	if report.ErrorContext == nil || report.ErrorContext.Stage != types.StageBuild {
		t.Errorf("ErrorContext = %+v", report.ErrorContext)
	}
	if report.Message == "" {
		t.Error("Message must describe the failure")
	}
}

func TestBuildReport_NoArchive(t *testing.T) {
	res := &Result{Meta: types.DeploymentMeta{ProjectID: "p", AccountID: "a", Attempt: 1}, Outcome: OutcomeFailed}
	report := BuildReport(res, ExitCodeError)
	if report.Archive != nil || report.Upload != nil {
		t.Errorf("expected no archive/upload sections, got %+v / %+v", report.Archive, report.Upload)
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport(BuildReport(newTestResult(), 0), path); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"build_id", "project_id", "outcome", "exit_code", "duration_ms", "archive", "metrics"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestWriteReport_EmptyPath(t *testing.T) {
	if err := WriteReport(BuildReport(newTestResult(), 0), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWriteReportTo_TrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReportTo(BuildReport(newTestResult(), 0), &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("}\n")) {
		t.Error("report must end with a newline")
	}
}
