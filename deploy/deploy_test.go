package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/archive"
	"github.com/pithecene-io/hoist/history"
	"github.com/pithecene-io/hoist/journal"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/notify"
	"github.com/pithecene-io/hoist/retry"
	"github.com/pithecene-io/hoist/toolchain"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
	"github.com/pithecene-io/hoist/upload"
)

// fakeAPI scripts init responses and the status sequence seen by polls.
type fakeAPI struct {
	mu sync.Mutex

	initErrs   []error
	initCalls  int
	advisories []types.Advisory

	completeErr   error
	completeCalls int

	statuses []types.BuildStatus
	polls    int
	failed   *types.BuildRecord
	onPoll   func(n int)
}

func (f *fakeAPI) Init(_ context.Context, req types.InitRequest) (*types.InitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initCalls <= len(f.initErrs) && f.initErrs[f.initCalls-1] != nil {
		return nil, f.initErrs[f.initCalls-1]
	}
	if !strings.HasPrefix(req.Checksum, "sha256:") {
		return nil, errors.New("bad checksum")
	}
	id := "b-" + string(rune('0'+f.initCalls))
	return &types.InitResponse{
		BuildID:    id,
		UploadURL:  "https://uploads.example.com/" + id,
		Advisories: f.advisories,
	}, nil
}

func (f *fakeAPI) Complete(_ context.Context, buildID string) (*types.CompleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &types.CompleteResponse{BuildID: buildID, Status: types.StatusQueued}, nil
}

func (f *fakeAPI) GetStatus(_ context.Context, buildID string) (*types.BuildRecord, error) {
	f.mu.Lock()
	n := f.polls
	f.polls++
	hook := f.onPoll
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	i := min(n, len(f.statuses)-1)
	status := f.statuses[i]
	if status == types.StatusFailed && f.failed != nil {
		rec := *f.failed
		rec.BuildID = buildID
		return &rec, nil
	}
	return &types.BuildRecord{BuildID: buildID, Status: status, URL: "https://app.example.com"}, nil
}

func (f *fakeAPI) GetLogs(_ context.Context, buildID string) (*types.LogsResponse, error) {
	return &types.LogsResponse{BuildID: buildID, Logs: []string{"installing", "building"}}, nil
}

func (f *fakeAPI) counts() (inits, completes, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.completeCalls, f.polls
}

// fakeUploader fails with errs in order, then succeeds.
type fakeUploader struct {
	mu           sync.Mutex
	errs         []error
	destinations []string
	existed      []bool
}

func (u *fakeUploader) Upload(_ context.Context, a *types.LocalArchive, dest string, progress upload.ProgressFunc) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, statErr := os.Stat(a.Path)
	u.existed = append(u.existed, statErr == nil)
	u.destinations = append(u.destinations, dest)
	if n := len(u.destinations); n <= len(u.errs) && u.errs[n-1] != nil {
		return u.errs[n-1]
	}
	progress(a.SizeBytes, a.SizeBytes)
	return nil
}

// recordingReporter records every callback.
type recordingReporter struct {
	mu         sync.Mutex
	steps      []Step
	advisories []types.Advisory
	statuses   []types.BuildStatus
	logs       []string
	failed     int
	progress   int
	summaries  []*Result
}

func (r *recordingReporter) Step(step Step, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recordingReporter) Advisory(a types.Advisory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advisories = append(r.advisories, a)
}

func (r *recordingReporter) UploadProgress(_, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func (r *recordingReporter) Summary(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, res)
}

func (r *recordingReporter) StatusChanged(rec *types.BuildRecord, _ types.BuildStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, rec.Status)
}

func (r *recordingReporter) StagesChanged(*types.BuildRecord, time.Duration) {}

func (r *recordingReporter) LogLines(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, lines...)
}

func (r *recordingReporter) BuildFailed(*types.BuildRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *recordingReporter) hasStep(s Step) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.steps {
		if got == s {
			return true
		}
	}
	return false
}

// recordingNotifier collects published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*notify.DeploymentCompletedEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e *notify.DeploymentCompletedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

// fakeBuilder is a LocalBuilder returning a fixed error.
type fakeBuilder struct {
	err   error
	calls int
}

func (b *fakeBuilder) Build(context.Context, toolchain.BuildConfig) (*toolchain.BuildResult, error) {
	b.calls++
	if b.err != nil {
		return &toolchain.BuildResult{ExitCode: 1}, b.err
	}
	return &toolchain.BuildResult{}, nil
}

// countingArchiver wraps a real builder and records the archive path.
type countingArchiver struct {
	inner *archive.Builder
	calls int
	last  *types.LocalArchive
}

func (a *countingArchiver) Build(ctx context.Context, dir string) (*types.LocalArchive, error) {
	a.calls++
	out, err := a.inner.Build(ctx, dir)
	a.last = out
	return out, err
}

type harness struct {
	api       *fakeAPI
	uploader  *fakeUploader
	reporter  *recordingReporter
	archiver  *countingArchiver
	notifier  *recordingNotifier
	journal   *journal.Journal
	history   *history.Store
	collector *metrics.Collector
	cfg       Config
	deps      Deps
}

func fastPolicy() *retry.Policy {
	p := retry.Default()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	return &p
}

func newHarness(t *testing.T, statuses ...types.BuildStatus) *harness {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), ".hoist"))
	if err != nil {
		t.Fatal(err)
	}
	mem := lode.NewMemory()
	hist, err := history.New("hoist", func() (lode.Store, error) { return mem, nil })
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		api:       &fakeAPI{statuses: statuses},
		uploader:  &fakeUploader{},
		reporter:  &recordingReporter{},
		archiver:  &countingArchiver{inner: archive.NewBuilder(archive.Options{OutputDir: t.TempDir()})},
		notifier:  &recordingNotifier{},
		journal:   j,
		history:   hist,
		collector: metrics.NewCollector("proj-a"),
	}
	h.cfg = Config{
		Dir:          dir,
		Meta:         types.DeploymentMeta{ProjectID: "proj-a", AccountID: "acct-1", Attempt: 1},
		UploadPolicy: fastPolicy(),
		Tracking:     track.Config{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second},
		Metrics:      h.collector,
	}
	h.deps = Deps{
		API:       h.api,
		Uploader:  h.uploader,
		Archiver:  h.archiver,
		Reporter:  h.reporter,
		Validator: &PreflightValidator{},
		Journal:   j,
		History:   hist,
		Notifiers: []notify.Notifier{h.notifier},
	}
	return h
}

func (h *harness) execute(t *testing.T, ctx context.Context) (*Result, error) {
	t.Helper()
	o, err := New(h.cfg, h.deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o.Execute(ctx)
}

func (h *harness) assertArchiveRemoved(t *testing.T) {
	t.Helper()
	if h.archiver.last == nil {
		return
	}
	if _, err := os.Stat(h.archiver.last.Path); !os.IsNotExist(err) {
		t.Errorf("archive %s still exists (stat err %v)", h.archiver.last.Path, err)
	}
}

func TestExecute_Success(t *testing.T) {
	h := newHarness(t, types.StatusQueued, types.StatusBuilding, types.StatusBuilt)

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcome != OutcomeSucceeded {
		t.Errorf("Outcome = %q, want succeeded", res.Outcome)
	}
	if res.BuildID != "b-1" {
		t.Errorf("BuildID = %q, want b-1", res.BuildID)
	}
	if res.Status() != types.StatusBuilt {
		t.Errorf("Status = %q, want built", res.Status())
	}
	if got := ExitCode(err); got != ExitCodeSuccess {
		t.Errorf("ExitCode = %d, want 0", got)
	}

	inits, completes, polls := h.api.counts()
	if inits != 1 || completes != 1 || polls != 3 {
		t.Errorf("calls init=%d complete=%d polls=%d, want 1/1/3", inits, completes, polls)
	}
	if len(h.uploader.existed) != 1 || !h.uploader.existed[0] {
		t.Error("archive must exist during upload")
	}
	h.assertArchiveRemoved(t)

	if got := h.reporter.statuses; len(got) != 3 {
		t.Errorf("status renders = %v, want 3", got)
	}
	if len(h.reporter.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(h.reporter.summaries))
	}
	if msg := h.reporter.summaries[0].Message(); !strings.Contains(msg, "b-1") {
		t.Errorf("summary %q does not mention the build id", msg)
	}

	last, err := h.journal.Last("proj-a")
	if err != nil {
		t.Fatalf("journal Last: %v", err)
	}
	if last.Kind != journal.KindFinished || last.Outcome != string(OutcomeSucceeded) {
		t.Errorf("journal last = %+v", last)
	}

	rec, err := h.history.Latest(t.Context(), "proj-a")
	if err != nil {
		t.Fatalf("history Latest: %v", err)
	}
	if rec.BuildID != "b-1" || rec.Outcome != "succeeded" || rec.URL != "https://app.example.com" {
		t.Errorf("history record = %+v", rec)
	}

	if len(h.notifier.events) != 1 || h.notifier.events[0].Outcome != "succeeded" {
		t.Errorf("notifications = %+v", h.notifier.events)
	}

	snap := res.Metrics
	if snap.UploadAttempts != 1 || snap.HistoryWriteSuccess != 1 || snap.NotifySuccess != 1 {
		t.Errorf("metrics = %+v", snap)
	}
	if snap.Outcome != "succeeded" || snap.BuildID != "b-1" {
		t.Errorf("metrics dimensions = %q/%q", snap.Outcome, snap.BuildID)
	}
}

// archiveWatcher records whether the local archive still exists each time
// tracking reports a status.
type archiveWatcher struct {
	*recordingReporter
	archiver *countingArchiver
	present  []bool
}

func (w *archiveWatcher) StatusChanged(rec *types.BuildRecord, prev types.BuildStatus) {
	_, err := os.Stat(w.archiver.last.Path)
	w.present = append(w.present, err == nil)
	w.recordingReporter.StatusChanged(rec, prev)
}

func TestExecute_ArchiveRemovedBeforeTracking(t *testing.T) {
	h := newHarness(t, types.StatusBuilding, types.StatusBuilt)
	w := &archiveWatcher{recordingReporter: h.reporter, archiver: h.archiver}
	h.deps.Reporter = w

	if _, err := h.execute(t, t.Context()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(h.uploader.existed) != 1 || !h.uploader.existed[0] {
		t.Error("archive must exist during upload")
	}
	if len(w.present) == 0 {
		t.Fatal("tracking reported no status")
	}
	for i, present := range w.present {
		if present {
			t.Errorf("archive still on disk at status report %d", i)
		}
	}
}

func TestExecute_UploadRetryReinitializes(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.uploader.errs = []error{&apierr.StatusError{Method: "PUT", Code: 503}}

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	inits, _, _ := h.api.counts()
	if inits != 2 {
		t.Errorf("init calls = %d, want 2", inits)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if res.BuildID != "b-2" {
		t.Errorf("BuildID = %q, want b-2 (fresh init)", res.BuildID)
	}
	if d := h.uploader.destinations; len(d) != 2 || d[0] == d[1] {
		t.Errorf("destinations = %v, want two distinct URLs", d)
	}
}

func TestExecute_UploadNonRetryable(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.uploader.errs = []error{&apierr.StatusError{Method: "PUT", Code: 403, Body: "expired"}}

	res, err := h.execute(t, t.Context())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", res.Outcome)
	}
	if got := ExitCode(err); got != ExitCodeError {
		t.Errorf("ExitCode = %d, want 1", got)
	}
	inits, completes, _ := h.api.counts()
	if inits != 1 || completes != 0 {
		t.Errorf("init=%d complete=%d, want 1/0", inits, completes)
	}
	var ctxErr *apierr.Error
	if !errors.As(err, &ctxErr) {
		t.Errorf("expected contextualized error, got %T", err)
	}
	h.assertArchiveRemoved(t)
}

func TestExecute_InitFailureNotRetriedTwice(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.api.initErrs = []error{&apierr.StatusError{Method: "POST", Code: 500}}

	_, err := h.execute(t, t.Context())
	if !errors.Is(err, apierr.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if inits, _, _ := h.api.counts(); inits != 1 {
		t.Errorf("init calls = %d, want 1", inits)
	}
	if len(h.uploader.destinations) != 0 {
		t.Error("upload must not run after init failure")
	}
	h.assertArchiveRemoved(t)
}

func TestExecute_ValidationStopsEverything(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.cfg.Meta.AccountID = ""

	res, err := h.execute(t, t.Context())
	var ctxErr *apierr.Error
	if !errors.As(err, &ctxErr) || ctxErr.Context != apierr.ContextValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.archiver.calls != 0 {
		t.Error("archive must not be built after validation failure")
	}
	if inits, _, _ := h.api.counts(); inits != 0 {
		t.Error("no remote call may happen after validation failure")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if len(h.notifier.events) != 0 {
		t.Error("no notification without a build id")
	}
	if len(h.reporter.summaries) != 1 {
		t.Error("summary must be reported once")
	}
}

func TestExecute_LocalBuildFailure(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	builder := &fakeBuilder{err: &toolchain.BuildError{Command: "npm run build", ExitCode: 1}}
	h.deps.Builder = builder
	h.cfg.BuildCommand = "npm run build"

	_, err := h.execute(t, t.Context())
	if err == nil || !strings.Contains(err.Error(), "local build failed") {
		t.Fatalf("expected local build error, got %v", err)
	}
	if builder.calls != 1 {
		t.Errorf("builder calls = %d", builder.calls)
	}
	if h.archiver.calls != 0 {
		t.Error("archive must not be built after a failed local build")
	}
	if got := ExitCode(err); got != ExitCodeError {
		t.Errorf("ExitCode = %d, want 1", got)
	}
}

func TestExecute_BuildFailed(t *testing.T) {
	code := 1
	h := newHarness(t, types.StatusQueued, types.StatusBuilding, types.StatusFailed)
	h.api.failed = &types.BuildRecord{
		Status: types.StatusFailed,
		Error:  "npm ERR! missing script: build",
		ErrorContext: &types.ErrorContext{
			Stage:    types.StageBuild,
			SubStage: "install",
			ExitCode: &code,
			Causes:   []string{"missing build script"},
		},
	}

	res, err := h.execute(t, t.Context())
	var failed *track.BuildFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *track.BuildFailedError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "build") {
		t.Errorf("error %q does not name the stage", err)
	}
	if got := ExitCode(err); got != ExitCodeBuildFailed {
		t.Errorf("ExitCode = %d, want 2", got)
	}
	if res.Outcome != OutcomeFailed || res.Status() != types.StatusFailed {
		t.Errorf("Outcome/Status = %q/%q", res.Outcome, res.Status())
	}
	if h.reporter.failed != 1 {
		t.Errorf("BuildFailed renders = %d, want 1", h.reporter.failed)
	}
	rec, err := h.history.Latest(t.Context(), "proj-a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Error == "" {
		t.Error("history record should carry the failure")
	}
}

func TestExecute_RemoteCancelled(t *testing.T) {
	h := newHarness(t, types.StatusQueued, types.StatusCancelled)

	res, err := h.execute(t, t.Context())
	if !errors.Is(err, track.ErrBuildCancelled) {
		t.Fatalf("expected ErrBuildCancelled, got %v", err)
	}
	if got := ExitCode(err); got != ExitCodeBuildFailed {
		t.Errorf("ExitCode = %d, want 2", got)
	}
	if res.Status() != types.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", res.Status())
	}
}

func TestExecute_NoWait(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.cfg.NoWait = true

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcome != OutcomeSubmitted {
		t.Errorf("Outcome = %q, want submitted", res.Outcome)
	}
	if _, _, polls := h.api.counts(); polls != 0 {
		t.Errorf("polls = %d, want 0", polls)
	}
	if h.reporter.hasStep(StepTrack) {
		t.Error("track step must be skipped")
	}
	if res.Status() != types.StatusQueued {
		t.Errorf("Status = %q, want queued from complete", res.Status())
	}
}

func TestExecute_AdvisoriesNeverBlock(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.api.advisories = []types.Advisory{
		{Code: "overage", Message: "usage is 120% of plan", Severity: types.AdvisoryWarning},
	}

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(h.reporter.advisories) != 1 || h.reporter.advisories[0].Code != "overage" {
		t.Errorf("advisories = %+v", h.reporter.advisories)
	}
	if len(res.Advisories) != 1 {
		t.Errorf("result advisories = %d", len(res.Advisories))
	}
}

func TestExecute_InterruptDuringTracking(t *testing.T) {
	h := newHarness(t, types.StatusQueued)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	h.api.onPoll = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	res, err := h.execute(t, ctx)
	if err != nil {
		t.Fatalf("interrupt must not be an error, got %v", err)
	}
	if res.Outcome != OutcomeStopped {
		t.Errorf("Outcome = %q, want stopped", res.Outcome)
	}
	if _, _, polls := h.api.counts(); polls > 2 {
		t.Errorf("polls = %d, want at most 2", polls)
	}
	// Side channels still run after the interrupt.
	if len(h.notifier.events) != 1 {
		t.Errorf("notifications = %d, want 1", len(h.notifier.events))
	}
	h.assertArchiveRemoved(t)
}

func TestExecute_TrackingTimeout(t *testing.T) {
	h := newHarness(t, types.StatusBuilding)
	h.cfg.Tracking.Timeout = 30 * time.Millisecond

	res, err := h.execute(t, t.Context())
	var timeout *track.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *track.TimeoutError, got %v", err)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Errorf("Outcome = %q, want timed_out", res.Outcome)
	}
	if got := ExitCode(err); got != ExitCodeTimeout {
		t.Errorf("ExitCode = %d, want 3", got)
	}
}

func TestExecute_NotifyFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.notifier.err = errors.New("webhook down")

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcome != OutcomeSucceeded {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if res.Metrics.NotifyFailure != 1 {
		t.Errorf("NotifyFailure = %d, want 1", res.Metrics.NotifyFailure)
	}
}

func TestExecute_RetainArchive(t *testing.T) {
	h := newHarness(t, types.StatusBuilt)
	h.cfg.RetainArchive = true

	res, err := h.execute(t, t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasSuffix(res.RetainedArchive, "b-1.hoist.tar.gz") {
		t.Errorf("RetainedArchive = %q", res.RetainedArchive)
	}
	h.assertArchiveRemoved(t)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"stopped", track.ErrTrackingStopped, ExitCodeSuccess},
		{"build failed", &track.BuildFailedError{}, ExitCodeBuildFailed},
		{"cancelled", track.ErrBuildCancelled, ExitCodeBuildFailed},
		{"timeout", &track.TimeoutError{BuildID: "b"}, ExitCodeTimeout},
		{"validation", apierr.Validation("bad"), ExitCodeError},
		{"other", errors.New("boom"), ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTrackingError(t *testing.T) {
	failed := &track.BuildFailedError{Record: &types.BuildRecord{BuildID: "b", Status: types.StatusFailed}}
	timeout := &track.TimeoutError{BuildID: "b"}

	tests := []struct {
		name        string
		err         error
		passThrough bool
	}{
		{"nil", nil, true},
		{"stopped", track.ErrTrackingStopped, true},
		{"timeout", timeout, true},
		{"build failed", failed, true},
		{"cancelled", track.ErrBuildCancelled, true},
		{"api not found", &apierr.StatusError{Code: 404}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrackingError(tt.err)
			if tt.passThrough {
				if got != tt.err {
					t.Errorf("TrackingError() = %v, want %v unchanged", got, tt.err)
				}
				return
			}
			var ctxErr *apierr.Error
			if !errors.As(got, &ctxErr) || ctxErr.Message != "deployment not found" {
				t.Errorf("TrackingError() = %v, want contextualized not-found", got)
			}
			if ExitCode(got) != ExitCodeError {
				t.Errorf("ExitCode = %d, want %d", ExitCode(got), ExitCodeError)
			}
		})
	}
}
