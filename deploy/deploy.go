// Package deploy sequences one deployment attempt:
// validate → local build → archive → init → upload → complete → track.
//
// The orchestrator never exits the process. Execute returns a Result
// describing the outcome plus, for fatal failures, a contextualized error;
// the CLI maps both to an exit code with ExitCode.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/archive"
	"github.com/pithecene-io/hoist/history"
	"github.com/pithecene-io/hoist/journal"
	"github.com/pithecene-io/hoist/log"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/notify"
	"github.com/pithecene-io/hoist/retry"
	"github.com/pithecene-io/hoist/toolchain"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/types"
	"github.com/pithecene-io/hoist/upload"
)

// sideChannelTimeout bounds history writes and notifications after the
// deployment has finished.
const sideChannelTimeout = 15 * time.Second

// Step names a pipeline step for progress display.
type Step string

const (
	StepValidate Step = "validate"
	StepBuild    Step = "build"
	StepArchive  Step = "archive"
	StepInit     Step = "init"
	StepUpload   Step = "upload"
	StepComplete Step = "complete"
	StepTrack    Step = "track"
)

// API is the subset of the deployment API the orchestrator calls.
// Implementations retry on their own.
type API interface {
	track.Fetcher
	Init(ctx context.Context, req types.InitRequest) (*types.InitResponse, error)
	Complete(ctx context.Context, buildID string) (*types.CompleteResponse, error)
}

// Archiver packages the project directory.
type Archiver interface {
	Build(ctx context.Context, srcDir string) (*types.LocalArchive, error)
}

// LocalBuilder runs the project's own build command.
type LocalBuilder interface {
	Build(ctx context.Context, cfg toolchain.BuildConfig) (*toolchain.BuildResult, error)
}

// Reporter receives operator-facing progress. It also renders tracking.
type Reporter interface {
	track.Renderer
	// Step is called when a pipeline step starts.
	Step(step Step, detail string)
	// Advisory is called for every non-fatal advisory returned by the API.
	Advisory(a types.Advisory)
	// UploadProgress is called at a bounded rate during each upload.
	UploadProgress(sent, total int64)
	// Summary is called exactly once when Execute returns.
	Summary(res *Result)
}

// Config configures one deployment attempt.
type Config struct {
	// Dir is the project root.
	Dir  string
	Meta types.DeploymentMeta
	// BuildCommand is the local build command. Empty skips the build.
	BuildCommand string
	BuildEnv     []string
	// BuildOutput receives the local build's stdout and stderr.
	BuildOutput io.Writer
	// NoWait returns after complete without tracking.
	NoWait bool
	// UploadPolicy governs init+upload attempts (default retry.Default()).
	UploadPolicy *retry.Policy
	// RetainArchive copies the uploaded archive into History.
	RetainArchive bool
	// Tracking configures the tracker. Logger and Metrics are filled in.
	Tracking track.Config
	// Now overrides the clock.
	Now     func() time.Time
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Deps are the orchestrator's collaborators. API, Uploader, Archiver and
// Reporter are required; the rest are optional.
type Deps struct {
	API       API
	Uploader  upload.Uploader
	Archiver  Archiver
	Reporter  Reporter
	Validator Validator
	Builder   LocalBuilder
	Journal   *journal.Journal
	History   *history.Store
	Notifiers []notify.Notifier
}

// Result describes a finished deployment attempt.
type Result struct {
	Meta       types.DeploymentMeta
	BuildID    string
	Record     *types.BuildRecord
	Archive    *types.LocalArchive
	Outcome    Outcome
	Advisories []types.Advisory
	// Attempts counts init+upload attempts.
	Attempts int
	// Transport is the upload transport used ("http" or "s3").
	Transport string
	// RetainedArchive is the storage path of the retained archive, if any.
	RetainedArchive string
	StartedAt       time.Time
	Duration        time.Duration
	// Err is the fatal error, if any. Execute returns the same value.
	Err     error
	Metrics metrics.Snapshot
}

// Status returns the last observed remote status.
func (r *Result) Status() types.BuildStatus {
	if r.Record == nil {
		return ""
	}
	return r.Record.Status
}

// Message is a one-line description of the outcome.
func (r *Result) Message() string {
	switch r.Outcome {
	case OutcomeSucceeded:
		return fmt.Sprintf("build %s deployed", r.BuildID)
	case OutcomeSubmitted:
		return fmt.Sprintf("build %s submitted", r.BuildID)
	case OutcomeStopped:
		return fmt.Sprintf("stopped following build %s; it continues remotely", r.BuildID)
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return string(r.Outcome)
}

// Orchestrator runs deployments.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	base   *log.Logger
	logger *log.Logger
	policy retry.Policy
}

// New creates an Orchestrator. Returns an error if a required collaborator
// is missing.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.API == nil:
		return nil, errors.New("deploy: API is required")
	case deps.Uploader == nil:
		return nil, errors.New("deploy: uploader is required")
	case deps.Archiver == nil:
		return nil, errors.New("deploy: archiver is required")
	case deps.Reporter == nil:
		return nil, errors.New("deploy: reporter is required")
	}
	if cfg.Meta.Attempt == 0 {
		cfg.Meta.Attempt = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	policy := retry.Default()
	if cfg.UploadPolicy != nil {
		policy = *cfg.UploadPolicy
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		base:   logger,
		logger: logger.WithDeployment(cfg.Meta.ProjectID, ""),
		policy: policy,
	}, nil
}

// Execute runs the pipeline. Any fatal error stops the remaining steps.
// The local archive is removed however the pipeline ends.
//
// The returned Result is never nil. The error is nil for succeeded,
// submitted and stopped outcomes.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	res := &Result{Meta: o.cfg.Meta, StartedAt: o.cfg.Now()}

	err := o.run(ctx, res)
	if err != nil && res.Outcome == "" {
		res.Outcome = OutcomeFailed
	}
	res.Err = err
	res.Duration = o.cfg.Now().Sub(res.StartedAt)
	o.cfg.Metrics.SetOutcome(string(res.Outcome))

	o.finish(ctx, res)
	res.Metrics = o.cfg.Metrics.Snapshot()
	o.deps.Reporter.Summary(res)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, res *Result) error {
	if o.deps.Validator != nil {
		o.deps.Reporter.Step(StepValidate, o.cfg.Dir)
		if err := o.deps.Validator.Validate(ctx, o.cfg.Dir, o.cfg.Meta); err != nil {
			return err
		}
	}

	if o.deps.Builder != nil && o.cfg.BuildCommand != "" {
		o.deps.Reporter.Step(StepBuild, o.cfg.BuildCommand)
		_, err := o.deps.Builder.Build(ctx, toolchain.BuildConfig{
			Command: o.cfg.BuildCommand,
			Dir:     o.cfg.Dir,
			Env:     o.cfg.BuildEnv,
			Stdout:  o.cfg.BuildOutput,
			Stderr:  o.cfg.BuildOutput,
		})
		if err != nil {
			var buildErr *toolchain.BuildError
			if errors.As(err, &buildErr) {
				return &apierr.Error{
					Context:   apierr.ContextValidation,
					Kind:      apierr.ErrRejected,
					Message:   "local build failed",
					NextSteps: []string{"run the build command locally and fix the errors above"},
					Err:       err,
				}
			}
			return apierr.Contextualize(apierr.ContextValidation, err)
		}
	}

	o.deps.Reporter.Step(StepArchive, o.cfg.Dir)
	a, err := o.deps.Archiver.Build(ctx, o.cfg.Dir)
	if err != nil {
		return apierr.Contextualize(apierr.ContextFilesystem, err)
	}
	res.Archive = a
	removed := false
	removeArchive := func() {
		if removed {
			return
		}
		removed = true
		if err := archive.Remove(a); err != nil {
			o.logger.Warn("failed to remove local archive", map[string]any{
				"path":  a.Path,
				"error": err.Error(),
			})
		}
	}
	defer removeArchive()
	o.cfg.Metrics.SetArchive(a.SizeBytes, a.Files)
	o.logger.Debug("archive built", map[string]any{
		"path":     a.Path,
		"bytes":    a.SizeBytes,
		"files":    a.Files,
		"checksum": a.Checksum,
	})

	if err := o.initAndUpload(ctx, res); err != nil {
		return err
	}
	o.retain(ctx, res)
	// The remote side owns the bytes once the upload succeeds.
	removeArchive()

	o.deps.Reporter.Step(StepComplete, res.BuildID)
	done, err := o.deps.API.Complete(ctx, res.BuildID)
	if err != nil {
		return apierr.Contextualize(apierr.ContextDeployment, err)
	}
	o.advise(res, done.Advisories)
	if done.Status != "" {
		o.cfg.Metrics.ObserveStatus(string(done.Status))
		res.Record = &types.BuildRecord{BuildID: res.BuildID, ProjectID: o.cfg.Meta.ProjectID, Status: done.Status}
	}

	if o.cfg.NoWait {
		res.Outcome = OutcomeSubmitted
		return nil
	}
	return o.track(ctx, res)
}

// initError marks an init failure inside the upload retry loop. Init has
// already been retried by the API client, so the loop must not retry it.
type initError struct{ err error }

func (e *initError) Error() string { return e.err.Error() }
func (e *initError) Unwrap() error { return e.err }

// initAndUpload requests an upload URL and uploads the archive. A
// retryable upload failure starts over with a fresh init, because upload
// URLs are single-use.
func (o *Orchestrator) initAndUpload(ctx context.Context, res *Result) error {
	policy := o.policy
	base := policy.Retryable
	if base == nil {
		base = apierr.IsRetryable
	}
	policy.Retryable = func(err error) bool {
		var ie *initError
		if errors.As(err, &ie) {
			return false
		}
		return base(err)
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.logger.Warn("upload failed, retrying with a new upload URL", map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
	}

	req := types.InitRequest{
		ProjectID: o.cfg.Meta.ProjectID,
		AccountID: o.cfg.Meta.AccountID,
		Checksum:  res.Archive.Checksum,
		SizeBytes: res.Archive.SizeBytes,
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		res.Attempts++
		o.deps.Reporter.Step(StepInit, o.cfg.Meta.ProjectID)
		resp, err := o.deps.API.Init(ctx, req)
		if err != nil {
			return &initError{err: err}
		}
		res.BuildID = resp.BuildID
		o.logger = o.base.WithDeployment(o.cfg.Meta.ProjectID, resp.BuildID)
		o.cfg.Metrics.SetBuildID(resp.BuildID)
		if res.Attempts == 1 {
			o.advise(res, resp.Advisories)
		}
		o.appendJournal(journal.Entry{
			Kind:      journal.KindStarted,
			ProjectID: o.cfg.Meta.ProjectID,
			BuildID:   resp.BuildID,
			Status:    types.StatusInit,
			Checksum:  res.Archive.Checksum,
		})

		if r, ok := o.deps.Uploader.(*upload.Router); ok {
			res.Transport = r.Transport(resp.UploadURL)
			o.cfg.Metrics.SetUploadTransport(res.Transport)
		}
		o.deps.Reporter.Step(StepUpload, resp.BuildID)
		o.cfg.Metrics.IncUploadAttempt()
		return o.deps.Uploader.Upload(ctx, res.Archive, resp.UploadURL, o.deps.Reporter.UploadProgress)
	})
	if err != nil {
		var ie *initError
		if errors.As(err, &ie) {
			return apierr.Contextualize(apierr.ContextDeployment, ie.err)
		}
		return apierr.Contextualize(apierr.ContextNetwork, err)
	}
	o.cfg.Metrics.AddUploadBytes(res.Archive.SizeBytes)
	return nil
}

func (o *Orchestrator) track(ctx context.Context, res *Result) error {
	tcfg := o.cfg.Tracking
	tcfg.Logger = o.logger
	tcfg.Metrics = o.cfg.Metrics
	if tcfg.Now == nil {
		tcfg.Now = o.cfg.Now
	}
	tracker := track.New(o.deps.API, o.deps.Reporter, tcfg)

	o.deps.Reporter.Step(StepTrack, res.BuildID)
	rec, err := tracker.Track(ctx, res.BuildID)
	if rec != nil {
		res.Record = rec
	}
	var failed *track.BuildFailedError
	if errors.As(err, &failed) && failed.Record != nil {
		res.Record = failed.Record
	}
	res.Outcome = TrackingOutcome(err)

	if res.Outcome == OutcomeSucceeded || res.Outcome == OutcomeStopped {
		return nil
	}
	return TrackingError(err)
}

func (o *Orchestrator) advise(res *Result, advisories []types.Advisory) {
	for _, a := range advisories {
		res.Advisories = append(res.Advisories, a)
		o.deps.Reporter.Advisory(a)
	}
}

// retain copies the archive into the history store. Best effort.
func (o *Orchestrator) retain(ctx context.Context, res *Result) {
	if !o.cfg.RetainArchive || o.deps.History == nil {
		return
	}
	path, err := o.deps.History.RetainArchive(ctx, o.cfg.Meta.ProjectID, res.BuildID, res.Archive)
	if err != nil {
		o.logger.Warn("failed to retain archive", map[string]any{"error": err.Error()})
		return
	}
	res.RetainedArchive = path
}

// finish records the attempt in the journal and history and publishes
// notifications. Failures are logged and never change the outcome.
func (o *Orchestrator) finish(ctx context.Context, res *Result) {
	if res.BuildID == "" {
		return
	}
	o.appendJournal(journal.Entry{
		Kind:      journal.KindFinished,
		ProjectID: o.cfg.Meta.ProjectID,
		BuildID:   res.BuildID,
		Status:    res.Status(),
		Outcome:   string(res.Outcome),
		Checksum:  checksumOf(res.Archive),
	})

	// The deployment context may already be canceled by an interrupt.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideChannelTimeout)
	defer cancel()

	if o.deps.History != nil {
		err := o.deps.History.Write(sctx, o.historyRecord(res))
		o.cfg.Metrics.IncHistoryWrite(err == nil)
		if err != nil {
			o.logger.Warn("failed to record deployment history", map[string]any{"error": err.Error()})
		}
	}

	if len(o.deps.Notifiers) == 0 {
		return
	}
	event := o.event(res)
	for _, n := range o.deps.Notifiers {
		err := n.Publish(sctx, event)
		o.cfg.Metrics.IncNotify(err == nil)
		if err != nil {
			o.logger.Warn("failed to publish deployment notification", map[string]any{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) appendJournal(e journal.Entry) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.Append(e); err != nil {
		o.logger.Warn("failed to append journal entry", map[string]any{"error": err.Error()})
	}
}

func (o *Orchestrator) historyRecord(res *Result) history.Record {
	rec := history.Record{
		ProjectID:       o.cfg.Meta.ProjectID,
		BuildID:         res.BuildID,
		Status:          string(res.Status()),
		Outcome:         string(res.Outcome),
		Checksum:        checksumOf(res.Archive),
		UploadTransport: res.Transport,
		DurationMs:      res.Duration.Milliseconds(),
		StartedAt:       res.StartedAt,
		FinishedAt:      res.StartedAt.Add(res.Duration),
		ArchivePath:     res.RetainedArchive,
	}
	if res.Archive != nil {
		rec.ArchiveBytes = res.Archive.SizeBytes
		rec.ArchiveFiles = int64(res.Archive.Files)
	}
	if res.Record != nil {
		rec.URL = res.Record.URL
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

func (o *Orchestrator) event(res *Result) *notify.DeploymentCompletedEvent {
	e := &notify.DeploymentCompletedEvent{
		EventType:  notify.EventTypeDeploymentCompleted,
		ProjectID:  o.cfg.Meta.ProjectID,
		BuildID:    res.BuildID,
		Status:     string(res.Status()),
		Outcome:    string(res.Outcome),
		Checksum:   checksumOf(res.Archive),
		Timestamp:  res.StartedAt.Add(res.Duration).UTC().Format(time.RFC3339),
		Attempt:    o.cfg.Meta.Attempt,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Record != nil {
		e.URL = res.Record.URL
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

func checksumOf(a *types.LocalArchive) string {
	if a == nil {
		return ""
	}
	return a.Checksum
}
