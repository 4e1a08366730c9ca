// Package track follows a remote build until it reaches a terminal status.
//
// A Tracker polls the deployment API at a fixed interval and reports only
// what changed since the previous poll: the status line, the stage tree,
// and log lines beyond the last-seen count. Tracking ends on terminal
// success, terminal failure, the wall-clock deadline, or a local interrupt.
// An interrupt stops observation only; it never touches the remote build.
package track

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/hoist/log"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/retry"
	"github.com/pithecene-io/hoist/types"
)

// Defaults for Config.
const (
	DefaultInterval = 2500 * time.Millisecond
	DefaultTimeout  = 30 * time.Minute
)

// Fetcher reads remote build state. Implementations retry on their own;
// an error returned here is final.
type Fetcher interface {
	GetStatus(ctx context.Context, buildID string) (*types.BuildRecord, error)
	GetLogs(ctx context.Context, buildID string) (*types.LogsResponse, error)
}

// Renderer receives incremental updates. Calls are made sequentially from
// the tracking goroutine.
type Renderer interface {
	// StatusChanged is called when the status differs from the last poll.
	// prev is empty on the first poll.
	StatusChanged(rec *types.BuildRecord, prev types.BuildStatus)
	// StagesChanged is called when the stage map differs from the last
	// rendered one. remaining is a display-only estimate.
	StagesChanged(rec *types.BuildRecord, remaining time.Duration)
	// LogLines is called with log lines not shown before.
	LogLines(lines []string)
	// BuildFailed is called once when the build reaches failed.
	BuildFailed(rec *types.BuildRecord)
}

// Config configures a Tracker.
type Config struct {
	// Interval between polls (default 2.5s).
	Interval time.Duration
	// Timeout is the wall-clock tracking deadline (default 30m).
	Timeout time.Duration
	// NoLogs disables log fetching while polling. The final log flush on
	// success still happens.
	NoLogs bool
	// Now overrides the clock used for estimates.
	Now     func() time.Time
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Tracker follows builds.
type Tracker struct {
	fetcher  Fetcher
	renderer Renderer
	cfg      Config
	logger   *log.Logger
}

// New creates a Tracker.
func New(f Fetcher, r Renderer, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Tracker{fetcher: f, renderer: r, cfg: cfg, logger: logger}
}

// errDeadline is the cancellation cause of the tracking deadline.
var errDeadline = errors.New("tracking deadline exceeded")

// session is the state of one Track or Follow call.
type session struct {
	buildID         string
	lastStatus      types.BuildStatus
	lastLogCount    int
	lastFingerprint string
	started         bool
}

// Track blocks until the build reaches a terminal status, the deadline
// passes, or ctx is canceled.
//
// Returns the final record on success. Failure returns *BuildFailedError,
// remote cancellation ErrBuildCancelled (with the record), the deadline
// *TimeoutError, and a local interrupt ErrTrackingStopped.
func (t *Tracker) Track(ctx context.Context, buildID string) (*types.BuildRecord, error) {
	dctx, cancel := context.WithTimeoutCause(ctx, t.cfg.Timeout, errDeadline)
	defer cancel()

	s := &session{buildID: buildID}
	for {
		if err := t.stopped(ctx, dctx, s); err != nil {
			return nil, err
		}

		rec, err := t.fetcher.GetStatus(dctx, buildID)
		t.cfg.Metrics.IncPoll()
		if err != nil {
			if stopErr := t.stopped(ctx, dctx, s); stopErr != nil {
				return nil, stopErr
			}
			return nil, err
		}

		t.observe(s, rec)
		if !t.cfg.NoLogs && !rec.Status.IsTerminal() {
			t.pollLogs(dctx, s)
		}

		switch {
		case rec.Status.IsSuccess():
			// Trailing lines may land between the last poll and completion.
			t.pollLogs(ctx, s)
			return rec, nil
		case rec.Status.IsFailure():
			t.pollLogs(ctx, s)
			t.renderer.BuildFailed(rec)
			return rec, &BuildFailedError{Record: rec}
		case rec.Status.IsCancelled():
			return rec, ErrBuildCancelled
		}

		if err := retry.Sleep(dctx, t.cfg.Interval); err != nil {
			if stopErr := t.stopped(ctx, dctx, s); stopErr != nil {
				return nil, stopErr
			}
			return nil, err
		}
	}
}

// Follow streams log lines until the build reaches a terminal status, the
// deadline passes, or ctx is canceled. Returns the last logs response.
// A terminal status of any kind ends Follow without error; the caller
// decides what the status means.
func (t *Tracker) Follow(ctx context.Context, buildID string) (*types.LogsResponse, error) {
	dctx, cancel := context.WithTimeoutCause(ctx, t.cfg.Timeout, errDeadline)
	defer cancel()

	s := &session{buildID: buildID}
	for {
		if err := t.stopped(ctx, dctx, s); err != nil {
			return nil, err
		}

		resp, err := t.fetcher.GetLogs(dctx, buildID)
		t.cfg.Metrics.IncPoll()
		if err != nil {
			if stopErr := t.stopped(ctx, dctx, s); stopErr != nil {
				return nil, stopErr
			}
			return nil, err
		}
		t.emitLogs(s, resp.Logs)

		if resp.Status != "" && resp.Status != s.lastStatus {
			t.cfg.Metrics.ObserveStatus(string(resp.Status.Canonical()))
			s.lastStatus = resp.Status
		}
		if resp.Status.IsTerminal() {
			return resp, nil
		}

		if err := retry.Sleep(dctx, t.cfg.Interval); err != nil {
			if stopErr := t.stopped(ctx, dctx, s); stopErr != nil {
				return nil, stopErr
			}
			return nil, err
		}
	}
}

// stopped maps a done context to the tracking error it stands for.
// The parent context is checked first: an interrupt that races the
// deadline is reported as an interrupt.
func (t *Tracker) stopped(parent, dctx context.Context, s *session) error {
	if parent.Err() != nil {
		return ErrTrackingStopped
	}
	if dctx.Err() != nil && errors.Is(context.Cause(dctx), errDeadline) {
		return &TimeoutError{BuildID: s.buildID, Timeout: t.cfg.Timeout, LastStatus: s.lastStatus}
	}
	return nil
}

// observe renders whatever changed between the previous poll and rec.
func (t *Tracker) observe(s *session, rec *types.BuildRecord) {
	status := rec.Status.Canonical()
	if !s.started || status != s.lastStatus {
		if s.started && !types.CanTransition(s.lastStatus, status) {
			t.logger.Warn("unexpected status transition", map[string]any{
				"build_id": s.buildID,
				"from":     string(s.lastStatus),
				"to":       string(status),
			})
		}
		prev := s.lastStatus
		s.lastStatus = status
		s.started = true
		t.cfg.Metrics.ObserveStatus(string(status))
		t.renderer.StatusChanged(rec, prev)
	}

	if rec.Stages == nil {
		return
	}
	if !rec.Stages.Consistent() {
		t.logger.Debug("stage timings are inconsistent", map[string]any{"build_id": s.buildID})
	}
	fp := rec.Stages.Fingerprint()
	if fp == s.lastFingerprint {
		return
	}
	s.lastFingerprint = fp
	_, remaining := Estimate(rec.Stages, t.cfg.Now())
	t.cfg.Metrics.IncStageUpdate()
	t.renderer.StagesChanged(rec, remaining)
}

// pollLogs fetches logs and emits the delta. Log failures are not fatal
// to tracking; the next poll catches up.
func (t *Tracker) pollLogs(ctx context.Context, s *session) {
	resp, err := t.fetcher.GetLogs(ctx, s.buildID)
	if err != nil {
		t.logger.Warn("log fetch failed", map[string]any{
			"build_id": s.buildID,
			"error":    err.Error(),
		})
		return
	}
	t.emitLogs(s, resp.Logs)
}

// emitLogs prints lines beyond the last-seen count. A shorter array than
// last time resets the count without reprinting anything.
func (t *Tracker) emitLogs(s *session, logs []string) {
	n := len(logs)
	switch {
	case n > s.lastLogCount:
		fresh := logs[s.lastLogCount:]
		s.lastLogCount = n
		t.cfg.Metrics.AddLogLines(len(fresh))
		t.renderer.LogLines(fresh)
	case n < s.lastLogCount:
		t.logger.Debug("log array shrank", map[string]any{
			"build_id": s.buildID,
			"previous": s.lastLogCount,
			"current":  n,
		})
		s.lastLogCount = n
	}
}
