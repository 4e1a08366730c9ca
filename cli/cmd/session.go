package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/cli/config"
	"github.com/pithecene-io/hoist/history"
	"github.com/pithecene-io/hoist/journal"
	"github.com/pithecene-io/hoist/log"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/notify"
	"github.com/pithecene-io/hoist/notify/redis"
	"github.com/pithecene-io/hoist/notify/webhook"
	"github.com/pithecene-io/hoist/remote"
	"github.com/pithecene-io/hoist/retry"
	"github.com/pithecene-io/hoist/s3x"
	"github.com/pithecene-io/hoist/track"
	"github.com/pithecene-io/hoist/upload"
)

// session is the resolved configuration shared by every command.
type session struct {
	cfg      *config.Config
	logger   *log.Logger
	apiURL   string
	token    string
	project  string
	account  string
	stateDir string
}

// newSession loads hoist.yaml and applies flag/env overrides.
func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		level = zapcore.DebugLevel
	}

	return &session{
		cfg:      cfg,
		logger:   log.NewLogger(level),
		apiURL:   resolveString(c, "api-url", cfg.API.URL),
		token:    resolveString(c, "token", cfg.API.Token),
		project:  resolveString(c, "project", cfg.Project.ID),
		account:  resolveString(c, "account", cfg.Project.AccountID),
		stateDir: c.String("state-dir"),
	}, nil
}

// retryPolicy returns the network retry policy with config overrides.
func (s *session) retryPolicy() *retry.Policy {
	p := retry.Default()
	rc := s.cfg.Retry
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay.Duration > 0 {
		p.BaseDelay = rc.BaseDelay.Duration
	}
	if rc.MaxDelay.Duration > 0 {
		p.MaxDelay = rc.MaxDelay.Duration
	}
	if rc.Multiplier >= 1 {
		p.Multiplier = rc.Multiplier
	}
	p = p.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		s.logger.Debug("retrying request", map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	})
	return &p
}

func (s *session) client(m *metrics.Collector) (*remote.Client, error) {
	return remote.New(remote.Config{
		BaseURL: s.apiURL,
		Token:   s.token,
		Timeout: s.cfg.API.Timeout.Duration,
		Policy:  s.retryPolicy(),
		Logger:  s.logger,
		Metrics: m,
	})
}

func (s *session) journal() (*journal.Journal, error) {
	j, err := journal.Open(s.stateDir)
	if err != nil {
		return nil, apierr.Filesystem("open journal", s.stateDir, err)
	}
	return j, nil
}

// history opens the deployment history store. Returns nil when history
// is disabled in hoist.yaml.
func (s *session) history(ctx context.Context) (*history.Store, error) {
	hc := s.cfg.History
	if hc.Disabled {
		return nil, nil
	}
	switch hc.Backend {
	case config.HistoryBackendS3:
		return history.NewS3(ctx, hc.Dataset, history.S3Config{
			Config: s3Config(hc.S3),
			Bucket: hc.S3.Bucket,
			Prefix: hc.S3.Prefix,
		})
	default:
		root := hc.Path
		if root == "" {
			root = filepath.Join(s.stateDir, "history")
		}
		return history.NewFS(hc.Dataset, root)
	}
}

// notifiers builds the configured deployment-completed notifiers.
func (s *session) notifiers() ([]notify.Notifier, error) {
	var out []notify.Notifier
	if w := s.cfg.Notify.Webhook; w != nil {
		n, err := webhook.New(webhook.Config{
			URL:     w.URL,
			Headers: w.Headers,
			Timeout: w.Timeout.Duration,
			Retries: retriesOrDefault(w.Retries),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if r := s.cfg.Notify.Redis; r != nil {
		n, err := redis.New(redis.Config{
			URL:     r.URL,
			Channel: r.Channel,
			Timeout: r.Timeout.Duration,
			Retries: retriesOrDefault(r.Retries),
		})
		if err != nil {
			closeNotifiers(out)
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func retriesOrDefault(n *int) int {
	if n == nil {
		return notify.DefaultRetries
	}
	return *n
}

func closeNotifiers(ns []notify.Notifier) {
	for _, n := range ns {
		_ = n.Close()
	}
}

// uploader routes s3:// destinations to S3 and everything else to HTTP.
// The S3 transport is left out if the AWS config chain cannot be loaded.
func (s *session) uploader(ctx context.Context) *upload.Router {
	router := &upload.Router{HTTP: upload.NewHTTPUploader(nil)}
	client, err := s3x.NewClient(ctx, s3Config(s.cfg.Upload.S3))
	if err != nil {
		s.logger.Warn("s3 upload transport unavailable", map[string]any{"error": err.Error()})
		return router
	}
	router.S3 = upload.NewS3Uploader(client)
	return router
}

func s3Config(c config.S3Config) s3x.Config {
	return s3x.Config{Region: c.Region, Endpoint: c.Endpoint, UsePathStyle: c.PathStyle}
}

// trackingConfig resolves tracker settings from flags and deploy config.
func (s *session) trackingConfig(c *cli.Context, m *metrics.Collector) track.Config {
	return track.Config{
		Interval: resolveDuration(c, "interval", s.cfg.Deploy.Interval),
		Timeout:  resolveDuration(c, "timeout", s.cfg.Deploy.Timeout),
		NoLogs:   resolveBool(c, "no-logs", s.cfg.Deploy.NoLogs),
		Logger:   s.logger,
		Metrics:  m,
	}
}

// buildID returns the build id argument, falling back to the most recent
// deployment of the configured project in the journal.
func (s *session) buildID(c *cli.Context, j *journal.Journal) (string, error) {
	if id := c.Args().First(); id != "" {
		return id, nil
	}
	if s.project == "" {
		return "", apierr.Validation("no build id given and no project configured",
			"pass a build id", "or set project.id in hoist.yaml")
	}
	id, err := j.LastBuildID(s.project)
	if errors.Is(err, journal.ErrNoDeployments) {
		return "", apierr.Validation(fmt.Sprintf("no deployments recorded for project %s", s.project),
			"pass a build id", "or run hoist deploy first")
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// buildEnv flattens the configured build environment in key order.
func (s *session) buildEnv() []string {
	env := s.cfg.Deploy.BuildEnv
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// isStdoutTTY reports whether stdout is a terminal.
func isStdoutTTY() bool {
	return isTTY(os.Stdout)
}

// isStderrTTY reports whether stderr is a terminal.
func isStderrTTY() bool {
	return isTTY(os.Stderr)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
