package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/archive"
	"github.com/pithecene-io/hoist/cli/progress"
	"github.com/pithecene-io/hoist/deploy"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/toolchain"
	"github.com/pithecene-io/hoist/types"
)

// DeployCommand returns the deploy command.
// Deploy is the only command that changes remote state besides cancel.
func DeployCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Project directory to package (default: project.dir or .)",
		},
		&cli.StringFlag{
			Name:  "build-command",
			Usage: "Local build command run before packaging",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Return once the build is submitted",
		},
		&cli.BoolFlag{
			Name:  "retain-archive",
			Usage: "Keep a copy of the uploaded archive in the history store",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON deployment report to this path (- for stdout)",
		},
		&cli.IntFlag{
			Name:  "attempt",
			Usage: "Attempt number recorded with the deployment (starts at 1)",
			Value: 1,
		},
		NoColorFlag,
	}
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Package, upload and build the project, then follow the build",
		ArgsUsage: "[dir]",
		Flags:     append(flags, TrackingFlags()...),
		Action:    deployAction,
	}
}

func deployAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	// Interrupt stops tracking locally; the remote build keeps running.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runDeploy(ctx, c, s)
	if res == nil {
		return exitWithError(err)
	}

	code := deploy.ExitCode(err)
	if path := c.String("report"); path != "" {
		if werr := deploy.WriteReport(deploy.BuildReport(res, code), path); werr != nil {
			s.logger.Warn("failed to write deployment report", map[string]any{
				"path":  path,
				"error": werr.Error(),
			})
		}
	}
	if code != 0 {
		// The summary has already been printed.
		return cli.Exit("", code)
	}
	return nil
}

// runDeploy wires the orchestrator's collaborators and executes it.
// A nil Result means the orchestrator never started.
func runDeploy(ctx context.Context, c *cli.Context, s *session) (*deploy.Result, error) {
	meta := types.DeploymentMeta{
		ProjectID: s.project,
		AccountID: s.account,
		Attempt:   c.Int("attempt"),
	}
	m := metrics.NewCollector(meta.ProjectID)

	api, err := s.client(m)
	if err != nil {
		return nil, err
	}
	j, err := s.journal()
	if err != nil {
		return nil, err
	}
	hist, err := s.history(ctx)
	if err != nil {
		s.logger.Warn("deployment history unavailable", map[string]any{"error": err.Error()})
	}
	notifiers, err := s.notifiers()
	if err != nil {
		return nil, err
	}
	defer closeNotifiers(notifiers)

	runner := toolchain.NewRunner(s.logger)
	archiver := archive.NewBuilder(archive.Options{
		Excludes:  s.cfg.Archive.Excludes,
		OutputDir: s.cfg.Archive.OutputDir,
		Toolchain: runner.Probe(ctx, toolchain.DefaultProbes),
		Logger:    s.logger,
	})
	printer := progress.New(os.Stdout, progress.Options{
		Interactive: isStdoutTTY(),
		NoColor:     c.Bool("no-color"),
	})

	policy := s.retryPolicy()
	orch, err := deploy.New(deploy.Config{
		Dir:           deployDir(c, s),
		Meta:          meta,
		BuildCommand:  resolveString(c, "build-command", s.cfg.Deploy.BuildCommand),
		BuildEnv:      s.buildEnv(),
		BuildOutput:   os.Stderr,
		NoWait:        resolveBool(c, "no-wait", s.cfg.Deploy.NoWait),
		UploadPolicy:  policy,
		RetainArchive: resolveBool(c, "retain-archive", s.cfg.Deploy.RetainArchive),
		Tracking:      s.trackingConfig(c, m),
		Logger:        s.logger,
		Metrics:       m,
	}, deploy.Deps{
		API:       api,
		Uploader:  s.uploader(ctx),
		Archiver:  archiver,
		Reporter:  printer,
		Validator: &deploy.PreflightValidator{Accounts: api},
		Builder:   runner,
		Journal:   j,
		History:   hist,
		Notifiers: notifiers,
	})
	if err != nil {
		return nil, err
	}
	return orch.Execute(ctx)
}

// deployDir picks the directory argument, then --dir, then project.dir.
func deployDir(c *cli.Context, s *session) string {
	if dir := c.Args().First(); dir != "" {
		return dir
	}
	if dir := resolveString(c, "dir", s.cfg.Project.Dir); dir != "" {
		return dir
	}
	return "."
}
