package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/archive"
	"github.com/pithecene-io/hoist/cli/render"
	"github.com/pithecene-io/hoist/metrics"
	"github.com/pithecene-io/hoist/toolchain"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostics. Only whoami contacts the API.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (archive, whoami, journal)",
		Subcommands: []*cli.Command{
			debugArchiveCommand(),
			debugWhoamiCommand(),
			debugJournalCommand(),
		},
	}
}

// ArchiveReport describes an archive built by debug archive.
type ArchiveReport struct {
	Path      string            `json:"path" yaml:"path"`
	SizeBytes int64             `json:"size_bytes" yaml:"size_bytes"`
	Checksum  string            `json:"checksum" yaml:"checksum"`
	Files     int               `json:"files" yaml:"files"`
	Kept      bool              `json:"kept" yaml:"kept"`
	Toolchain map[string]string `json:"toolchain,omitempty" yaml:"toolchain,omitempty"`
}

func debugArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Build the deployment archive without uploading it",
		ArgsUsage: "[dir]",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "keep",
				Usage: "Keep the archive file instead of deleting it",
			},
		),
		Action: debugArchiveAction,
	}
}

func debugArchiveAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	dir := c.Args().First()
	if dir == "" {
		dir = s.cfg.Project.Dir
	}
	if dir == "" {
		dir = "."
	}

	probes := toolchain.NewRunner(s.logger).Probe(c.Context, toolchain.DefaultProbes)
	a, err := archive.NewBuilder(archive.Options{
		Excludes:  s.cfg.Archive.Excludes,
		OutputDir: s.cfg.Archive.OutputDir,
		Toolchain: probes,
		Logger:    s.logger,
	}).Build(c.Context, dir)
	if err != nil {
		return exitWithError(err)
	}

	keep := c.Bool("keep")
	if !keep {
		if err := archive.Remove(a); err != nil {
			s.logger.Warn("failed to remove archive", map[string]any{"path": a.Path, "error": err.Error()})
		}
	}
	return r.Render(ArchiveReport{
		Path:      a.Path,
		SizeBytes: a.SizeBytes,
		Checksum:  a.Checksum,
		Files:     a.Files,
		Kept:      keep,
		Toolchain: probes,
	})
}

func debugWhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the account behind the API token",
		Flags:  ReadOnlyFlags(),
		Action: debugWhoamiAction,
	}
}

func debugWhoamiAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	api, err := s.client(metrics.NewCollector(s.project))
	if err != nil {
		return exitWithError(err)
	}
	acct, err := api.Whoami(c.Context)
	if err != nil {
		return exitWithAPIError(apierr.ContextAuthentication, err)
	}
	return r.Render(acct)
}

// JournalRow is one journal entry as shown by debug journal.
type JournalRow struct {
	At      time.Time `json:"at" yaml:"at"`
	Kind    string    `json:"kind" yaml:"kind"`
	Project string    `json:"project" yaml:"project"`
	BuildID string    `json:"build_id" yaml:"build_id"`
	Status  string    `json:"status,omitempty" yaml:"status,omitempty"`
	Outcome string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

func debugJournalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Show the local deployment journal",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include every project, not only the configured one",
			},
		),
		Action: debugJournalAction,
	}
}

func debugJournalAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitWithError(err)
	}
	defer func() { _ = s.logger.Sync() }()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	j, err := s.journal()
	if err != nil {
		return exitWithError(err)
	}
	entries, err := j.Entries()
	if err != nil {
		return exitWithError(err)
	}

	rows := make([]JournalRow, 0, len(entries))
	for _, e := range entries {
		if !c.Bool("all") && s.project != "" && e.ProjectID != s.project {
			continue
		}
		rows = append(rows, JournalRow{
			At:      e.Time(),
			Kind:    string(e.Kind),
			Project: e.ProjectID,
			BuildID: e.BuildID,
			Status:  string(e.Status),
			Outcome: e.Outcome,
		})
	}
	return r.Render(rows)
}
