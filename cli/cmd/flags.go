// Package cmd provides CLI commands for the hoist binary.
package cmd

import "github.com/urfave/cli/v2"

// Global flags, accepted before any command.
var (
	// ConfigFlag points at hoist.yaml. Default: ./hoist.yaml when present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to hoist.yaml (default: ./hoist.yaml if present)",
		EnvVars: []string{"HOIST_CONFIG"},
	}

	// APIURLFlag overrides api.url.
	APIURLFlag = &cli.StringFlag{
		Name:    "api-url",
		Usage:   "Deployment API base URL",
		EnvVars: []string{"HOIST_API_URL"},
	}

	// TokenFlag overrides api.token.
	TokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Deployment API token",
		EnvVars: []string{"HOIST_TOKEN"},
	}

	// ProjectFlag overrides project.id.
	ProjectFlag = &cli.StringFlag{
		Name:    "project",
		Usage:   "Project ID",
		EnvVars: []string{"HOIST_PROJECT"},
	}

	// AccountFlag overrides project.account_id.
	AccountFlag = &cli.StringFlag{
		Name:    "account",
		Usage:   "Account ID",
		EnvVars: []string{"HOIST_ACCOUNT"},
	}

	// StateDirFlag is where the local journal lives.
	StateDirFlag = &cli.StringFlag{
		Name:  "state-dir",
		Usage: "Directory for local state (journal, history)",
		Value: ".hoist",
	}

	// LogLevelFlag sets the structured log level (logs go to stderr).
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		Value:   "warn",
		EnvVars: []string{"HOIST_LOG_LEVEL"},
	}

	// VerboseFlag is shorthand for --log-level debug.
	VerboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable debug logging",
	}
)

// GlobalFlags returns the flags accepted by the root command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		APIURLFlag,
		TokenFlag,
		ProjectFlag,
		AccountFlag,
		StateDirFlag,
		LogLevelFlag,
		VerboseFlag,
	}
}

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (status, history).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (status, history only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TrackingFlags returns the flags shared by commands that follow a build.
func TrackingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up tracking after this long (default 30m)",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Polling interval (default 2.5s)",
		},
		&cli.BoolFlag{
			Name:  "no-logs",
			Usage: "Do not stream build logs while tracking",
		},
	}
}
