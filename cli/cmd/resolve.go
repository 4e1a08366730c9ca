package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hoist/cli/config"
)

// Precedence: explicit flag or env var > config file > flag default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal config.Duration) time.Duration {
	if c.IsSet(name) || cfgVal.Duration == 0 {
		return c.Duration(name)
	}
	return cfgVal.Duration
}
