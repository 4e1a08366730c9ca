package toolchain

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// probeTimeout bounds each version probe.
const probeTimeout = 5 * time.Second

// DefaultProbes are the version commands run when none are configured.
var DefaultProbes = map[string][]string{
	"node": {"node", "--version"},
	"npm":  {"npm", "--version"},
}

// Probe runs each version command and returns the first output line per
// tool. Tools that are missing or fail are omitted; probing never fails
// the deployment.
func (r *Runner) Probe(ctx context.Context, probes map[string][]string) map[string]string {
	if probes == nil {
		probes = DefaultProbes
	}

	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(probes))
	for _, name := range names {
		argv := probes[name]
		if len(argv) == 0 {
			continue
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		b, err := exec.CommandContext(pctx, argv[0], argv[1:]...).Output()
		cancel()
		if err != nil {
			r.logger.Debug("toolchain probe failed", map[string]any{
				"tool":  name,
				"error": err.Error(),
			})
			continue
		}
		if v := strings.TrimSpace(firstLine(string(b))); v != "" {
			out[name] = v
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
