// Package toolchain invokes the project's local build tooling before
// packaging and probes tool versions for the archive metadata record.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/pithecene-io/hoist/log"
)

// stderrTailBytes is how much trailing stderr a BuildError keeps.
const stderrTailBytes = 4 << 10

// waitDelay bounds how long Wait drains output after the process is killed.
const waitDelay = 2 * time.Second

// BuildConfig configures a local build invocation.
type BuildConfig struct {
	// Command is a shell command line, e.g. "npm run build". Empty skips the build.
	Command string
	// Dir is the working directory (the project root).
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Stdout and Stderr receive the command's output streams.
	// Nil discards stdout; stderr is always captured for diagnostics.
	Stdout io.Writer
	Stderr io.Writer
}

// BuildResult describes a finished local build.
type BuildResult struct {
	ExitCode int
	Duration time.Duration
	Skipped  bool
}

// BuildError is returned when the build command exits non-zero.
type BuildError struct {
	Command  string
	ExitCode int
	// Stderr is the trailing portion of the command's stderr.
	Stderr []byte
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("local build %q exited with code %d", e.Command, e.ExitCode)
	if tail := strings.TrimSpace(lastLine(e.Stderr)); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Runner runs local build commands.
type Runner struct {
	logger *log.Logger
	shell  []string
}

// NewRunner creates a Runner using the platform shell.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Nop()
	}
	shell := []string{"/bin/sh", "-c"}
	if runtime.GOOS == "windows" {
		shell = []string{"cmd", "/C"}
	}
	return &Runner{logger: logger, shell: shell}
}

// Build runs cfg.Command and waits for it to exit.
// A non-zero exit returns *BuildError; ctx cancellation kills the process.
func (r *Runner) Build(ctx context.Context, cfg BuildConfig) (*BuildResult, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return &BuildResult{Skipped: true}, nil
	}

	args := append(append([]string{}, r.shell[1:]...), cfg.Command)
	cmd := exec.CommandContext(ctx, r.shell[0], args...)
	cmd.Dir = cfg.Dir
	// Children that inherit the output pipes must not hold Wait open
	// after ctx kills the shell.
	cmd.WaitDelay = waitDelay
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	tail := &tailBuffer{max: stderrTailBytes}
	var stderr io.Writer = tail
	if cfg.Stderr != nil {
		stderr = io.MultiWriter(cfg.Stderr, tail)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Info("running local build", map[string]any{
		"command": cfg.Command,
		"dir":     cfg.Dir,
	})

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start local build: %w", err)
	}
	err := cmd.Wait()
	result := &BuildResult{Duration: time.Since(start)}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("local build wait failed: %w", err)
		}
		result.ExitCode = exitCode(exitErr)
		return result, &BuildError{Command: cfg.Command, ExitCode: result.ExitCode, Stderr: tail.Bytes()}
	}

	r.logger.Info("local build finished", map[string]any{
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		return status.ExitStatus()
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return -1
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte {
	return bytes.Clone(t.buf)
}

func lastLine(b []byte) string {
	s := strings.TrimRight(string(b), "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
