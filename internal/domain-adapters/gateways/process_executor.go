package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ProcessExecutor runs external tools and captures their output
type ProcessExecutor struct {
	defaultTimeout time.Duration
	waitDelay      time.Duration
}

// NewProcessExecutor creates a new process executor
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{
		defaultTimeout: 30 * time.Minute,
		waitDelay:      10 * time.Second,
	}
}

// CommandConfig describes a single process invocation
type CommandConfig struct {
	Name        string
	Args        []string
	WorkingDir  string
	Env         map[string]string
	Timeout     time.Duration
	Description string
	Output      io.Writer // receives stdout and stderr as they are produced
	TailLines   int       // lines of output kept in the result, default 40
}

// ExecuteResult contains the result of a process execution
type ExecuteResult struct {
	Success  bool
	ExitCode int
	TimedOut bool
	Tail     string
	Duration time.Duration
	Error    error
}

// Execute runs the command and waits for it. Cancelling ctx or hitting the
// timeout kills the whole process group.
func (pe *ProcessExecutor) Execute(ctx context.Context, config CommandConfig) *ExecuteResult {
	startTime := time.Now()
	result := &ExecuteResult{}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = pe.defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // G204: the analyzer path and arguments come from the build configuration
	cmd := exec.CommandContext(execCtx, config.Name, config.Args...)
	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	}

	env := os.Environ()
	for key, value := range config.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	cmd.Env = env

	tailLines := config.TailLines
	if tailLines <= 0 {
		tailLines = 40
	}
	tail := newTailBuffer(tailLines)

	var out io.Writer = tail
	if config.Output != nil {
		out = io.MultiWriter(config.Output, tail)
	}
	sink := &lockedWriter{w: out}
	cmd.Stdout = sink
	cmd.Stderr = sink

	configureProcessGroup(cmd)
	cmd.WaitDelay = pe.waitDelay

	err := cmd.Run()
	result.Duration = time.Since(startTime)
	result.Tail = tail.String()

	if err != nil {
		result.Error = err
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			result.TimedOut = true
			result.Error = fmt.Errorf("process timeout after %v", timeout)
			result.ExitCode = -1
		case ctx.Err() != nil:
			result.Error = fmt.Errorf("process cancelled: %w", ctx.Err())
			result.ExitCode = -1
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			result.ExitCode = -1
		}
		return result
	}

	result.Success = true
	result.ExitCode = 0
	return result
}

// CommandLine renders a command for logs and dry runs
func CommandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{name}, args...) {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// lockedWriter serializes writes from the stdout and stderr copiers
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// tailBuffer keeps the last n complete lines written to it plus any
// trailing partial line
type tailBuffer struct {
	max     int
	lines   []string
	partial bytes.Buffer
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{max: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.partial.Write(p)
	for {
		data := t.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		t.lines = append(t.lines, strings.TrimRight(string(data[:idx]), "\r"))
		t.partial.Next(idx + 1)
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	lines := t.lines
	if t.partial.Len() > 0 {
		lines = append(append([]string(nil), lines...), t.partial.String())
		if len(lines) > t.max {
			lines = lines[len(lines)-t.max:]
		}
	}
	return strings.Join(lines, "\n")
}
