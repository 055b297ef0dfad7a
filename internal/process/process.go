// Package process runs external commands for target tasks.
//
// Output is streamed line by line to a [LineHandler] while the command runs,
// so long builds show progress and every line can pass through the logger
// (and therefore the secret masker) before it reaches the terminal.
//
// Key types:
//   - [Command] describes the process to start
//   - [Runner] is the interface tasks depend on; [ExecRunner] spawns real
//     processes and [MockRunner] records invocations in tests
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// Stream identifies which output stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineHandler receives each output line. It may be called from two
// goroutines (stdout and stderr) but never concurrently: [ExecRunner]
// serializes calls.
type LineHandler func(stream Stream, line string)

// Command describes a process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is appended to the current process environment as KEY=VALUE pairs.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// Runner starts a command and waits for it.
//
// Run returns the exit code. The error is non-nil only when the process
// could not be started or its output could not be read; a non-zero exit is
// reported through the code alone.
type Runner interface {
	Run(ctx context.Context, cmd Command, handler LineHandler) (int, error)
}

// ExecRunner implements [Runner] with os/exec.
type ExecRunner struct {
	// BufferSize is the maximum length of a single output line.
	// Defaults to 1MB if not set or <= 0.
	BufferSize int
}

// NewExecRunner creates an ExecRunner with default settings.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{BufferSize: 1024 * 1024}
}

// Run implements [Runner]. Cancelling ctx kills the process.
func (r *ExecRunner) Run(ctx context.Context, c Command, handler LineHandler) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	var mu sync.Mutex
	emit := func(stream Stream, line string) {
		if handler == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		handler(stream, line)
	}

	var wg sync.WaitGroup
	var readErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.scan(stderr, Stderr, emit); err != nil {
			mu.Lock()
			readErr = err
			mu.Unlock()
		}
	}()
	scanErr := r.scan(stdout, Stdout, emit)
	wg.Wait()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return 1, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, waitErr
	}
	if scanErr != nil {
		return 1, scanErr
	}
	return 0, readErr
}

func (r *ExecRunner) scan(rd io.Reader, stream Stream, emit LineHandler) error {
	scanner := bufio.NewScanner(rd)
	bufSize := r.BufferSize
	if bufSize <= 0 {
		bufSize = 1024 * 1024
	}
	scanner.Buffer(make([]byte, 0, 64*1024), bufSize)

	for scanner.Scan() {
		emit(stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// Drain so the process is not blocked on a full pipe.
		_, _ = io.Copy(io.Discard, rd)
		return fmt.Errorf("failed to read output: %w", err)
	}
	return nil
}

// Shell builds a Command running script through the platform shell.
func Shell(script string) Command {
	if runtime.GOOS == "windows" {
		return Command{Name: "cmd", Args: []string{"/C", script}}
	}
	return Command{Name: "sh", Args: []string{"-c", script}}
}

// MockRunner implements [Runner] for tests without spawning processes.
type MockRunner struct {
	mu sync.Mutex

	// Lines are emitted to the handler on every Run, as stdout.
	Lines []string
	// ExitCodes maps a command string to its exit code. Default 0.
	ExitCodes map[string]int
	// Err, when set, is returned from every Run.
	Err error

	// Commands records every invocation in order.
	Commands []Command
}

// Run implements [Runner].
func (m *MockRunner) Run(ctx context.Context, cmd Command, handler LineHandler) (int, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, cmd)
	m.mu.Unlock()

	if m.Err != nil {
		return 1, m.Err
	}
	if handler != nil {
		for _, line := range m.Lines {
			handler(Stdout, line)
		}
	}
	return m.ExitCodes[cmd.String()], nil
}
