// Package runner executes external tools (virsh, zfs, qemu-img) as
// argument-vector subprocesses. Nothing here goes through a shell, so
// domain, network and volume names are passed to the tool verbatim.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner runs a command and returns its standard output.
//
// In production this is satisfied by *Exec. Adapters accept the interface so
// tests can script tool output without touching the host.
type Runner interface {
	// Run executes name with args and returns stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Stream executes name with args, copying stdout into w.
	Stream(ctx context.Context, w io.Writer, name string, args ...string) error
}

// ExitError is returned when a tool exits non-zero.
type ExitError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed (exit %d)", strings.Join(e.Argv, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// IsExitError reports whether err came from a tool exiting non-zero.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// Exec runs commands on the local host, optionally prefixed with sudo.
type Exec struct {
	sudo   bool
	logger zerolog.Logger
}

// Option configures an Exec.
type Option func(*Exec)

// WithSudo prefixes every command with "sudo".
func WithSudo(enabled bool) Option {
	return func(e *Exec) {
		e.sudo = enabled
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Exec) {
		e.logger = logger
	}
}

// New creates an Exec. Commands run through sudo by default because
// virsh and zfs need root on the hosts this tool targets.
func New(opts ...Option) *Exec {
	e := &Exec{
		sudo:   true,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	if err := e.Stream(ctx, &stdout, name, args...); err != nil {
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Stream implements Runner.
func (e *Exec) Stream(ctx context.Context, w io.Writer, name string, args ...string) error {
	argv := e.argv(name, args)
	e.logger.Debug().Strs("argv", argv).Msg("executing command")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ExitError{
			Argv:     argv,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	return nil
}

func (e *Exec) argv(name string, args []string) []string {
	argv := make([]string, 0, len(args)+2)
	if e.sudo {
		argv = append(argv, "sudo")
	}
	argv = append(argv, name)
	return append(argv, args...)
}
