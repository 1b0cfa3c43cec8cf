// Package runnertest provides a scripted Runner for tests.
package runnertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jbweber/hearth/internal/runner"
)

// Response is a scripted reply for a command line.
type Response struct {
	Stdout string
	Err    error
}

// Fake records every invocation and answers from a table keyed by the
// space-joined argv. Unknown commands succeed with empty output unless
// Strict is set.
type Fake struct {
	mu sync.Mutex

	Responses map[string]Response
	Handler   func(argv []string) (string, error)
	Strict    bool

	Calls [][]string
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{Responses: make(map[string]Response)}
}

// On scripts the reply for an exact command line.
func (f *Fake) On(cmdline, stdout string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[cmdline] = Response{Stdout: stdout, Err: err}
	return f
}

// Fail scripts a non-zero exit for an exact command line.
func (f *Fake) Fail(cmdline, stderr string) *Fake {
	return f.On(cmdline, "", &runner.ExitError{
		Argv:     strings.Fields(cmdline),
		ExitCode: 1,
		Stderr:   stderr,
	})
}

// Run implements runner.Runner.
func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	out, err := f.reply(name, args)
	return []byte(out), err
}

// Stream implements runner.Runner.
func (f *Fake) Stream(_ context.Context, w io.Writer, name string, args ...string) error {
	out, err := f.reply(name, args)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Count returns how many recorded calls start with prefix.
func (f *Fake) Count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			n++
		}
	}
	return n
}

// Called reports whether an exact command line was executed.
func (f *Fake) Called(cmdline string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if strings.Join(c, " ") == cmdline {
			return true
		}
	}
	return false
}

func (f *Fake) reply(name string, args []string) (string, error) {
	argv := append([]string{name}, args...)

	f.mu.Lock()
	f.Calls = append(f.Calls, argv)
	resp, ok := f.Responses[strings.Join(argv, " ")]
	handler := f.Handler
	strict := f.Strict
	f.mu.Unlock()

	if ok {
		return resp.Stdout, resp.Err
	}
	if handler != nil {
		return handler(argv)
	}
	if strict {
		return "", fmt.Errorf("unexpected command: %s", strings.Join(argv, " "))
	}
	return "", nil
}
