// Package modules implements the capability modules the executor dispatches
// to: package presence, file presence, service state, and a raw command
// escape hatch. Every module splits its work into an idempotency check and
// an apply step so repeated runs against a converged host report no change.
package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// Module is one capability. Check reports whether the host already matches
// the desired state; Apply converges it. Apply is only called when Check
// returned false.
type Module interface {
	Name() string
	Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error)
	Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error
}

// CapabilityError reports a per-task failure: bad parameters or a converge
// step that did not take. It halts the remaining tasks for that host.
type CapabilityError struct {
	Module string
	Task   string
	Msg    string
	Err    error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %s: %v", e.Module, e.Task, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", e.Module, e.Task, e.Msg)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

func capErr(task types.TaskDefinition, format string, args ...interface{}) *CapabilityError {
	return &CapabilityError{Module: task.Module, Task: task.Name, Msg: fmt.Sprintf(format, args...)}
}

func capWrap(task types.TaskDefinition, err error, msg string) *CapabilityError {
	return &CapabilityError{Module: task.Module, Task: task.Name, Msg: msg, Err: err}
}

// Registry maps module keywords to implementations.
type Registry struct {
	byName map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Module)}
}

// DefaultRegistry returns a registry with all built-in modules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PackageModule{})
	r.Register(CopyModule{})
	r.Register(FileModule{})
	r.Register(ServiceModule{})
	r.Register(CommandModule{})
	return r
}

func (r *Registry) Register(m Module) {
	r.byName[m.Name()] = m
}

func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// run executes a remote command, wrapping it in sudo when the task elevates.
func run(ctx context.Context, sess transport.Session, task types.TaskDefinition, cmd string) (transport.ExecResult, error) {
	if task.Become {
		cmd = "sudo -n sh -c " + shQuote(cmd)
	}
	return sess.Run(ctx, cmd)
}

// shQuote single-quotes s for POSIX sh.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
