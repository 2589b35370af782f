// Package executor applies an ordered task sequence to one host and runs the
// handlers those tasks notified. Convergence on a host is a pure function of
// (session, tasks, handlers): notifications travel as return values, never as
// shared state.
package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/eniac111/converge/internal/logger"
	"github.com/eniac111/converge/internal/modules"
	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// Executor drives modules against one host's session.
type Executor struct {
	Registry *modules.Registry
	// CheckMode runs only the idempotency checks: an unsatisfied state is
	// reported as changed without applying anything.
	CheckMode bool
}

func New(reg *modules.Registry) *Executor {
	return &Executor{Registry: reg}
}

// Apply runs tasks in declared order. The first failure halts the remaining
// tasks and comes back as the last result. Notified handler names are
// returned deduplicated, in first-notified order.
func (e *Executor) Apply(ctx context.Context, sess transport.Session, tasks []types.TaskDefinition) ([]types.TaskResult, []string) {
	var results []types.TaskResult
	var notified []string
	seen := make(map[string]bool)

	for _, task := range tasks {
		res := e.applyOne(ctx, sess, task)
		results = append(results, res)
		if res.Failed {
			break
		}
		if res.Changed {
			for _, h := range task.Notify {
				if !seen[h] {
					seen[h] = true
					notified = append(notified, h)
				}
			}
		}
	}
	return results, notified
}

// RunHandlers runs each notified handler exactly once, in handler-declaration
// order. Notified names with no matching handler log a warning and are
// skipped. A handler failure halts the remaining handlers, mirroring the
// task fail-fast contract.
func (e *Executor) RunHandlers(ctx context.Context, sess transport.Session, notified []string, handlers []types.TaskDefinition) []types.TaskResult {
	if len(notified) == 0 {
		return nil
	}

	want := make(map[string]bool, len(notified))
	for _, n := range notified {
		want[n] = true
	}

	var results []types.TaskResult
	for _, h := range handlers {
		if !want[h.Name] {
			continue
		}
		delete(want, h.Name)

		res := e.applyOne(ctx, sess, h)
		results = append(results, res)
		if res.Failed {
			return results
		}
	}

	for name := range want {
		logger.L().Warn("notified handler not found", zap.String("handler", name))
	}
	return results
}

func (e *Executor) applyOne(ctx context.Context, sess transport.Session, task types.TaskDefinition) types.TaskResult {
	res := types.TaskResult{
		TaskName: task.Name,
		Module:   task.Module,
	}

	mod, ok := e.Registry.Get(task.Module)
	if !ok {
		res.Failed = true
		res.Msg = "unknown module '" + task.Module + "'"
		return res
	}

	satisfied, err := mod.Check(ctx, sess, task)
	if err != nil {
		res.Failed = true
		res.Msg = err.Error()
		return res
	}
	if satisfied {
		res.Msg = "already converged"
		return res
	}

	if e.CheckMode {
		res.Changed = true
		res.Msg = "would change (check mode)"
		return res
	}

	if err := mod.Apply(ctx, sess, task); err != nil {
		res.Failed = true
		res.Msg = err.Error()
		return res
	}
	res.Changed = true
	res.Msg = "converged"
	return res
}
