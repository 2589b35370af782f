// Package runner fans a playbook out over the resolved hosts and aggregates
// per-host outcomes. Hosts converge independently: one host failing or being
// unreachable never aborts the others.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/eniac111/converge/internal/executor"
	"github.com/eniac111/converge/internal/logger"
	"github.com/eniac111/converge/internal/modules"
	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

const defaultForks = 5

// Runner executes playbooks.
type Runner struct {
	Dialer   transport.Dialer
	Registry *modules.Registry
	// Forks bounds how many hosts converge at once. Zero means the default.
	Forks     int
	CheckMode bool
}

func New(dialer transport.Dialer) *Runner {
	return &Runner{Dialer: dialer, Registry: modules.DefaultRegistry()}
}

// Run converges every host targeted by the playbook. The report always covers
// every targeted host; the returned error aggregates the non-success hosts
// and is nil only when all of them converged. A play naming an unknown group
// is a ParseError and aborts before any host is dialed.
func (r *Runner) Run(ctx context.Context, inv *types.Inventory, pb *types.Playbook) (*types.RunReport, error) {
	report := &types.RunReport{RunID: uuid.NewString()}

	for _, play := range pb.Plays {
		group, ok := inv.Group(play.Hosts)
		if !ok {
			return nil, &types.ParseError{
				Source: "playbook",
				Err:    fmt.Errorf("play %q targets unknown group %q", play.Name, play.Hosts),
			}
		}

		hostReports := r.runPlay(ctx, play, group.Hosts)
		report.Hosts = append(report.Hosts, hostReports...)
	}

	var runErr *multierror.Error
	for _, h := range report.Hosts {
		if h.Outcome != types.OutcomeSuccess {
			runErr = multierror.Append(runErr, fmt.Errorf("%s: %s: %s", h.Host.Name, h.Outcome, h.Msg))
		}
	}
	return report, runErr.ErrorOrNil()
}

func (r *Runner) runPlay(ctx context.Context, play types.Play, hosts []types.Host) []types.HostReport {
	forks := r.Forks
	if forks <= 0 {
		forks = defaultForks
	}

	tasks := play.AllTasks()
	handlers := play.AllHandlers()

	reports := make([]types.HostReport, len(hosts))
	sem := make(chan struct{}, forks)
	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host types.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = r.converge(ctx, host, tasks, handlers)
		}(i, host)
	}
	wg.Wait()
	return reports
}

// converge runs one host start to finish. Once started it always runs to
// completion; cancellation only takes effect at the transport boundary.
func (r *Runner) converge(ctx context.Context, host types.Host, tasks, handlers []types.TaskDefinition) types.HostReport {
	log := logger.L().With(zap.String("host", host.Name))
	report := types.HostReport{Host: host}

	sess, err := r.Dialer.Dial(ctx, host.Name, transport.ConnConfig{
		User:     host.User,
		Password: host.Password,
		Port:     host.Port,
		KeyPath:  host.KeyPath,
	})
	if err != nil {
		var connErr *transport.ConnectionError
		if !errors.As(err, &connErr) {
			connErr = &transport.ConnectionError{Addr: host.Name, Err: err}
		}
		log.Warn("host unreachable", zap.Error(connErr))
		report.Outcome = types.OutcomeUnreachable
		report.Msg = connErr.Error()
		return report
	}
	defer sess.Close()

	exec := &executor.Executor{Registry: r.Registry, CheckMode: r.CheckMode}

	results, notified := exec.Apply(ctx, sess, tasks)
	report.Results = results
	if n := len(results); n > 0 && results[n-1].Failed {
		last := results[n-1]
		log.Error("task failed", zap.String("task", last.TaskName), zap.String("msg", last.Msg))
		report.Outcome = types.OutcomeFailed
		report.Msg = fmt.Sprintf("task %q: %s", last.TaskName, last.Msg)
		return report
	}

	handlerResults := exec.RunHandlers(ctx, sess, notified, handlers)
	report.Results = append(report.Results, handlerResults...)
	if n := len(handlerResults); n > 0 && handlerResults[n-1].Failed {
		last := handlerResults[n-1]
		log.Error("handler failed", zap.String("handler", last.TaskName), zap.String("msg", last.Msg))
		report.Outcome = types.OutcomeFailed
		report.Msg = fmt.Sprintf("handler %q: %s", last.TaskName, last.Msg)
		return report
	}

	log.Info("host converged", zap.Int("changed", report.Changed()), zap.Int("tasks", len(report.Results)))
	report.Outcome = types.OutcomeSuccess
	return report
}
