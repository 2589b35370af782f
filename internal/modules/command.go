package modules

import (
	"context"
	"fmt"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// CommandModule runs a raw remote command. Without a guard it always reports
// a change; the 'creates' param makes it idempotent.
//
// Params:
//
//	cmd      command line (required)
//	creates  remote path; the command is skipped when it exists (optional)
type CommandModule struct{}

func (CommandModule) Name() string { return "command" }

func (CommandModule) Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error) {
	if _, ok := task.StringParam("cmd"); !ok {
		return false, capErr(task, "missing 'cmd' parameter")
	}
	creates, ok := task.StringParam("creates")
	if !ok {
		return false, nil
	}
	res, err := run(ctx, sess, task, fmt.Sprintf("test -e %s", shQuote(creates)))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (CommandModule) Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error {
	cmd, _ := task.StringParam("cmd")
	res, err := run(ctx, sess, task, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return capErr(task, "command exited %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	return nil
}
