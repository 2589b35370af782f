package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// ServiceModule converges service state through systemctl.
//
// Params:
//
//	name     unit name (required)
//	state    started|stopped|restarted|reloaded (default started)
//	enabled  also enable/disable the unit at boot (optional bool)
//
// restarted and reloaded are actions, not states: Check never reports them
// satisfied, which is what change-notified handlers rely on.
type ServiceModule struct{}

func (ServiceModule) Name() string { return "service" }

func (ServiceModule) Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error) {
	name, state, enabled, err := serviceParams(task)
	if err != nil {
		return false, err
	}
	if state == "restarted" || state == "reloaded" {
		return false, nil
	}

	res, err := run(ctx, sess, task, fmt.Sprintf("systemctl is-active %s", shQuote(name)))
	if err != nil {
		return false, err
	}
	active := res.ExitCode == 0
	if state == "started" && !active {
		return false, nil
	}
	if state == "stopped" && active {
		return false, nil
	}

	if enabled != nil {
		res, err := run(ctx, sess, task, fmt.Sprintf("systemctl is-enabled %s", shQuote(name)))
		if err != nil {
			return false, err
		}
		if (res.ExitCode == 0) != *enabled {
			return false, nil
		}
	}
	return true, nil
}

func (ServiceModule) Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error {
	name, state, enabled, err := serviceParams(task)
	if err != nil {
		return err
	}

	var actions []string
	switch state {
	case "started":
		actions = append(actions, "start")
	case "stopped":
		actions = append(actions, "stop")
	case "restarted":
		actions = append(actions, "restart")
	case "reloaded":
		actions = append(actions, "reload")
	}
	if enabled != nil {
		if *enabled {
			actions = append(actions, "enable")
		} else {
			actions = append(actions, "disable")
		}
	}

	var cmds []string
	for _, a := range actions {
		cmds = append(cmds, fmt.Sprintf("systemctl %s %s", a, shQuote(name)))
	}
	res, err := run(ctx, sess, task, strings.Join(cmds, " && "))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return capErr(task, "systemctl exited %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	return nil
}

func serviceParams(task types.TaskDefinition) (name, state string, enabled *bool, err error) {
	name, ok := task.StringParam("name")
	if !ok {
		return "", "", nil, capErr(task, "missing 'name' parameter")
	}
	state, _ = task.StringParam("state")
	switch state {
	case "":
		state = "started"
	case "started", "stopped", "restarted", "reloaded":
	default:
		return "", "", nil, capErr(task, "unknown state %q", state)
	}
	if v, present := task.Params["enabled"]; present {
		b, ok := v.(bool)
		if !ok {
			return "", "", nil, capErr(task, "'enabled' must be a boolean")
		}
		enabled = &b
	}
	return name, state, enabled, nil
}
