package modules

import (
	"context"
	"fmt"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// PackageModule converges package presence through apt.
//
// Params:
//
//	name   package name (required)
//	state  present|absent (default present)
type PackageModule struct{}

func (PackageModule) Name() string { return "package" }

func (PackageModule) Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error) {
	name, state, err := packageParams(task)
	if err != nil {
		return false, err
	}

	res, err := run(ctx, sess, task, fmt.Sprintf("dpkg-query -W -f '${Status}' %s 2>/dev/null", shQuote(name)))
	if err != nil {
		return false, err
	}
	installed := res.ExitCode == 0 && firstLine(res.Stdout) == "install ok installed"

	if state == "present" {
		return installed, nil
	}
	return !installed, nil
}

func (PackageModule) Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error {
	name, state, err := packageParams(task)
	if err != nil {
		return err
	}

	var cmd string
	if state == "present" {
		cmd = fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", shQuote(name))
	} else {
		cmd = fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get remove -y %s", shQuote(name))
	}

	res, err := run(ctx, sess, task, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return capErr(task, "apt-get exited %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	return nil
}

func packageParams(task types.TaskDefinition) (name, state string, err error) {
	name, ok := task.StringParam("name")
	if !ok {
		return "", "", capErr(task, "missing 'name' parameter")
	}
	state, _ = task.StringParam("state")
	switch state {
	case "":
		state = "present"
	case "present", "absent":
	default:
		return "", "", capErr(task, "unknown state %q", state)
	}
	return name, state, nil
}
