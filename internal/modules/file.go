package modules

import (
	"context"
	"fmt"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// FileModule converges remote path state.
//
// Params:
//
//	path   remote path (required)
//	state  touch|directory|absent|link (default touch)
//	src    link target, required for state=link
type FileModule struct{}

func (FileModule) Name() string { return "file" }

func (FileModule) Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error) {
	path, state, src, err := fileParams(task)
	if err != nil {
		return false, err
	}

	var probe string
	switch state {
	case "touch":
		probe = fmt.Sprintf("test -f %s", shQuote(path))
	case "directory":
		probe = fmt.Sprintf("test -d %s", shQuote(path))
	case "absent":
		probe = fmt.Sprintf("test ! -e %s", shQuote(path))
	case "link":
		probe = fmt.Sprintf("test %s = \"$(readlink %s)\"", shQuote(src), shQuote(path))
	}

	res, err := run(ctx, sess, task, probe)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (FileModule) Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error {
	path, state, src, err := fileParams(task)
	if err != nil {
		return err
	}

	var cmd string
	switch state {
	case "touch":
		cmd = fmt.Sprintf("touch %s", shQuote(path))
	case "directory":
		cmd = fmt.Sprintf("mkdir -p %s", shQuote(path))
	case "absent":
		cmd = fmt.Sprintf("rm -rf %s", shQuote(path))
	case "link":
		cmd = fmt.Sprintf("ln -sfn %s %s", shQuote(src), shQuote(path))
	}

	res, err := run(ctx, sess, task, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return capErr(task, "%s exited %d: %s", state, res.ExitCode, firstLine(res.Stderr))
	}
	return nil
}

func fileParams(task types.TaskDefinition) (path, state, src string, err error) {
	path, ok := task.StringParam("path")
	if !ok {
		return "", "", "", capErr(task, "missing 'path' parameter")
	}
	state, _ = task.StringParam("state")
	switch state {
	case "":
		state = "touch"
	case "touch", "directory", "absent":
	case "link":
		if src, ok = task.StringParam("src"); !ok {
			return "", "", "", capErr(task, "state=link requires 'src'")
		}
	default:
		return "", "", "", capErr(task, "unknown state %q", state)
	}
	return path, state, src, nil
}
