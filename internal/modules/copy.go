package modules

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

// CopyModule converges file presence: the remote dest must hold the same
// content as the local src. The comparison is a sha256 of both sides, so an
// already-converged file is never re-uploaded.
//
// Params:
//
//	src   local file (required; relative paths resolve against the role's files/ dir)
//	dest  remote path (required)
//	mode  octal permission string, e.g. "0644" (optional)
type CopyModule struct{}

func (CopyModule) Name() string { return "copy" }

func (m CopyModule) Check(ctx context.Context, sess transport.Session, task types.TaskDefinition) (bool, error) {
	src, dest, _, err := copyParams(task)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, capWrap(task, err, "read source")
	}
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	res, err := run(ctx, sess, task, fmt.Sprintf("sha256sum %s 2>/dev/null", shQuote(dest)))
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		// Missing file: not converged.
		return false, nil
	}
	got, _, _ := strings.Cut(firstLine(res.Stdout), " ")
	return got == want, nil
}

func (m CopyModule) Apply(ctx context.Context, sess transport.Session, task types.TaskDefinition) error {
	src, dest, mode, err := copyParams(task)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return capWrap(task, err, "read source")
	}

	// Upload to a staging path owned by the login user, then move into
	// place so become-tasks can write root-owned destinations.
	sum := sha256.Sum256(data)
	staging := "/tmp/.converge-" + hex.EncodeToString(sum[:8])
	if err := sess.Upload(ctx, bytes.NewReader(data), staging, 0o600); err != nil {
		return err
	}

	cmd := fmt.Sprintf("mv %s %s", shQuote(staging), shQuote(dest))
	if mode != 0 {
		cmd += fmt.Sprintf(" && chmod %o %s", mode, shQuote(dest))
	}
	res, err := run(ctx, sess, task, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return capErr(task, "install %s exited %d: %s", dest, res.ExitCode, firstLine(res.Stderr))
	}
	return nil
}

func copyParams(task types.TaskDefinition) (src, dest string, mode fs.FileMode, err error) {
	src, ok := task.StringParam("src")
	if !ok {
		return "", "", 0, capErr(task, "missing 'src' parameter")
	}
	dest, ok = task.StringParam("dest")
	if !ok {
		return "", "", 0, capErr(task, "missing 'dest' parameter")
	}
	if !filepath.IsAbs(src) && task.BaseDir != "" {
		src = filepath.Join(task.BaseDir, src)
	}
	if modeStr, ok := task.StringParam("mode"); ok {
		v, perr := strconv.ParseUint(modeStr, 8, 32)
		if perr != nil {
			return "", "", 0, capErr(task, "invalid mode %q", modeStr)
		}
		mode = fs.FileMode(v)
	}
	return src, dest, mode, nil
}
