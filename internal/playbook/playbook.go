// Package playbook loads plays and the roles they reference.
//
// A playbook is a YAML list of plays. Roles resolve against a roles/
// directory next to the playbook file:
//
//	roles/<name>/tasks/main.yaml     ordered task list
//	roles/<name>/handlers/main.yaml  handler list (optional)
//	roles/<name>/files/              base dir for relative copy sources
package playbook

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/eniac111/converge/internal/types"
)

// Load reads the playbook at path and resolves every referenced role.
func Load(path string) (*types.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ParseError{Source: path, Err: err}
	}
	return parse(data, path, filepath.Join(filepath.Dir(path), "roles"))
}

func parse(data []byte, source, rolesDir string) (*types.Playbook, error) {
	var plays []types.Play
	if err := yaml.Unmarshal(data, &plays); err != nil {
		return nil, &types.ParseError{Source: source, Err: err}
	}
	if len(plays) == 0 {
		return nil, &types.ParseError{Source: source, Err: fmt.Errorf("playbook has no plays")}
	}

	for i := range plays {
		play := &plays[i]
		if play.Hosts == "" {
			return nil, &types.ParseError{Source: source, Err: fmt.Errorf("play %q: missing hosts", play.Name)}
		}
		for _, name := range play.Roles {
			role, err := loadRole(rolesDir, name, play.Become)
			if err != nil {
				return nil, err
			}
			play.LoadedRoles = append(play.LoadedRoles, role)
		}
		normalize(play.Tasks, play.Become, "")
		normalize(play.Handlers, play.Become, "")
		if err := validate(play, source); err != nil {
			return nil, err
		}
	}
	return &types.Playbook{Plays: plays}, nil
}

func loadRole(rolesDir, name string, become bool) (types.Role, error) {
	role := types.Role{Name: name}
	base := filepath.Join(rolesDir, name)

	tasksPath := filepath.Join(base, "tasks", "main.yaml")
	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return role, &types.ParseError{Source: tasksPath, Err: fmt.Errorf("role %q: %w", name, err)}
	}
	if err := yaml.Unmarshal(data, &role.Tasks); err != nil {
		return role, &types.ParseError{Source: tasksPath, Err: err}
	}

	// Handlers are optional.
	handlersPath := filepath.Join(base, "handlers", "main.yaml")
	if data, err := os.ReadFile(handlersPath); err == nil {
		if err := yaml.Unmarshal(data, &role.Handlers); err != nil {
			return role, &types.ParseError{Source: handlersPath, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return role, &types.ParseError{Source: handlersPath, Err: err}
	}

	filesDir := filepath.Join(base, "files")
	normalize(role.Tasks, become, filesDir)
	normalize(role.Handlers, become, filesDir)
	return role, nil
}

// normalize propagates play-level become to tasks that do not set it and
// stamps the base dir for relative file sources.
func normalize(tasks []types.TaskDefinition, become bool, baseDir string) {
	for i := range tasks {
		if become {
			tasks[i].Become = true
		}
		tasks[i].BaseDir = baseDir
	}
}

func validate(play *types.Play, source string) error {
	for _, t := range play.AllTasks() {
		if t.Module == "" {
			return &types.ParseError{Source: source, Err: fmt.Errorf("play %q: task %q has no module", play.Name, t.Name)}
		}
	}
	for _, h := range play.AllHandlers() {
		if h.Name == "" {
			return &types.ParseError{Source: source, Err: fmt.Errorf("play %q: handler without a name", play.Name)}
		}
		if h.Module == "" {
			return &types.ParseError{Source: source, Err: fmt.Errorf("play %q: handler %q has no module", play.Name, h.Name)}
		}
	}
	if len(play.AllTasks()) == 0 {
		return &types.ParseError{Source: source, Err: fmt.Errorf("play %q: no tasks", play.Name)}
	}
	return nil
}
