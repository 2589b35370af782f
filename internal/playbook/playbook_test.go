package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/converge/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeNginxRole(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "roles", "nginx", "tasks", "main.yaml"), `
- name: install nginx
  module: package
  params:
    name: nginx
  notify:
    - restart nginx

- name: deploy landing page
  module: copy
  params:
    src: index.html
    dest: /var/www/html/index.html
`)
	writeFile(t, filepath.Join(dir, "roles", "nginx", "handlers", "main.yaml"), `
- name: restart nginx
  module: service
  params:
    name: nginx
    state: restarted
`)
}

func TestLoadPlaybookWithRole(t *testing.T) {
	dir := t.TempDir()
	writeNginxRole(t, dir)
	pbPath := filepath.Join(dir, "site.yaml")
	writeFile(t, pbPath, `
- name: configure web servers
  hosts: web
  become: true
  roles:
    - nginx
`)

	pb, err := Load(pbPath)
	require.NoError(t, err)
	require.Len(t, pb.Plays, 1)

	play := pb.Plays[0]
	assert.Equal(t, "web", play.Hosts)

	tasks := play.AllTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "install nginx", tasks[0].Name)
	assert.Equal(t, []string{"restart nginx"}, tasks[0].Notify)
	assert.True(t, tasks[0].Become, "play-level become should propagate to role tasks")
	assert.Equal(t, filepath.Join(dir, "roles", "nginx", "files"), tasks[1].BaseDir)

	handlers := play.AllHandlers()
	require.Len(t, handlers, 1)
	assert.Equal(t, "restart nginx", handlers[0].Name)
	assert.True(t, handlers[0].Become)
}

func TestTaskLevelBecomeSurvivesWithoutPlayBecome(t *testing.T) {
	dir := t.TempDir()
	pbPath := filepath.Join(dir, "site.yaml")
	writeFile(t, pbPath, `
- name: mixed privileges
  hosts: all
  tasks:
    - name: unprivileged
      module: command
      params:
        cmd: whoami
    - name: privileged
      module: command
      become: true
      params:
        cmd: whoami
`)

	pb, err := Load(pbPath)
	require.NoError(t, err)

	tasks := pb.Plays[0].AllTasks()
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].Become)
	assert.True(t, tasks[1].Become)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeNginxRole(t, dir)

	cases := []struct {
		name     string
		playbook string
	}{
		{"missing role", "- name: p\n  hosts: web\n  roles: [ghost]"},
		{"missing hosts", "- name: p\n  roles: [nginx]"},
		{"no plays", ""},
		{"task without module", "- name: p\n  hosts: web\n  tasks:\n    - name: broken"},
		{"handler without name", "- name: p\n  hosts: web\n  tasks:\n    - name: t\n      module: command\n  handlers:\n    - module: service"},
		{"no tasks", "- name: p\n  hosts: web"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pbPath := filepath.Join(dir, "case"+string(rune('a'+i))+".yaml")
			writeFile(t, pbPath, tc.playbook)
			_, err := Load(pbPath)
			var parseErr *types.ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}
