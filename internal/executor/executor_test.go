package executor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/converge/internal/modules"
	"github.com/eniac111/converge/internal/transport"
	"github.com/eniac111/converge/internal/types"
)

type nopSession struct{}

func (nopSession) Run(context.Context, string) (transport.ExecResult, error) {
	return transport.ExecResult{}, nil
}
func (nopSession) Upload(context.Context, io.Reader, string, fs.FileMode) error { return nil }
func (nopSession) Close() error                                                 { return nil }

// fakeModule scripts Check/Apply per task name and records apply calls.
type fakeModule struct {
	name      string
	satisfied map[string]bool
	applyErr  map[string]error
	applied   []string
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Check(_ context.Context, _ transport.Session, task types.TaskDefinition) (bool, error) {
	return m.satisfied[task.Name], nil
}

func (m *fakeModule) Apply(_ context.Context, _ transport.Session, task types.TaskDefinition) error {
	m.applied = append(m.applied, task.Name)
	if err := m.applyErr[task.Name]; err != nil {
		return err
	}
	// Applying converges the state: the next Check is satisfied.
	if m.satisfied == nil {
		m.satisfied = make(map[string]bool)
	}
	m.satisfied[task.Name] = true
	return nil
}

func newEnv(mod *fakeModule) (*Executor, transport.Session) {
	reg := modules.NewRegistry()
	reg.Register(mod)
	return New(reg), nopSession{}
}

func tasks(names ...string) []types.TaskDefinition {
	out := make([]types.TaskDefinition, len(names))
	for i, n := range names {
		out[i] = types.TaskDefinition{Name: n, Module: "fake"}
	}
	return out
}

func TestApplyReportsChangesInOrder(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)

	results, notified := exec.Apply(context.Background(), sess, tasks("a", "b"))
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].TaskName)
	assert.Equal(t, "b", results[1].TaskName)
	for _, r := range results {
		assert.True(t, r.Changed)
		assert.False(t, r.Failed)
	}
	assert.Empty(t, notified)
	assert.Equal(t, []string{"a", "b"}, mod.applied)
}

func TestApplyIsIdempotent(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)
	seq := tasks("a", "b", "c")

	first, _ := exec.Apply(context.Background(), sess, seq)
	for _, r := range first {
		require.True(t, r.Changed)
	}

	second, notified := exec.Apply(context.Background(), sess, seq)
	require.Len(t, second, 3)
	for _, r := range second {
		assert.False(t, r.Changed, r.TaskName)
		assert.False(t, r.Failed, r.TaskName)
	}
	assert.Empty(t, notified, "unchanged tasks must not notify")
	assert.Len(t, mod.applied, 3, "second run must not re-apply")
}

func TestApplyFailFast(t *testing.T) {
	mod := &fakeModule{
		name:     "fake",
		applyErr: map[string]error{"b": errors.New("boom")},
	}
	exec, sess := newEnv(mod)

	results, notified := exec.Apply(context.Background(), sess, tasks("a", "b", "c"))
	require.Len(t, results, 2, "c must never be attempted")
	assert.True(t, results[0].Changed)
	assert.True(t, results[1].Failed)
	assert.Contains(t, results[1].Msg, "boom")
	assert.NotContains(t, mod.applied, "c")
	assert.Empty(t, notified)
}

func TestApplyCollectsDeduplicatedNotifications(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)

	seq := tasks("a", "b", "c")
	seq[0].Notify = []string{"restart nginx"}
	seq[1].Notify = []string{"restart nginx", "reload firewall"}
	seq[2].Notify = []string{"restart nginx"}

	_, notified := exec.Apply(context.Background(), sess, seq)
	assert.Equal(t, []string{"restart nginx", "reload firewall"}, notified)
}

func TestUnchangedTaskDoesNotNotify(t *testing.T) {
	mod := &fakeModule{name: "fake", satisfied: map[string]bool{"a": true}}
	exec, sess := newEnv(mod)

	seq := tasks("a")
	seq[0].Notify = []string{"restart nginx"}

	results, notified := exec.Apply(context.Background(), sess, seq)
	assert.False(t, results[0].Changed)
	assert.Empty(t, notified)
}

func TestRunHandlersDeclarationOrderAndDedup(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)

	handlers := tasks("h1", "h2", "h3")

	// Notified out of declaration order; h3 not notified at all.
	results := exec.RunHandlers(context.Background(), sess, []string{"h2", "h1"}, handlers)
	require.Len(t, results, 2)
	assert.Equal(t, "h1", results[0].TaskName)
	assert.Equal(t, "h2", results[1].TaskName)
	assert.Equal(t, []string{"h1", "h2"}, mod.applied)
}

func TestRunHandlersUnknownNameIsNonFatal(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)

	results := exec.RunHandlers(context.Background(), sess, []string{"ghost", "h1"}, tasks("h1"))
	require.Len(t, results, 1)
	assert.Equal(t, "h1", results[0].TaskName)
	assert.False(t, results[0].Failed)
}

func TestRunHandlersNothingNotified(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	exec, sess := newEnv(mod)

	results := exec.RunHandlers(context.Background(), sess, nil, tasks("h1"))
	assert.Empty(t, results)
	assert.Empty(t, mod.applied)
}

func TestUnknownModuleFailsTask(t *testing.T) {
	exec, sess := newEnv(&fakeModule{name: "fake"})

	results, _ := exec.Apply(context.Background(), sess, []types.TaskDefinition{{Name: "t", Module: "ghost"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed)
	assert.Contains(t, results[0].Msg, "unknown module")
}

func TestCheckModeNeverApplies(t *testing.T) {
	mod := &fakeModule{name: "fake"}
	reg := modules.NewRegistry()
	reg.Register(mod)
	exec := &Executor{Registry: reg, CheckMode: true}

	results, notified := exec.Apply(context.Background(), nopSession{}, tasks("a", "b"))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Changed)
	}
	assert.Empty(t, mod.applied)
	assert.Empty(t, notified)
}
