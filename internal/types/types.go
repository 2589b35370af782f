package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host represents one machine in the inventory.
type Host struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"` // Optional SSH key path
}

// UnmarshalYAML accepts either a full mapping or a shorthand scalar of the
// form "10.0.0.1 user=admin port=2222 key=~/.ssh/id_ed25519".
func (h *Host) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		type plain Host
		return node.Decode((*plain)(h))
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("host entry must be a mapping or a string, got %s", nodeKind(node))
	}
	fields := strings.Fields(node.Value)
	if len(fields) == 0 {
		return fmt.Errorf("empty host entry")
	}
	h.Name = fields[0]
	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("host %q: attribute %q is not key=value", h.Name, f)
		}
		switch key {
		case "user":
			h.User = val
		case "password":
			h.Password = val
		case "port":
			p, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("host %q: invalid port %q", h.Name, val)
			}
			h.Port = p
		case "key", "key_path":
			h.KeyPath = val
		default:
			return fmt.Errorf("host %q: unknown attribute %q", h.Name, key)
		}
	}
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "unknown node"
	}
}

// Group is a named, ordered set of hosts.
type Group struct {
	Name  string
	Hosts []Host
}

// Inventory maps logical group names to target hosts. Groups and the hosts
// within them keep their declaration order.
type Inventory struct {
	Groups []Group
}

// Group returns the named group, or (zero, false) when absent. The implicit
// "all" group is the concatenation of every declared group in order.
func (inv *Inventory) Group(name string) (Group, bool) {
	if name == "all" {
		all := Group{Name: "all"}
		for _, g := range inv.Groups {
			all.Hosts = append(all.Hosts, g.Hosts...)
		}
		return all, true
	}
	for _, g := range inv.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// TaskDefinition describes a single task or handler to run on a host.
type TaskDefinition struct {
	Name   string                 `json:"name"   yaml:"name"`
	Module string                 `json:"module" yaml:"module"`
	Params map[string]interface{} `json:"params" yaml:"params"`
	Notify []string               `json:"notify,omitempty" yaml:"notify,omitempty"`
	Become bool                   `json:"become" yaml:"become"`

	// BaseDir anchors relative file sources (a role's files/ directory).
	// Set by the playbook loader, never from YAML.
	BaseDir string `json:"-" yaml:"-"`
}

// StringParam returns the named parameter coerced to a string, with ok=false
// when the parameter is missing or not a non-empty string.
func (t TaskDefinition) StringParam(key string) (string, bool) {
	v, ok := t.Params[key].(string)
	return v, ok && v != ""
}

// BoolParam returns the named boolean parameter, defaulting to false.
func (t TaskDefinition) BoolParam(key string) bool {
	v, _ := t.Params[key].(bool)
	return v
}

// Role is a named, reusable bundle of tasks and handlers.
type Role struct {
	Name     string
	Tasks    []TaskDefinition
	Handlers []TaskDefinition
}

// Play applies roles (and optional inline tasks) to one inventory group.
type Play struct {
	Name     string           `yaml:"name"`
	Hosts    string           `yaml:"hosts"`
	Become   bool             `yaml:"become"`
	Roles    []string         `yaml:"roles,omitempty"`
	Tasks    []TaskDefinition `yaml:"tasks,omitempty"`
	Handlers []TaskDefinition `yaml:"handlers,omitempty"`

	// Loaded role content, resolved by the playbook loader.
	LoadedRoles []Role `yaml:"-"`
}

// AllTasks returns the play's tasks in execution order: role tasks in role
// order, then inline tasks.
func (p Play) AllTasks() []TaskDefinition {
	var out []TaskDefinition
	for _, r := range p.LoadedRoles {
		out = append(out, r.Tasks...)
	}
	return append(out, p.Tasks...)
}

// AllHandlers returns the play's handlers in declaration order: role handlers
// in role order, then inline handlers.
func (p Play) AllHandlers() []TaskDefinition {
	var out []TaskDefinition
	for _, r := range p.LoadedRoles {
		out = append(out, r.Handlers...)
	}
	return append(out, p.Handlers...)
}

// Playbook holds an ordered list of plays.
type Playbook struct {
	Plays []Play
}

// TaskResult is what each module application returns.
type TaskResult struct {
	TaskName string `json:"task_name"`
	Module   string `json:"module"`
	Changed  bool   `json:"changed"`
	Failed   bool   `json:"failed"`
	Msg      string `json:"msg"`
}

// HostOutcome classifies one host's convergence run.
type HostOutcome string

const (
	OutcomeSuccess     HostOutcome = "success"
	OutcomeFailed      HostOutcome = "failed"
	OutcomeUnreachable HostOutcome = "unreachable"
)

// HostReport collects everything that happened on one host.
type HostReport struct {
	Host    Host         `json:"host"`
	Outcome HostOutcome  `json:"outcome"`
	Results []TaskResult `json:"results"`
	// Msg holds the connection error for unreachable hosts, or the first
	// failing task's message for failed hosts.
	Msg string `json:"msg,omitempty"`
}

// Changed counts results that reported a change.
func (r HostReport) Changed() int {
	n := 0
	for _, res := range r.Results {
		if res.Changed {
			n++
		}
	}
	return n
}

// RunReport aggregates per-host reports for one convergence run.
type RunReport struct {
	RunID string       `json:"run_id"`
	Hosts []HostReport `json:"hosts"`
}

// Success reports whether every host converged.
func (r *RunReport) Success() bool {
	for _, h := range r.Hosts {
		if h.Outcome != OutcomeSuccess {
			return false
		}
	}
	return true
}
