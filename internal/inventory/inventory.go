// Package inventory parses the static host inventory.
//
// The source is a YAML mapping of group name to host list. A host entry is
// either a mapping with explicit fields or a shorthand line:
//
//	web:
//	  - 10.0.0.1 user=admin key=~/.ssh/deploy
//	  - name: 10.0.0.2
//	    user: root
//	    port: 2222
//
// Parsing is pure: no network access, no host resolution. Groups and hosts
// keep their declaration order.
package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eniac111/converge/internal/types"
)

// Load reads and parses the inventory file at path.
func Load(path string) (*types.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ParseError{Source: path, Err: err}
	}
	return Parse(data, path)
}

// Parse parses inventory bytes. Source names the origin for error messages.
func Parse(data []byte, source string) (*types.Inventory, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &types.ParseError{Source: source, Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, &types.ParseError{Source: source, Err: fmt.Errorf("empty inventory")}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &types.ParseError{Source: source, Err: fmt.Errorf("inventory must be a mapping of group name to host list")}
	}

	inv := &types.Inventory{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		if name == "all" {
			return nil, &types.ParseError{Source: source, Err: fmt.Errorf("line %d: group name %q is reserved", keyNode.Line, name)}
		}
		if _, ok := inv.Group(name); ok {
			return nil, &types.ParseError{Source: source, Err: fmt.Errorf("line %d: duplicate group %q", keyNode.Line, name)}
		}

		var hosts []types.Host
		if err := valNode.Decode(&hosts); err != nil {
			return nil, &types.ParseError{Source: source, Err: fmt.Errorf("group %q: %w", name, err)}
		}
		for _, h := range hosts {
			if h.Name == "" {
				return nil, &types.ParseError{Source: source, Err: fmt.Errorf("group %q: host without a name", name)}
			}
		}
		inv.Groups = append(inv.Groups, types.Group{Name: name, Hosts: hosts})
	}
	return inv, nil
}
