package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // constant table
var scalarTemplates = [][]string{
	{"tablist", "player_format"},
	{"nametag", "format"},
	{"chat", "format"},
}

//nolint:gochecknoglobals // constant table
var listTemplates = [][]string{
	{"tablist", "header"},
	{"tablist", "footer"},
	{"tablist", "rotating", "messages"},
}

// relax rewrites malformed lenient sections of root in place so the document still decodes, and
// returns one warning per rewrite.
func relax(root *yaml.Node) []string {
	var warnings []string
	warn := func(path []string, format string, args ...any) {
		warnings = append(warnings, strings.Join(path, ".")+" "+fmt.Sprintf(format, args...))
	}

	priority := []string{"tablist", "sorting", "priority"}
	if n := lookup(root, priority...); n != nil && !isScalarList(n) {
		warn(priority, "is not a list of status keys, statuses share one priority and no status sorts last")
		*n = emptyList()
	}

	for _, path := range scalarTemplates {
		if n := lookup(root, path...); n != nil && deref(n).Kind != yaml.ScalarNode {
			warn(path, "is not a string, using an empty template")
			*n = emptyString()
		}
	}
	for _, path := range listTemplates {
		n := lookup(root, path...)
		switch {
		case n == nil || isScalarList(n):
		case deref(n).Kind == yaml.ScalarNode:
			// A single line is a one-line template.
			line := *deref(n)
			*n = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{&line}}
		default:
			warn(path, "is not a list of lines, using an empty template")
			*n = emptyList()
		}
	}
	return warnings
}

// lookup walks mapping keys from n. It returns nil when a step is missing or not a mapping.
func lookup(n *yaml.Node, path ...string) *yaml.Node {
	for _, key := range path {
		n = deref(n)
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
			}
		}
		n = next
	}
	return n
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isScalarList(n *yaml.Node) bool {
	n = deref(n)
	if n.Kind != yaml.SequenceNode {
		return false
	}
	for _, item := range n.Content {
		if deref(item).Kind != yaml.ScalarNode {
			return false
		}
	}
	return true
}

func emptyList() yaml.Node {
	return yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

func emptyString() yaml.Node {
	return yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str"}
}
