package rules

import (
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/errs"
)

// Validate checks a rule's flow graph against the load-time
// invariants spec.md's prose states but never names a function for:
// exactly one Start node, which is the declared start node, at least
// one End reachable from it, and no cycles among the nodes reachable
// from it (§3 "cycles are forbidden at load time"). Nodes that are not
// reachable from the start are not inspected.
func Validate(rule *config.Rule) error {
	if rule.Flow.StartNode == "" {
		return errs.New(errs.Config, "Validate", "rule has no start node")
	}
	start, ok := rule.Flow.Nodes[rule.Flow.StartNode]
	if !ok {
		return errs.New(errs.Config, "Validate", "rule start node not present in flow")
	}
	if start.Kind != config.NodeStart {
		return errs.New(errs.Config, "Validate", "rule's declared start node is not a Start node")
	}
	starts := 0
	for _, n := range rule.Flow.Nodes {
		if n.Kind == config.NodeStart {
			starts++
		}
	}
	if starts != 1 {
		return errs.New(errs.Config, "Validate", "rule flow must have exactly one Start node")
	}

	visiting := map[string]bool{}
	visited := map[string]bool{}
	reachedEnd := false

	var walk func(id string) error
	walk = func(id string) error {
		if visiting[id] {
			return errs.New(errs.Config, "Validate", "cycle detected in rule flow at node "+id)
		}
		if visited[id] {
			return nil
		}
		node, ok := rule.Flow.Nodes[id]
		if !ok {
			return errs.New(errs.Config, "Validate", "rule flow references unknown node "+id)
		}
		visiting[id] = true
		defer func() { visiting[id] = false }()

		if node.Kind == config.NodeEnd {
			reachedEnd = true
		}
		for _, targets := range node.Wires {
			for _, next := range targets {
				if err := walk(next); err != nil {
					return err
				}
			}
		}
		visited[id] = true
		return nil
	}

	if err := walk(rule.Flow.StartNode); err != nil {
		return err
	}
	if !reachedEnd {
		return errs.New(errs.Config, "Validate", "rule has no reachable End node")
	}
	return nil
}
