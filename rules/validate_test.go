package rules

import (
	"testing"

	"github.com/jangala-dev/comsrv/config"
)

func TestValidateAcceptsSimpleFlow(t *testing.T) {
	rule := socRule()
	if err := Validate(rule); err != nil {
		t.Fatalf("expected valid flow, got %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	rule := &config.Rule{
		Flow: config.RuleFlow{
			StartNode: "start",
			Nodes: map[string]*config.RuleNode{
				"start": {ID: "start", Kind: config.NodeStart, Wires: map[string][]string{"default": {"cv"}}},
				"cv":    {ID: "cv", Kind: config.NodeChangeValue, Wires: map[string][]string{"default": {"cv"}}},
			},
		},
	}
	if err := Validate(rule); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

func TestValidateRejectsUnreachableEnd(t *testing.T) {
	rule := &config.Rule{
		Flow: config.RuleFlow{
			StartNode: "start",
			Nodes: map[string]*config.RuleNode{
				"start": {ID: "start", Kind: config.NodeStart, Wires: map[string][]string{"default": {"cv"}}},
				"cv":    {ID: "cv", Kind: config.NodeChangeValue, Wires: map[string][]string{"default": {"dead-end"}}},
				"dead-end": {ID: "dead-end", Kind: config.NodeChangeValue, Wires: map[string][]string{}},
				"end":      {ID: "end", Kind: config.NodeEnd},
			},
		},
	}
	if err := Validate(rule); err == nil {
		t.Fatal("expected unreachable End to be rejected")
	}
}
