package rules

import (
	"math"
	"strconv"

	"github.com/jangala-dev/comsrv/config"
)

// epsilon is the float-equality tolerance for the eq/ne comparisons
// (§4.I).
const epsilon = 1e-12

// evaluateSwitch tries each branch in declared order and returns the
// first one whose conditions are satisfied, the target node its wire
// points to, and a human-readable matched-condition expression
// (§4.I).
func (e *Executor) evaluateSwitch(node *config.RuleNode, values map[string]float64) (nextID, matched string, ok bool) {
	for _, branch := range node.Branches {
		if !e.evaluateConditions(branch.Conditions, values) {
			continue
		}
		next, hasWire := firstWire(node.Wires, branch.Wire)
		if !hasWire {
			continue
		}
		return next, formatConditions(branch.Conditions), true
	}
	return "", "", false
}

// evaluateConditions evaluates a flat list left-to-right with no
// precedence between && and || (§4.I). An empty list is vacuously
// true.
func (e *Executor) evaluateConditions(conds []config.RuleCondition, values map[string]float64) bool {
	if len(conds) == 0 {
		return true
	}
	result := e.evaluateCondition(conds[0], values)
	for _, c := range conds[1:] {
		operand := e.evaluateCondition(c, values)
		if c.Relation == config.RelationOr {
			result = result || operand
		} else {
			result = result && operand
		}
	}
	return result
}

func (e *Executor) evaluateCondition(c config.RuleCondition, values map[string]float64) bool {
	left := values[c.Variable]
	right := e.resolveValue(c.Value, values)

	if math.IsNaN(left) || math.IsNaN(right) {
		return false
	}

	switch c.Op {
	case config.CompareEq:
		return math.Abs(left-right) < epsilon
	case config.CompareNe:
		return math.Abs(left-right) >= epsilon
	case config.CompareGt:
		return left > right
	case config.CompareLt:
		return left < right
	case config.CompareGte:
		return left >= right
	case config.CompareLte:
		return left <= right
	default:
		return false
	}
}

func formatConditions(conds []config.RuleCondition) string {
	if len(conds) == 0 {
		return ""
	}
	out := ""
	for i, c := range conds {
		if i > 0 {
			out += " " + string(c.Relation) + " "
		}
		out += c.Variable + " " + string(c.Op) + " " + formatValue(c.Value)
	}
	return out
}

func formatValue(v config.RuleValue) string {
	if v.IsLiteral {
		return formatFloat(v.Literal)
	}
	return v.Ref
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
