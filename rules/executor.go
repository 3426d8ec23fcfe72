// Package rules walks a rule's flow graph (§4.I): Switch nodes choose
// a branch by evaluating conditions against RTDB-resolved variables,
// ChangeValue nodes write resolved values to action points, Start/End
// bound the walk.
package rules

import (
	"time"

	"github.com/google/uuid"

	"github.com/jangala-dev/comsrv/channel"
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/routing"
	"github.com/jangala-dev/comsrv/rtdb"
)

const maxIterations = 100

// ActionResult records one ChangeValue assignment actually executed
// (§4.I observability).
type ActionResult struct {
	InstanceName  string
	ActionPointID uint32
	Value         float64
	Success       bool
}

// ExecutionResult is the audit record one Execute call produces (§4.I).
type ExecutionResult struct {
	RuleID               string
	Success              bool
	Path                 []string
	MatchedConditionExpr string
	VariableValues       map[string]float64
	ActionsExecuted      []ActionResult
	Error                string
}

// Submitter hands a resolved write to the channel that owns the
// target action point. It is normally channel.Pipeline.Submit, keyed
// by channel id in the caller's wiring.
type Submitter func(channelID uint32, cmd channel.Command) bool

// Executor runs rules against a shared RTDB and routing cache.
type Executor struct {
	base   *rtdb.Base
	routes *routing.Cache
	submit Submitter
	now    func() time.Time
}

// NewExecutor builds an Executor. submit delivers ChangeValue writes
// to the owning channel's pipeline.
func NewExecutor(base *rtdb.Base, routes *routing.Cache, submit Submitter) *Executor {
	return &Executor{base: base, routes: routes, submit: submit, now: time.Now}
}

// Execute walks rule's flow graph from its start node to an End node
// or a terminal error (§4.I).
func (e *Executor) Execute(rule *config.Rule) ExecutionResult {
	result := ExecutionResult{RuleID: rule.ID, VariableValues: map[string]float64{}}
	values := map[string]float64{}

	currentID := rule.Flow.StartNode
	for iterations := 0; ; iterations++ {
		if iterations >= maxIterations {
			result.Error = "IterationLimitExceeded"
			return result
		}
		result.Path = append(result.Path, currentID)

		node, ok := rule.Flow.Nodes[currentID]
		if !ok {
			result.Error = "NodeNotFound"
			return result
		}

		switch node.Kind {
		case config.NodeEnd:
			result.Success = true
			result.VariableValues = values
			return result

		case config.NodeStart:
			next, ok := firstWire(node.Wires, "default")
			if !ok {
				result.Error = "NoOutputWire"
				return result
			}
			currentID = next

		case config.NodeSwitch:
			e.readVariables(node.Variables, values)
			result.VariableValues = cloneValues(values)

			next, matched, ok := e.evaluateSwitch(node, values)
			if !ok {
				result.Error = "NoMatchingBranch"
				return result
			}
			result.MatchedConditionExpr = matched
			currentID = next

		case config.NodeChangeValue:
			e.readVariables(node.Variables, values)
			for _, a := range node.Assignments {
				result.ActionsExecuted = append(result.ActionsExecuted, e.executeAssignment(node, a, values))
			}
			next, ok := firstWire(node.Wires, "default")
			if !ok {
				result.Error = "NoOutputWire"
				return result
			}
			currentID = next

		default:
			result.Error = "UnknownNodeKind"
			return result
		}
	}
}

func firstWire(wires map[string][]string, key string) (string, bool) {
	targets, ok := wires[key]
	if !ok || len(targets) == 0 {
		return "", false
	}
	return targets[0], true
}

func cloneValues(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// readVariables resolves every declared variable against the RTDB,
// binding unreadable ones to 0.0 (§4.I "missing variables are bound to
// 0.0 and logged at warn level" — the warn-level log is the caller's
// responsibility via the returned ExecutionResult).
func (e *Executor) readVariables(vars []config.RuleVariable, values map[string]float64) {
	for _, v := range vars {
		values[v.Name] = e.readVariable(v)
	}
}

func (e *Executor) readVariable(v config.RuleVariable) float64 {
	if e.base == nil {
		return 0.0
	}
	instanceID, ok := e.base.Layout().ResolveName(v.Instance)
	if !ok {
		return 0.0
	}
	var (
		val float64
		got bool
	)
	if v.PointType == config.Action {
		val, got = e.base.GetAction(instanceID, v.PointID)
	} else {
		val, got = e.base.GetMeasurement(instanceID, v.PointID)
	}
	if !got {
		return 0.0
	}
	return val
}

func (e *Executor) resolveValue(rv config.RuleValue, values map[string]float64) float64 {
	if rv.IsLiteral {
		return rv.Literal
	}
	if v, ok := values[rv.Ref]; ok {
		return v
	}
	return 0.0
}

func (e *Executor) executeAssignment(node *config.RuleNode, a config.RuleAssignment, values map[string]float64) ActionResult {
	resolved := e.resolveValue(a.Value, values)

	var target config.RuleVariable
	found := false
	for _, v := range node.Variables {
		if v.Name == a.Target {
			target = v
			found = true
			break
		}
	}
	if !found {
		return ActionResult{ActionPointID: 0, Value: resolved, Success: false}
	}

	ok := e.setActionPoint(target.Instance, target.PointID, resolved)
	return ActionResult{InstanceName: target.Instance, ActionPointID: target.PointID, Value: resolved, Success: ok}
}

// setActionPoint composes routing (instance-action -> channel-action)
// with the target channel's command queue (§4.I).
func (e *Executor) setActionPoint(instanceName string, actionPointID uint32, value float64) bool {
	if e.base == nil || e.routes == nil || e.submit == nil {
		return false
	}
	instanceID, ok := e.base.Layout().ResolveName(instanceName)
	if !ok {
		return false
	}
	target, ok := e.routes.A2C(instanceID, actionPointID)
	if !ok {
		return false
	}
	cmd := channel.Command{
		CommandID:   uuid.NewString(),
		ChannelID:   target.ChannelID,
		CommandType: channel.Adjustment,
		PointID:     target.ChannelPointID,
		Value:       value,
		TimestampMs: e.now().UnixMilli(),
	}
	return e.submit(target.ChannelID, cmd)
}
