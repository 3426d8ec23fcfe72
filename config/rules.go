package config

// RuleVariable is one flow-node-local variable binding: a name the
// node's conditions/assignments refer to, sourced from an instance
// measurement or action point (§3 "each variable sourced from an
// instance measurement or action").
type RuleVariable struct {
	Name      string
	Instance  string // instance name, resolved to id at run time via the RTDB's name index
	PointType PointType
	PointID   uint32
}

// RelationOp is the logical connective between two conditions in a
// flat condition list (§4.I).
type RelationOp string

const (
	RelationAnd RelationOp = "and"
	RelationOr  RelationOp = "or"
)

// CompareOp is a condition's comparison operator (§4.I).
type CompareOp string

const (
	CompareEq  CompareOp = "eq"
	CompareNe  CompareOp = "ne"
	CompareGt  CompareOp = "gt"
	CompareLt  CompareOp = "lt"
	CompareGte CompareOp = "gte"
	CompareLte CompareOp = "lte"
)

// RuleValue is a condition operand or assignment value: either a
// literal float or a reference to another variable in scope (§4.I
// "literal, or reference to a variable in scope").
type RuleValue struct {
	Literal   float64
	IsLiteral bool
	Ref       string // variable name, used when IsLiteral is false
}

// Literal builds a RuleValue holding a constant.
func Literal(v float64) RuleValue { return RuleValue{Literal: v, IsLiteral: true} }

// VarRef builds a RuleValue referring to another variable in scope.
func VarRef(name string) RuleValue { return RuleValue{Ref: name} }

// RuleCondition is one entry in a flat, left-to-right evaluated
// condition list (§4.I). Relation is ignored on the first condition.
type RuleCondition struct {
	Relation RelationOp // combines this condition with the running result; ignored for index 0
	Variable string
	Op       CompareOp
	Value    RuleValue
}

// RuleBranch is one named, ordered alternative out of a Switch node
// (§3 "ordered list of branches").
type RuleBranch struct {
	Name       string
	Conditions []RuleCondition
	Wire       string // output wire name, keys into the node's Wires map
}

// RuleAssignment is one ChangeValue node action: write Value to the
// action point named by Target (one of the node's declared variables).
type RuleAssignment struct {
	Target string
	Value  RuleValue
}

// RuleNodeKind discriminates the flow node union (§3).
type RuleNodeKind int

const (
	NodeStart RuleNodeKind = iota
	NodeSwitch
	NodeChangeValue
	NodeEnd
)

// RuleNode is one node in a rule's flow graph. Variables/Branches
// apply to Switch nodes, Variables/Assignments to ChangeValue nodes,
// Wires to Start/Switch/ChangeValue (keyed by branch name for Switch,
// by "default" for Start/ChangeValue).
type RuleNode struct {
	ID          string
	Kind        RuleNodeKind
	Variables   []RuleVariable
	Branches    []RuleBranch     // Switch only, in declared order
	Assignments []RuleAssignment // ChangeValue only
	Wires       map[string][]string
}

// RuleFlow is the directed graph of nodes a Rule walks (§3).
type RuleFlow struct {
	StartNode string
	Nodes     map[string]*RuleNode
}

// Rule is one flow-graph rule definition (§3).
type Rule struct {
	ID       string
	Name     string
	Enabled  bool
	Priority int
	Flow     RuleFlow
}
