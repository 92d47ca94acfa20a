package ir

// ActionKind tags the variant of an executable-content node. A tagged-union
// style (kind + union of fields) is used instead of an interface hierarchy so
// the executor in package actions can switch exhaustively without a type
// registry — mirroring how the teacher's primitives.ActionRef collapses
// "action" down to a single pluggable reference type.
type ActionKind int

const (
	ActionRaise ActionKind = iota
	ActionSend
	ActionCancel
	ActionAssign
	ActionLog
	ActionIf
	ActionForeach
	ActionScript
)

// Action is one executable-content node. Only the fields relevant to Kind are
// populated; the rest are zero.
type Action struct {
	Kind ActionKind

	// Raise
	RaiseEvent string

	// Send
	Send *SendAction

	// Cancel
	CancelSendIDExpr string
	CancelSendID     string

	// Assign
	AssignLocation string
	AssignExpr     string

	// Log
	LogLabel string
	LogExpr  string

	// If/Elseif/Else: a chain of (cond, body) branches in document order,
	// with the final branch's Cond == "" denoting <else>.
	Branches []IfBranch

	// Foreach
	ForeachArray string
	ForeachItem  string
	ForeachIndex string // may be empty
	ForeachBody  ActionBlock

	// Script
	ScriptSrc    string // external src, resolved relative to chart base dir
	ScriptInline string
}

// IfBranch is one arm of an <if>/<elseif>/<else> chain.
type IfBranch struct {
	Cond string // empty for the trailing <else>
	Body ActionBlock
}

// SendAction captures every attribute/child of <send> needed at runtime.
type SendAction struct {
	EventExpr   string // literal or dynamic (eventexpr); resolved at execution time
	Event       string // literal event name, used when EventExpr == ""
	TargetExpr  string
	Target      string
	TypeExpr    string
	Type        string
	IDLocation  string
	ID          string
	DelayExpr   string
	Delay       string
	Namelist    []string
	Params      []Param
	ContentExpr string
	Content     string
}

// ActionBlock is an ordered list of actions forming one error-isolation unit
// (W3C 3.8/3.9): an error in one action stops the rest of ITS block, but a
// sibling block (e.g. the next <onentry>) still runs.
type ActionBlock []Action
