// Package datamodel implements the session-scoped ECMAScript evaluator (C2):
// the bridge between the execution core and an embedded JS engine
// (dop251/goja), exposing the narrow contract spec.md §4.1 requires —
// expressions, statements, variable get/set, system variables, native
// function binding — without the core ever depending on goja types directly
// outside this package.
package datamodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Value is whatever an expression evaluates to, kept as `any` so callers in
// package actions/session never import goja directly. JSON-encodable
// primitives, maps, and slices round-trip through Export().
type Value = any

// Context is one session's ECMAScript evaluation context. Per spec.md §4.1
// and §5, all calls against one Context must be serialized by the caller —
// goja's *goja.Runtime is not safe for concurrent use, and the session
// driver already guarantees single-threaded access per session, so Context
// adds no locking of its own.
type Context struct {
	vm       *goja.Runtime
	readOnly map[string]struct{}
	inPred   func(stateID string) bool
}

// ErrExecution wraps any evaluation/assignment/script failure. The caller
// (package actions) turns this into an `error.execution` platform event
// rather than letting it escape as a Go error (spec.md §7).
type ErrExecution struct {
	Op  string
	Err error
}

func (e *ErrExecution) Error() string {
	return fmt.Sprintf("datamodel: %s: %v", e.Op, e.Err)
}

func (e *ErrExecution) Unwrap() error { return e.Err }

// NewSession creates a fresh, isolated Context. parent is nil for a
// top-level session; a non-nil parent is accepted for symmetry with the
// spec's create_session(parent?) signature, but goja gives each Runtime its
// own global object already, so no state is actually shared — invoke child
// sessions never leak variables into their parent (spec.md §6 isolation
// guarantee).
func NewSession(parent *Context) *Context {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &Context{
		vm:       vm,
		readOnly: make(map[string]struct{}),
	}
}

// Destroy releases the underlying engine resources. goja has no explicit
// teardown; Destroy exists so the session driver has a single symmetric
// lifecycle call regardless of which engine backs Context.
func (c *Context) Destroy() {
	c.vm = nil
}

// EvalExpr evaluates src as an expression and returns its value.
func (c *Context) EvalExpr(src string) (Value, error) {
	v, err := c.vm.RunString(src)
	if err != nil {
		return nil, &ErrExecution{Op: "eval_expr", Err: err}
	}
	return v.Export(), nil
}

// ExecScript runs src as a statement/program; the return value is discarded.
func (c *Context) ExecScript(src string) error {
	if _, err := c.vm.RunString(src); err != nil {
		return &ErrExecution{Op: "exec_script", Err: err}
	}
	return nil
}

// Get returns the current value of a bound identifier.
func (c *Context) Get(name string) (Value, error) {
	v := c.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, &ErrExecution{Op: "get", Err: fmt.Errorf("%q is not defined", name)}
	}
	return v.Export(), nil
}

// Set assigns value to a simple identifier. System variables
// (_sessionid/_name/_ioprocessors) are read-only and raise ErrExecution on
// write (spec.md §4.1).
func (c *Context) Set(name string, value Value) error {
	if _, locked := c.readOnly[name]; locked {
		return &ErrExecution{Op: "set", Err: fmt.Errorf("%q is a read-only system variable", name)}
	}
	if err := c.vm.Set(name, value); err != nil {
		return &ErrExecution{Op: "set", Err: err}
	}
	return nil
}

// SetStatement runs `location = (expr);` as a statement rather than a plain
// Set, preserving object-reference identity when expr is itself a bare
// system-variable reference or a dotted path assignment (spec.md §4.7
// <assign> strategy). location must already be a valid LHS expression
// (simple identifier or dotted/indexed path); callers validate it is not a
// system variable before calling this.
func (c *Context) SetStatement(location, expr string) error {
	root := strings.SplitN(location, ".", 2)[0]
	root = strings.SplitN(root, "[", 2)[0]
	if _, locked := c.readOnly[root]; locked {
		return &ErrExecution{Op: "assign", Err: fmt.Errorf("%q is a read-only system variable", root)}
	}
	stmt := fmt.Sprintf("%s = (%s);", location, expr)
	if _, err := c.vm.RunString(stmt); err != nil {
		return &ErrExecution{Op: "assign", Err: err}
	}
	return nil
}

// SetEvent binds the platform `_event` variable eagerly, as a plain global
// set to ev at call time; there is no lazy property getter, and `_event` is
// not registered as read-only. Each call replaces the previous binding.
func (c *Context) SetEvent(ev Value) error {
	return c.Set("_event", ev)
}

// SetupSystemVars binds _sessionid, _name, _ioprocessors as read-only
// globals (spec.md §4.1, §6).
func (c *Context) SetupSystemVars(sessionID, name string, ioProcessors map[string]any) error {
	if err := c.vm.Set("_sessionid", sessionID); err != nil {
		return err
	}
	if err := c.vm.Set("_name", name); err != nil {
		return err
	}
	if err := c.vm.Set("_ioprocessors", ioProcessors); err != nil {
		return err
	}
	c.readOnly["_sessionid"] = struct{}{}
	c.readOnly["_name"] = struct{}{}
	c.readOnly["_ioprocessors"] = struct{}{}
	return nil
}

// RegisterNative exposes a Go function as a global callable, used for the
// In(stateId) predicate (spec.md §6) and any other host-exposed function.
func (c *Context) RegisterNative(name string, fn func(args ...Value) Value) error {
	wrapped := func(call goja.FunctionCall) goja.Value {
		args := make([]Value, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		result := fn(args...)
		return c.vm.ToValue(result)
	}
	return c.vm.Set(name, wrapped)
}

// BindInPredicate wires In(stateId) to consult pred, which the session
// driver supplies as a closure over its live configuration — this lets a
// generated (AOT) variant without a dynamic state table still answer
// queries, per spec.md §9's collapse of the interpreter/AOT split (spec.md
// §6).
func (c *Context) BindInPredicate(pred func(stateID string) bool) error {
	c.inPred = pred
	return c.RegisterNative("In", func(args ...Value) Value {
		if len(args) == 0 {
			return false
		}
		id, ok := args[0].(string)
		if !ok {
			return false
		}
		return c.inPred(id)
	})
}

// IsArray reports whether v satisfies `instanceof Array` semantics, used by
// <foreach> to validate its `array` expression (spec.md §4.6).
func (c *Context) IsArray(v Value) bool {
	gv := c.vm.ToValue(v)
	obj := gv.ToObject(c.vm)
	if obj == nil {
		return false
	}
	return obj.ClassName() == "Array"
}

// DeclareIfAbsent ensures name exists as a data-model variable, used by
// <foreach> to declare `item`/`index` when not already present (spec.md
// §4.6). It never overwrites an existing binding.
func (c *Context) DeclareIfAbsent(name string, zero Value) error {
	if v := c.vm.Get(name); v != nil && !goja.IsUndefined(v) {
		return nil
	}
	return c.Set(name, zero)
}

// ErrNotBoolean is returned by EvalGuard when a guard expression evaluates
// to a non-boolean value; per W3C 5.9 / spec.md §4.5 this is treated as
// false and additionally raises error.execution.
var ErrNotBoolean = errors.New("guard expression is not boolean")

// EvalGuard evaluates a guard expression and coerces strictly: a
// non-boolean result is an error (caller raises error.execution and treats
// the guard as false), matching spec.md §4.5/§8's "guard that errors ⇒
// treated false AND error.execution raised" law, extended uniformly to
// "guard that isn't boolean".
func (c *Context) EvalGuard(src string) (bool, error) {
	v, err := c.vm.RunString(src)
	if err != nil {
		return false, &ErrExecution{Op: "guard", Err: err}
	}
	b, ok := v.Export().(bool)
	if !ok {
		return false, &ErrExecution{Op: "guard", Err: ErrNotBoolean}
	}
	return b, nil
}
