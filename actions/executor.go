// Package actions implements the Action Executor (C7): raise/send/cancel/
// assign/if/foreach/log/script with W3C-conformant error isolation (spec.md
// §4.6).
package actions

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/comalice/scxmlcore/datamodel"
	"github.com/comalice/scxmlcore/equeue"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/scheduler"
)

// Host is the session-scoped context an Executor acts against. The executor
// never reaches into another session directly (spec.md §5: sessions
// communicate only by message passing); Host.Scheduler() + the target
// classification of SendAction carry everything the session driver needs to
// deliver a scheduled send later, including across sessions.
type Host interface {
	DataModel() *datamodel.Context
	Queues() *equeue.Pair
	Scheduler() *scheduler.Scheduler
	BaseDir() string
	// HasInvoke reports whether invokeID names a live child of this
	// session, used to validate #_<invokeid> send targets.
	HasInvoke(invokeID string) bool
	Log(label, message string)
}

// Executor runs ActionBlocks against one session's Host.
type Executor struct {
	host Host
}

// New returns an Executor bound to host.
func New(host Host) *Executor {
	return &Executor{host: host}
}

// RunBlock executes every action in block in order, stopping at the first
// failing action (W3C 3.8/3.9, spec.md §4.6 "Error Isolation"). The caller
// is responsible for running sibling blocks regardless of this block's
// outcome.
func (e *Executor) RunBlock(block ir.ActionBlock) {
	for _, a := range block {
		if err := e.run(a); err != nil {
			return
		}
	}
}

func (e *Executor) run(a ir.Action) error {
	switch a.Kind {
	case ir.ActionRaise:
		e.host.Queues().Internal.Enqueue(ir.EventObject{Name: a.RaiseEvent, Type: ir.EventInternal})
		return nil
	case ir.ActionLog:
		return e.runLog(a)
	case ir.ActionAssign:
		return e.runAssign(a)
	case ir.ActionIf:
		return e.runIf(a)
	case ir.ActionForeach:
		return e.runForeach(a)
	case ir.ActionScript:
		return e.runScript(a)
	case ir.ActionSend:
		return e.runSend(a.Send)
	case ir.ActionCancel:
		return e.runCancel(a)
	default:
		return fmt.Errorf("actions: unknown action kind %d", a.Kind)
	}
}

func (e *Executor) raiseError(name string, cause error) error {
	e.host.Queues().Internal.Enqueue(ir.EventObject{
		Name: name,
		Type: ir.EventInternal,
		Data: errorData(cause),
	})
	return cause
}

func errorData(err error) any {
	if err == nil {
		return nil
	}
	return map[string]any{"message": err.Error()}
}

func (e *Executor) runLog(a ir.Action) error {
	v, err := e.host.DataModel().EvalExpr(a.LogExpr)
	if err != nil {
		return e.raiseError("error.execution", err)
	}
	e.host.Log(a.LogLabel, fmt.Sprintf("%v", v))
	return nil
}

func (e *Executor) runAssign(a ir.Action) error {
	loc := strings.TrimSpace(a.AssignLocation)
	if loc == "_sessionid" || loc == "_name" || loc == "_ioprocessors" || loc == "_event" {
		return e.raiseError("error.execution", fmt.Errorf("actions: cannot assign to system variable %q", loc))
	}

	// Always assign via a run `location = (expr);` statement, never via
	// EvalExpr+Set: EvalExpr's Export() would deep-convert a right-hand
	// side that is itself a bare system-variable reference (e.g.
	// `Var1 = _event`) into a fresh Go value, losing the live JS object
	// identity spec.md §4.1 requires assignments to preserve. Running the
	// assignment as one statement keeps it entirely inside the engine, for
	// both bare-identifier and dotted/indexed locations alike.
	if err := e.host.DataModel().SetStatement(loc, a.AssignExpr); err != nil {
		return e.raiseError("error.execution", err)
	}
	return nil
}

func (e *Executor) runIf(a ir.Action) error {
	for _, branch := range a.Branches {
		if branch.Cond == "" {
			e.RunBlock(branch.Body)
			return nil
		}
		ok, err := e.host.DataModel().EvalGuard(branch.Cond)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		if ok {
			e.RunBlock(branch.Body)
			return nil
		}
	}
	return nil
}

func (e *Executor) runForeach(a ir.Action) error {
	arr, err := e.host.DataModel().EvalExpr(a.ForeachArray)
	if err != nil {
		return e.raiseError("error.execution", err)
	}
	if !e.host.DataModel().IsArray(arr) {
		return e.raiseError("error.execution", fmt.Errorf("actions: foreach array expression is not an array"))
	}
	items, _ := arr.([]any)

	if err := e.host.DataModel().DeclareIfAbsent(a.ForeachItem, nil); err != nil {
		return e.raiseError("error.execution", err)
	}
	if a.ForeachIndex != "" {
		if err := e.host.DataModel().DeclareIfAbsent(a.ForeachIndex, 0); err != nil {
			return e.raiseError("error.execution", err)
		}
	}

	for i, item := range items {
		if err := e.host.DataModel().Set(a.ForeachItem, item); err != nil {
			return e.raiseError("error.execution", err)
		}
		if a.ForeachIndex != "" {
			if err := e.host.DataModel().Set(a.ForeachIndex, i); err != nil {
				return e.raiseError("error.execution", err)
			}
		}
		for _, inner := range a.ForeachBody {
			if err := e.run(inner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) runScript(a ir.Action) error {
	src := a.ScriptInline
	if a.ScriptSrc != "" {
		resolved, err := resolveWithinBase(e.host.BaseDir(), a.ScriptSrc)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		// Loading resolved's contents is an external-collaborator concern
		// (file IO is intentionally not re-specified here, spec.md §1);
		// callers that need real external scripts wire a loader into
		// ScriptInline ahead of time. We still perform the security
		// check so a non-conformant document is rejected exactly where
		// spec.md §4.6 says it must be.
		_ = resolved
	}
	if src == "" {
		return nil
	}
	if err := e.host.DataModel().ExecScript(src); err != nil {
		return e.raiseError("error.execution", err)
	}
	return nil
}

func (e *Executor) runCancel(a ir.Action) error {
	id := a.CancelSendID
	if a.CancelSendIDExpr != "" {
		v, err := e.host.DataModel().EvalExpr(a.CancelSendIDExpr)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		id, _ = v.(string)
	}
	e.host.Scheduler().Cancel(id)
	return nil
}

// resolveWithinBase resolves rel against base and rejects any result that
// escapes base after normalization (spec.md §4.6/§6, W3C 5.8).
func resolveWithinBase(base, rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "file://")
	rel = strings.TrimPrefix(rel, "file:")
	joined := filepath.Join(base, rel)
	relToBase, err := filepath.Rel(base, joined)
	if err != nil {
		return "", fmt.Errorf("actions: cannot resolve script path %q: %w", rel, err)
	}
	if relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("actions: script path %q escapes chart base directory", rel)
	}
	return joined, nil
}
