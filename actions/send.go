package actions

import (
	"fmt"
	"strings"

	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/scheduler"
)

// runSend implements the full <send> contract of spec.md §4.6: sendid
// generation, event-data construction from namelist/params/content, type
// resolution, target dispatch classification, and delay-gated direct vs
// scheduled delivery.
func (e *Executor) runSend(s *ir.SendAction) error {
	if s == nil {
		return nil
	}

	eventName := s.Event
	if s.EventExpr != "" {
		v, err := e.host.DataModel().EvalExpr(s.EventExpr)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		eventName = fmt.Sprintf("%v", v)
	}

	sendID := s.ID
	generated := e.host.Scheduler().NextSendID()
	if sendID == "" {
		sendID = generated
	}
	if s.IDLocation != "" {
		if err := e.host.DataModel().Set(s.IDLocation, sendID); err != nil {
			return e.raiseError("error.execution", err)
		}
	}

	typ := s.Type
	if s.TypeExpr != "" {
		v, err := e.host.DataModel().EvalExpr(s.TypeExpr)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		typ = fmt.Sprintf("%v", v)
	}
	isSCXML := typ == "" || typ == "#SCXMLEventProcessor"
	isHTTP := typ == "#BasicHTTPEventProcessor"
	if !isSCXML && !isHTTP {
		return e.raiseError("error.execution", fmt.Errorf("actions: unsupported send type %q", typ))
	}

	data, err := e.buildSendData(s)
	if err != nil {
		// Namelist/param/content evaluation failure: event is NOT
		// dispatched (spec.md §4.6).
		return e.raiseError("error.execution", err)
	}

	target := s.Target
	if s.TargetExpr != "" {
		v, err := e.host.DataModel().EvalExpr(s.TargetExpr)
		if err != nil {
			return e.raiseError("error.execution", err)
		}
		target = fmt.Sprintf("%v", v)
	}

	schedTarget, err := e.classifyTarget(target, isHTTP)
	if err != nil {
		if strings.HasPrefix(target, "!") {
			return e.raiseError("error.execution", err)
		}
		return e.raiseError("error.communication", err)
	}

	delay := scheduler.ParseDelay(s.Delay)
	if s.DelayExpr != "" {
		v, evalErr := e.host.DataModel().EvalExpr(s.DelayExpr)
		if evalErr != nil {
			return e.raiseError("error.execution", evalErr)
		}
		delay = scheduler.ParseDelay(fmt.Sprintf("%v", v))
	}

	ev := ir.EventObject{
		Name:   eventName,
		Type:   ir.EventExternal,
		SendID: sendID,
		Data:   data,
	}
	if schedTarget.Kind == scheduler.TargetInternal {
		ev.Type = ir.EventInternal
	}

	if schedTarget.Kind == scheduler.TargetInternal && delay == 0 {
		e.host.Queues().Internal.Enqueue(ev)
		return nil
	}

	// Every other case — including a 0-delay external send — goes
	// through the scheduler so cancellation semantics are uniform
	// (spec.md §4.6, §8 boundary case: "Delay 0s via external target ⇒
	// fires on next scheduler tick, not inline").
	e.host.Scheduler().Schedule(delay, ev, sendID, schedTarget)
	return nil
}

func (e *Executor) classifyTarget(target string, isHTTP bool) (scheduler.Target, error) {
	switch {
	case target == "":
		return scheduler.Target{Kind: scheduler.TargetExternalSelf}, nil
	case target == "#_internal":
		return scheduler.Target{Kind: scheduler.TargetInternal}, nil
	case target == "#_parent":
		return scheduler.Target{Kind: scheduler.TargetParent}, nil
	case strings.HasPrefix(target, "#_scxml_"):
		return scheduler.Target{Kind: scheduler.TargetExternalSelf, SessionRef: target}, nil
	case strings.HasPrefix(target, "#_"):
		invokeID := strings.TrimPrefix(target, "#_")
		if !e.host.HasInvoke(invokeID) {
			return scheduler.Target{}, fmt.Errorf("actions: unknown invoke target %q", target)
		}
		return scheduler.Target{Kind: scheduler.TargetInvokedChild, InvokeID: invokeID}, nil
	case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
		if !isHTTP {
			return scheduler.Target{}, fmt.Errorf("actions: http(s) target requires BasicHTTPEventProcessor type")
		}
		return scheduler.Target{Kind: scheduler.TargetHTTP, URL: target}, nil
	case strings.HasPrefix(target, "!"):
		return scheduler.Target{}, fmt.Errorf("actions: invalid send target %q", target)
	default:
		return scheduler.Target{}, fmt.Errorf("actions: unreachable or undefined send target %q", target)
	}
}

// buildSendData combines namelist, params, and content per spec.md §4.6:
// namelist resolves space-separated variable names from the data model;
// params are name→value pairs (duplicate names become arrays, W3C Test
// 178); content, if present, supplies the entire data value and takes
// precedence over namelist/params.
func (e *Executor) buildSendData(s *ir.SendAction) (any, error) {
	if s.ContentExpr != "" {
		v, err := e.host.DataModel().EvalExpr(s.ContentExpr)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	if s.Content != "" {
		return s.Content, nil
	}
	if len(s.Namelist) == 0 && len(s.Params) == 0 {
		return nil, nil
	}

	merged := make(map[string]any)
	for _, name := range s.Namelist {
		v, err := e.host.DataModel().Get(name)
		if err != nil {
			return nil, fmt.Errorf("actions: namelist variable %q: %w", name, err)
		}
		mergeParam(merged, name, v)
	}
	for _, p := range s.Params {
		v, err := e.host.DataModel().EvalExpr(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("actions: param %q: %w", p.Name, err)
		}
		mergeParam(merged, p.Name, v)
	}
	return merged, nil
}

func mergeParam(m map[string]any, name string, v any) {
	existing, ok := m[name]
	if !ok {
		m[name] = v
		return
	}
	if arr, ok := existing.([]any); ok {
		m[name] = append(arr, v)
		return
	}
	m[name] = []any{existing, v}
}
