package session

import (
	"fmt"

	"github.com/comalice/scxmlcore/datamodel"
	"github.com/comalice/scxmlcore/equeue"
	"github.com/comalice/scxmlcore/invoke"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/scheduler"
)

// execHostAdapter satisfies actions.Host by delegating to the owning
// Session, keeping package actions ignorant of package session's existence
// (the dependency only runs the other way).
type execHostAdapter struct{ s *Session }

func (a *execHostAdapter) DataModel() *datamodel.Context   { return a.s.dm }
func (a *execHostAdapter) Queues() *equeue.Pair             { return a.s.qp }
func (a *execHostAdapter) Scheduler() *scheduler.Scheduler  { return a.s.sch }
func (a *execHostAdapter) BaseDir() string                  { return a.s.chart.BaseDir }
func (a *execHostAdapter) HasInvoke(invokeID string) bool   { return a.s.inv.HasInvoke(invokeID) }
func (a *execHostAdapter) Log(label, message string)        { a.s.logger.UserLog(label, message) }

// parentHostAdapter satisfies invoke.ParentHost.
type parentHostAdapter struct{ s *Session }

func (a *parentHostAdapter) EnqueueExternal(ev ir.EventObject) {
	a.s.qp.External.Enqueue(ev)
}

func (a *parentHostAdapter) RunFinalize(block ir.ActionBlock, triggeringEvent ir.EventObject) {
	if err := a.s.dm.SetEvent(eventToJS(triggeringEvent)); err != nil {
		a.s.logger.Error("bind _event for finalize", "err", err)
	}
	a.s.ex.RunBlock(block)
}

func (a *parentHostAdapter) EvalExpr(src string) (any, error) {
	return a.s.dm.EvalExpr(src)
}

func (a *parentHostAdapter) SetDataModel(location string, value any) error {
	return a.s.dm.Set(location, value)
}

// SpawnChild resolves inv's target chart (inline content or the chart
// loader) and constructs a fresh child Session parented to a, seeded with
// the evaluated namelist/param values, per W3C 6.4.1. It does not start the
// child — invoke.Manager.Start does that on its own goroutine once this
// returns.
func (a *parentHostAdapter) SpawnChild(inv *ir.InvokeNode, id string, namelistValues, paramValues map[string]any) (invoke.ChildSession, error) {
	childChart := inv.Content
	if childChart == nil {
		src := inv.Src
		if inv.SrcExpr != "" {
			v, err := a.s.dm.EvalExpr(inv.SrcExpr)
			if err != nil {
				return nil, err
			}
			src = fmt.Sprintf("%v", v)
		}
		if src == "" {
			return nil, fmt.Errorf("session: invoke has neither content nor src")
		}
		if a.s.chartLoader == nil {
			return nil, fmt.Errorf("session: invoke src %q requires a chart loader", src)
		}
		loaded, err := a.s.chartLoader(inv)
		if err != nil {
			return nil, fmt.Errorf("session: loading invoke src %q: %w", src, err)
		}
		childChart = loaded
	}

	seed := make(map[string]any, len(namelistValues)+len(paramValues))
	for k, v := range namelistValues {
		seed[k] = v
	}
	for k, v := range paramValues {
		seed[k] = v
	}

	childID := scheduler.NewOpaqueID()
	child := New(childID, childChart,
		WithParent(a.s),
		WithInvokeID(id),
		WithHTTPSender(a.s.http),
		WithChartLoader(a.s.chartLoader),
		WithLogger(a.s.logger.With("parent_session", a.s.id, "invoke_id", id)),
		WithInitialData(seed),
	)
	return child, nil
}

// childSender resolves invokeID to its live child and delivers ev to it,
// used for #_<invokeid> scheduled sends routed through deliverReady.
func (s *Session) childSender(invokeID string, ev ir.EventObject) {
	if child, ok := s.inv.Child(invokeID); ok {
		child.SendExternal(ev)
	}
}
