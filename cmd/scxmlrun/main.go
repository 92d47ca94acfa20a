// Command scxmlrun builds a small in-process traffic-light chart, starts a
// session on it, prints the chart as DOT, then sends a "timer" event every
// 2 seconds and prints the active configuration after each cycle until
// SIGINT/SIGTERM — a minimal harness in the teacher's cmd/demo idiom,
// adapted from a driven Machine to a driven Session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comalice/scxmlcore/internal/logx"
	"github.com/comalice/scxmlcore/ir"
	"github.com/comalice/scxmlcore/production"
	"github.com/comalice/scxmlcore/session"
)

// buildTrafficLightChart mirrors the teacher's cmd/demo traffic-light
// example, translated into SCXML's compound/atomic/transition shape.
func buildTrafficLightChart() *ir.Chart {
	red := ir.NewState("red", ir.Atomic).WithTransition(ir.NewTransition("timer", "", "green"))
	green := ir.NewState("green", ir.Atomic).WithTransition(ir.NewTransition("timer", "", "yellow"))
	yellow := ir.NewState("yellow", ir.Atomic).WithTransition(ir.NewTransition("timer", "", "red"))
	traffic := ir.NewState("traffic", ir.Compound).WithChildren(red, green, yellow).WithInitialChild("red")

	b := ir.NewBuilder("traffic-light")
	b.AddState(traffic)
	return b.Build(traffic)
}

func main() {
	chart := buildTrafficLightChart()

	persister, err := production.NewJSONPersister(os.TempDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, "scxmlrun: persister:", err)
		os.Exit(1)
	}
	publishChan := make(chan production.PublishedEvent, 100)
	publisher := production.NewChannelPublisher(publishChan)
	go func() {
		for pe := range publishChan {
			logx.Default().Debug("event published", "session", pe.SessionID, "event", pe.Event.Name)
		}
	}()
	visualizer := &production.DefaultVisualizer{}

	logger := logx.Default().With("component", "scxmlrun")
	sess := session.New("session_1", chart, session.WithLogger(logger))

	if err := sess.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "scxmlrun: start:", err)
		os.Exit(1)
	}
	defer sess.Stop()

	if err := persister.Save(context.Background(), production.SnapshotOf(sess.ID(), chart.Name, sess.GetActiveStates())); err != nil {
		logger.Error("snapshot", "err", err)
	}
	fmt.Println(visualizer.ExportDOT(chart, sess.GetActiveStates()))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	cycles := 0
	for {
		select {
		case <-ticker.C:
			if err := sess.ProcessEvent(ir.EventObject{Name: "timer", Type: ir.EventExternal}); err != nil {
				fmt.Fprintln(os.Stderr, "scxmlrun: process event:", err)
			}
			cycles++
			fmt.Printf("--- cycle %d --- active: %v\n", cycles, sess.GetActiveStates())
		case <-sig:
			fmt.Println("scxmlrun: shutting down")
			publisher.Close()
			return
		}
	}
}
