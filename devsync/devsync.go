// Package devsync mediates between the single-threaded drawing engine
// and the concurrent server. One Guard provides both the exclusive
// section that protects the history store and a single-slot handoff for
// work the server needs executed on the engine's thread.
package devsync

import (
	"fmt"
	"sync"

	"github.com/gdlive/gdlive/observability"
)

// Task is deferred work executed at the engine's next safe point.
type Task func()

type pending struct {
	task Task
	done chan struct{}
}

// Guard owns the store lock and the deferred-task slot. The server is
// the only producer of deferred tasks and the engine the only
// consumer.
type Guard struct {
	mu     sync.Mutex
	slot   chan pending
	logger observability.Logger
}

func NewGuard(logger observability.Logger) *Guard {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Guard{slot: make(chan pending, 1), logger: logger}
}

// Exclusive runs fn while holding the store lock. Sections must stay
// short: no I/O, no rendering; copy what you need and get out.
func (g *Guard) Exclusive(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// Defer schedules task to run on the engine thread at its next safe
// point. With wait set the call blocks until the task has finished
// (or was discarded by Drain). Blocks while a previous task is still
// unclaimed; there is exactly one slot.
func (g *Guard) Defer(task Task, wait bool) {
	p := pending{task: task}
	if wait {
		p.done = make(chan struct{})
	}
	g.slot <- p
	if wait {
		<-p.done
	}
}

// Poll runs at most one pending deferred task and reports whether one
// ran. With an empty slot it returns immediately; the engine calls
// this between its own operations and must never stall here.
func (g *Guard) Poll() bool {
	select {
	case p := <-g.slot:
		g.run(p)
		return true
	default:
		return false
	}
}

// Drain runs any pending task and releases waiting producers. Called
// once during device teardown so a server blocked in Defer cannot
// outlive the engine.
func (g *Guard) Drain() {
	for {
		select {
		case p := <-g.slot:
			g.run(p)
		default:
			return
		}
	}
}

// run isolates task failures: a panicking deferred task is logged and
// swallowed so it cannot unwind into the engine's native caller.
func (g *Guard) run(p pending) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("deferred task panicked",
				observability.Error("panic", fmt.Errorf("%v", r)))
		}
		if p.done != nil {
			close(p.done)
		}
	}()
	p.task()
}
