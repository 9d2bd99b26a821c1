package escalation

import (
	"context"
	"log"
	"sync"
	"time"
)

// State is the poller's scheduling state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
)

// Applier performs one combined detect-and-escalate pass against the store.
type Applier interface {
	EscalateOverdue(ctx context.Context, now time.Time, window time.Duration) ([]Event, error)
}

// Dispatcher receives one escalation event per transitioned row. Delivery is
// fire-and-forget; its failures never touch escalation state.
type Dispatcher interface {
	Dispatch(ev Event)
}

// Poller owns the scheduling loop: it wakes on a fixed interval, runs a single
// scan-and-apply unit, and drops ticks that arrive while a cycle is running.
type Poller struct {
	applier      Applier
	dispatcher   Dispatcher
	window       time.Duration
	interval     time.Duration
	cycleTimeout time.Duration

	mu    sync.Mutex
	state State
}

// NewPoller creates a poller. dispatcher may be nil when no downstream sink is
// configured.
func NewPoller(applier Applier, dispatcher Dispatcher, window, interval, cycleTimeout time.Duration) *Poller {
	return &Poller{
		applier:      applier,
		dispatcher:   dispatcher,
		window:       window,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		state:        StateIdle,
	}
}

// State reports the current scheduling state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) tryBegin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return false
	}
	p.state = StateRunning
	return true
}

func (p *Poller) finish() {
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

// Run ticks forever until ctx is cancelled. Cycle failures are logged and
// discarded; the loop keeps ticking.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("Starting escalation poller (interval %s, window %s)", p.interval, p.window)

	p.runCycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Escalation poller shutting down.")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		log.Printf("Escalation cycle failed: %v", err)
	}
}

// RunOnce performs one scan-and-apply cycle. A call arriving while another
// cycle is running returns immediately without queuing. The cycle is bounded
// by the configured per-cycle timeout; a timeout is reported like any other
// cycle failure.
func (p *Poller) RunOnce(ctx context.Context) error {
	if !p.tryBegin() {
		return nil
	}
	defer p.finish()

	if p.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cycleTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	escalated, err := p.applier.EscalateOverdue(ctx, now, p.window)
	if err != nil {
		return err
	}

	if len(escalated) > 0 {
		log.Printf("Escalated %d silent emergency check-ins", len(escalated))
		if p.dispatcher != nil {
			for _, ev := range escalated {
				p.dispatcher.Dispatch(ev)
			}
		}
	}
	return nil
}
