package streams

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// poller runs one session's tick on a fixed interval. Ticks never overlap;
// a slow tick makes the ticker drop the fires it missed.
type poller struct {
	sessionID uuid.UUID
	interval  time.Duration
	tick      func(ctx context.Context)
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

// newPoller prepares a poller bound to parent. Nothing runs until start.
func newPoller(parent context.Context, sessionID uuid.UUID, interval time.Duration, tick func(ctx context.Context)) *poller {
	ctx, cancel := context.WithCancel(parent)
	return &poller{
		sessionID: sessionID,
		interval:  interval,
		tick:      tick,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// start launches the loop and reports whether it did. A poller stopped before
// start never runs.
func (p *poller) start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return false
	}
	p.started = true
	go p.run(p.ctx)
	return true
}

// stop cancels the loop and waits for an in-flight tick to return. Safe to
// call more than once, and before start.
func (p *poller) stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		started := p.started
		p.mu.Unlock()
		p.cancel()
		if started {
			<-p.done
		}
	})
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop racing with the ticker must win.
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}
}

// pollerRegistry holds running pollers per session id (thread-safe).
type pollerRegistry struct {
	mu      sync.Mutex
	pollers map[uuid.UUID]*poller
}

func newPollerRegistry() *pollerRegistry {
	return &pollerRegistry{pollers: make(map[uuid.UUID]*poller)}
}

// add registers p unless a poller already exists for its session.
func (reg *pollerRegistry) add(p *poller) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.pollers[p.sessionID] != nil {
		return false
	}
	reg.pollers[p.sessionID] = p
	return true
}

// remove detaches and returns the poller for sessionID, or nil.
func (reg *pollerRegistry) remove(sessionID uuid.UUID) *poller {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p := reg.pollers[sessionID]
	delete(reg.pollers, sessionID)
	return p
}

// removeIf detaches p only if it is still the registered poller for its session.
func (reg *pollerRegistry) removeIf(p *poller) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.pollers[p.sessionID] != p {
		return false
	}
	delete(reg.pollers, p.sessionID)
	return true
}

// drain detaches every poller.
func (reg *pollerRegistry) drain() []*poller {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*poller, 0, len(reg.pollers))
	for id, p := range reg.pollers {
		out = append(out, p)
		delete(reg.pollers, id)
	}
	return out
}

func (reg *pollerRegistry) has(sessionID uuid.UUID) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.pollers[sessionID] != nil
}

func (reg *pollerRegistry) count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.pollers)
}
