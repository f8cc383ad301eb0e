package session

import (
	"context"
	"sync"
	"time"
)

// Pool holds the active session of every front-end context
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{sessions: make(map[string]*Controller)}
}

// Get returns the session for key, or nil
func (p *Pool) Get(key string) *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[key]
}

// Replace installs ctl for key and returns the session it displaced, if any.
// The caller closes the displaced session.
func (p *Pool) Replace(key string, ctl *Controller) *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.sessions[key]
	p.sessions[key] = ctl
	return prev
}

// Len returns the number of held sessions
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Sweep closes and removes sessions that ended or saw no activity for ttl
func (p *Pool) Sweep(ctx context.Context, now time.Time, ttl time.Duration) int {
	p.mu.Lock()
	var evicted []*Controller
	for key, ctl := range p.sessions {
		state := ctl.State()
		if state.Status.Terminal() || now.Sub(state.LastActivity) >= ttl {
			evicted = append(evicted, ctl)
			delete(p.sessions, key)
		}
	}
	p.mu.Unlock()

	for _, ctl := range evicted {
		ctl.Close(ctx)
	}
	return len(evicted)
}

// CloseAll closes every session and empties the pool
func (p *Pool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Controller)
	p.mu.Unlock()

	for _, ctl := range sessions {
		ctl.Close(ctx)
	}
}
