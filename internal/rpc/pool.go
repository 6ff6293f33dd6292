package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Pool keeps one Session per caller key, typically one per UI session, so
// that independent callers never share a child process.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func(key string) *Session
}

func NewPool(factory func(key string) *Session) *Pool {
	return &Pool{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

func NewKey() string {
	return uuid.NewString()
}

// Get returns the connected session for key, creating it or retrying the
// handshake as needed. A closed session is replaced by a fresh one.
func (p *Pool) Get(ctx context.Context, key string) (*Session, error) {
	p.mu.Lock()
	s, ok := p.sessions[key]
	if !ok || s.State() == StateClosed {
		s = p.factory(key)
		p.sessions[key] = s
	}
	p.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset disconnects and forgets the session for key.
func (p *Pool) Reset(ctx context.Context, key string) error {
	p.mu.Lock()
	s, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Disconnect(ctx)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close disconnects every session.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
