package extract

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

var log = logger.ForComponent("extract")

var ErrInvalidTarget = errors.New("invalid target")

// Target is the canonical video id strategies work on.
type Target string

// Outcome is what one strategy produced. An empty Payload with a nil Err
// means the strategy ran fine but found nothing.
type Outcome struct {
	Payload string
	Reason  string
	Err     error
}

type Strategy interface {
	Name() string
	Timeout() time.Duration
	Extract(ctx context.Context, target Target) Outcome
}

type funcStrategy struct {
	name    string
	timeout time.Duration
	fn      func(ctx context.Context, target Target) Outcome
}

func (s *funcStrategy) Name() string                                      { return s.name }
func (s *funcStrategy) Timeout() time.Duration                            { return s.timeout }
func (s *funcStrategy) Extract(ctx context.Context, target Target) Outcome { return s.fn(ctx, target) }

// StrategyFunc adapts a plain function to Strategy.
func StrategyFunc(name string, timeout time.Duration, fn func(ctx context.Context, target Target) Outcome) Strategy {
	return &funcStrategy{name: name, timeout: timeout, fn: fn}
}

type Attempt struct {
	Strategy string        `json:"strategy"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Latency  time.Duration `json:"latency"`
}

type Result struct {
	Target   Target    `json:"target"`
	Payload  string    `json:"payload,omitempty"`
	Source   string    `json:"source,omitempty"`
	Failed   bool      `json:"failed"`
	Message  string    `json:"message,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

func FailureMessage(target Target) string {
	return fmt.Sprintf("Could not retrieve a transcript for video ID '%s'. The video may have no captions or access may be restricted.", target)
}

// Engine tries its strategies in order and stops at the first one that
// yields a non-blank payload.
type Engine struct {
	strategies []Strategy
	breakers   map[string]*CircuitBreaker
}

type EngineOption func(*Engine)

// WithCircuitBreakers gives every strategy its own breaker. A strategy that
// keeps returning errors is skipped until its breaker lets a trial call through.
func WithCircuitBreakers(cfg CircuitConfig) EngineOption {
	return func(e *Engine) {
		e.breakers = make(map[string]*CircuitBreaker, len(e.strategies))
		for _, s := range e.strategies {
			e.breakers[s.Name()] = NewCircuitBreaker(cfg)
		}
	}
}

func NewEngine(strategies []Strategy, opts ...EngineOption) *Engine {
	e := &Engine{strategies: append([]Strategy(nil), strategies...)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

func (e *Engine) CircuitStats() map[string]CircuitStats {
	stats := make(map[string]CircuitStats, len(e.breakers))
	for name, cb := range e.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}

// ResetCircuits closes every open breaker and returns the strategies that
// were not closed before.
func (e *Engine) ResetCircuits() []string {
	var reset []string
	for _, name := range e.Strategies() {
		cb := e.breakers[name]
		if cb == nil {
			continue
		}
		if cb.State() != CircuitClosed {
			reset = append(reset, name)
		}
		cb.Reset()
	}
	return reset
}

// Run validates locator and runs the chain on its video id. An unparseable
// locator returns ErrInvalidTarget before any strategy is called.
func (e *Engine) Run(ctx context.Context, locator string) (*Result, error) {
	id, err := youtube.ParseVideoID(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	return e.RunTarget(ctx, Target(id)), nil
}

func (e *Engine) RunTarget(ctx context.Context, target Target) *Result {
	start := time.Now()
	result := &Result{Target: target, Attempts: make([]Attempt, 0, len(e.strategies))}

	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}

		name := s.Name()
		breaker := e.breakers[name]
		if breaker != nil && !breaker.Allow() {
			log.Debug("strategy skipped, circuit open", "strategy", name, "target", target)
			result.Attempts = append(result.Attempts, Attempt{Strategy: name, Skipped: true, Reason: "circuit open"})
			continue
		}

		attemptStart := time.Now()
		out := e.attempt(ctx, s, target)
		attempt := Attempt{Strategy: name, Reason: out.Reason, Latency: time.Since(attemptStart)}
		if out.Err != nil {
			attempt.Error = out.Err.Error()
		}
		result.Attempts = append(result.Attempts, attempt)

		// a cancelled caller says nothing about the strategy's health
		if breaker != nil && ctx.Err() == nil {
			if out.Err != nil {
				breaker.RecordFailure(out.Err)
			} else {
				breaker.RecordSuccess()
			}
		}

		if strings.TrimSpace(out.Payload) != "" {
			result.Payload = out.Payload
			result.Source = name
			log.Info("transcript extracted", "target", target, "strategy", name, "chars", len(out.Payload), "latency_ms", time.Since(start).Milliseconds())
			return result
		}

		log.Debug("strategy produced nothing", "strategy", name, "target", target, "reason", out.Reason, "error", out.Err)
	}

	result.Failed = true
	result.Message = FailureMessage(target)
	log.Warn("all strategies failed", "target", target, "attempts", len(result.Attempts), "latency_ms", time.Since(start).Milliseconds())
	return result
}

// attempt runs one strategy under its own timeout. A strategy that ignores
// its context is abandoned when the timeout fires.
func (e *Engine) attempt(ctx context.Context, s Strategy, target Target) Outcome {
	ctx, cancel := WithTimeout(ctx, s.Timeout())
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("strategy panic recovered",
					"strategy", s.Name(),
					"panic", r,
					"stack", string(debug.Stack()))
				done <- Outcome{Err: fmt.Errorf("strategy %s panicked: %v", s.Name(), r)}
			}
		}()
		done <- s.Extract(ctx, target)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		select {
		case out := <-done:
			return out
		default:
		}
		return Outcome{Reason: "timed out", Err: ctx.Err()}
	}
}

func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
