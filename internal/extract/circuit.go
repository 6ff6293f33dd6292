package extract

import (
	"sync"
	"time"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      5 * time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker stops a strategy from being tried after repeated hard
// failures (blocked requests, HTTP errors, timeouts), then lets one trial
// extraction through once OpenTimeout has passed.
type CircuitBreaker struct {
	config        CircuitConfig
	state         CircuitState
	failures      int
	successes     int
	trips         int
	lastFailure   time.Time
	lastError     string
	halfOpenCalls int
	now           func() time.Time
	mu            sync.RWMutex
}

func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	defaults := DefaultCircuitConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = defaults.HalfOpenMaxCalls
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.config.OpenTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCalls = 0
			cb.successes = 0
			return cb.allowHalfOpen()
		}
		return false

	case CircuitHalfOpen:
		return cb.allowHalfOpen()
	}

	return false
}

func (cb *CircuitBreaker) allowHalfOpen() bool {
	if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
		cb.halfOpenCalls++
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0

	case CircuitHalfOpen:
		cb.successes++
		cb.halfOpenCalls--
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure counts err against the strategy. A failed trial call re-opens the
// breaker at once.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	if err != nil {
		cb.lastError = err.Error()
	}

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.open()
		}

	case CircuitHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.trips++
	cb.halfOpenCalls = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset closes the breaker and forgets the failure streak. Trips and the
// last error are kept for status reports.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0
}

func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	st := CircuitStats{
		State:       cb.state,
		Failures:    cb.failures,
		Trips:       cb.trips,
		LastFailure: cb.lastFailure,
		LastError:   cb.lastError,
	}
	if cb.state == CircuitOpen {
		st.RetryAt = cb.lastFailure.Add(cb.config.OpenTimeout)
	}
	return st
}

type CircuitStats struct {
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	Trips       int          `json:"trips"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	RetryAt     time.Time    `json:"retry_at,omitempty"`
}
