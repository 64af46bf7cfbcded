package pipeline

import (
	"time"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// Decision is the outcome of the retry/escalation policy for one failure.
// Exactly one of Retry/Escalate is true.
type Decision struct {
	Retry    bool
	Escalate bool
	// Delay is how long the replacement record must wait before it becomes
	// due. Only meaningful when Retry is true.
	Delay time.Duration
}

// Policy decides, for a failed attempt, whether to back off and retry or to
// escalate the record to human review. It is a pure function of
// (attempt count, error kind): no clock, no store, no hidden state.
type Policy struct {
	// MaxRetries bounds the attempt count; reaching it always escalates.
	MaxRetries int
	// BaseDelay is the backoff for the first retry; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy mirrors the retry budget of the original pipeline.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute}
}

// Decide maps (retryCount, kind) to a decision. retryCount is the attempt
// number that just failed, 1-based.
//
// Permanent and config failures escalate immediately: a deterministic input
// error cannot be fixed by running the same stage again. Transient failures
// back off exponentially until MaxRetries attempts have been burned.
func (p Policy) Decide(retryCount int, kind domain.ErrorKind) Decision {
	if !kind.Retryable() {
		return Decision{Escalate: true}
	}
	if retryCount >= p.MaxRetries {
		return Decision{Escalate: true}
	}

	delay := p.BaseDelay << uint(retryCount-1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return Decision{Retry: true, Delay: delay}
}
