package workflow

import (
	"math"
	"time"

	"github.com/desertthunder/spc/internal/shared"
)

// RetryPolicy controls how the cleanup step is retried.
type RetryPolicy struct {
	FirstInterval      time.Duration // Delay after the first failed attempt
	MaxAttempts        int           // Attempts including the first
	BackoffCoefficient float64       // Growth per failed attempt; below 1 means a fixed interval
	MaxInterval        time.Duration // Upper bound on the delay; zero means unbounded
}

// DefaultRetryPolicy retries every 5 seconds, three attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{FirstInterval: 5 * time.Second, MaxAttempts: 3, BackoffCoefficient: 1}
}

// PolicyFromConfig converts the configured retry settings, keeping defaults for unset fields.
func PolicyFromConfig(c shared.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if c.FirstInterval > 0 {
		p.FirstInterval = c.FirstInterval
	}
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.BackoffCoefficient > 0 {
		p.BackoffCoefficient = c.BackoffCoefficient
	}
	p.MaxInterval = c.MaxInterval
	return p
}

// Delay returns the wait after the given failed attempt (1-based):
// FirstInterval * BackoffCoefficient^(attempt-1), capped by MaxInterval.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coeff := max(p.BackoffCoefficient, 1)

	d := time.Duration(float64(p.FirstInterval) * math.Pow(coeff, float64(attempt-1)))
	if d < 0 || (p.MaxInterval > 0 && d > p.MaxInterval) {
		d = p.MaxInterval
	}
	return d
}

// Exhausted reports whether no attempt remains after attempt failed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= max(p.MaxAttempts, 1)
}
