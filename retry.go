package machina

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use in Policy.Retry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given retry budget.
//
// maxRetries counts retries, not attempts; maxRetries <= 0 is treated
// as 0 (a single attempt, no retries).
func Retry(maxRetries int) RetryBuilder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryBuilder{policy: RetryPolicy{MaxRetries: maxRetries}}
}

// WithLinearBackoff configures recovery delays of base, 2*base, 3*base.
func (r RetryBuilder) WithLinearBackoff(base time.Duration) RetryBuilder {
	p := r.policy
	p.Backoff = BackoffLinear
	p.BaseDelay = base
	return RetryBuilder{policy: p}
}

// WithExponentialBackoff configures recovery delays of base, 2*base,
// 4*base.
func (r RetryBuilder) WithExponentialBackoff(base time.Duration) RetryBuilder {
	p := r.policy
	p.Backoff = BackoffExponential
	p.BaseDelay = base
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between recovery attempts. The retry
// budget still applies.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Backoff = BackoffLinear
	p.BaseDelay = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
