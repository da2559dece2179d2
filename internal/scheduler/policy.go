package scheduler

import "postpilot/internal/faults"

// Decision tells the engine what to do with a failed attempt.
type Decision int

const (
	// DecideRetry makes the task eligible again on the next poll cycle.
	DecideRetry Decision = iota
	// DecideRetryDelayed pushes publishAt forward by the policy delay first.
	DecideRetryDelayed
	// DecideNoRetry fails the task immediately.
	DecideNoRetry
	// DecideSuspend parks the task for human attention: publishAt moves far
	// forward and the attempt does not count against the retry budget.
	DecideSuspend
)

// RetryPolicy maps a classified failure to a retry decision. The retry-count
// budget gate stays in the engine; policies only shape what happens within it.
type RetryPolicy interface {
	Decide(code faults.Code, retryCount int) Decision
}

// UniformPolicy retries every error kind alike: the historical behavior
// (3 total attempts, then terminal failure) that callers depend on. It is
// the default.
type UniformPolicy struct{}

func (UniformPolicy) Decide(faults.Code, int) Decision { return DecideRetry }

// KindPolicy is the per-kind mapping the taxonomy calls for: credentials
// and payload problems don't heal by retrying, rate limits want spacing,
// and captchas want a human. Opt-in; swapping it in changes observable
// retry behavior.
type KindPolicy struct{}

func (KindPolicy) Decide(code faults.Code, _ int) Decision {
	switch code {
	case faults.AuthFailed, faults.InvalidPayload, faults.ContentViolation, faults.InvalidConfig:
		return DecideNoRetry
	case faults.RateLimit:
		return DecideRetryDelayed
	case faults.CaptchaRequired:
		return DecideSuspend
	default:
		return DecideRetry
	}
}
