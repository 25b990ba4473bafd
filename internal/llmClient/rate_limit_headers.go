package llmclient

import "time"

// Budget is one provider quota dimension. Known is false when the response
// carried no remaining count for it.
type Budget struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Known     bool
}

func (b Budget) Exhausted() bool { return b.Known && b.Remaining <= 0 }

// Quota is the rate-limit state reported alongside a provider response.
type Quota struct {
	RetryAfter time.Duration
	Requests   Budget
	Tokens     Budget
	ObservedAt time.Time
}

// Wait is how long a caller should hold off at now. retry-after wins,
// otherwise the latest reset among exhausted budgets applies.
func (q Quota) Wait(now time.Time) time.Duration {
	if q.RetryAfter > 0 {
		return clampWait(q.ObservedAt.Add(q.RetryAfter).Sub(now))
	}
	var wait time.Duration
	for _, b := range []Budget{q.Requests, q.Tokens} {
		if b.Exhausted() && !b.Reset.IsZero() {
			wait = max(wait, b.Reset.Sub(now))
		}
	}
	return clampWait(wait)
}

// QuotaReporter is implemented by clients that remember the quota of their
// most recent response.
type QuotaReporter interface {
	LastQuota() (Quota, bool)
}

func clampWait(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
