package ratelimit

import (
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alextesy/stocktalk/internal/models"
)

// Decision is the outcome of classifying a failed source call. When Retry is
// false the caller abandons the current unit of work and moves on; it never
// aborts the whole run on exhausted retries.
type Decision struct {
	Retry bool
	Wait  time.Duration
}

// BackoffPolicy computes retry decisions for rate-limited source calls with
// exponential backoff and jitter.
type BackoffPolicy struct {
	Base   time.Duration // first-attempt backoff
	Cap    time.Duration // backoff ceiling
	Jitter time.Duration // uniform jitter added to the computed backoff

	// rand is swapped out in tests for deterministic jitter.
	rand func(d time.Duration) time.Duration
}

// NewBackoffPolicy creates the default policy: 30s base, doubling per
// attempt, up to 5s of jitter, capped at 180s.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		Base:   30 * time.Second,
		Cap:    180 * time.Second,
		Jitter: 5 * time.Second,
		rand: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d)))
		},
	}
}

// explicitWaitPattern matches "retry in N minute(s)" / "try again in N
// second(s)" style messages some sources embed in rate-limit errors.
var explicitWaitPattern = regexp.MustCompile(`(?i)(?:retry|try again) in (\d+) (minute|second)s?`)

// Classify decides whether a failed operation should be retried and how long
// to wait first.
//
// Non-rate-limit errors are never retried here; the caller decides fatal vs
// skip. Rate-limit errors past maxAttempts are not retried either: retries
// are exhausted and the caller abandons this unit of work. Otherwise an
// explicit wait named by the source is used verbatim, falling back to
// min(base*2^attempt + jitter, cap).
//
// The message parsing is best-effort: the exponential fallback is the
// primary mechanism, since upstream message formats change without notice.
func (p *BackoffPolicy) Classify(err error, attempt, maxAttempts int) Decision {
	if models.OutcomeOf(err) != models.OutcomeRateLimited {
		return Decision{Retry: false}
	}
	if attempt >= maxAttempts {
		return Decision{Retry: false}
	}

	if wait, ok := explicitWait(err); ok {
		return Decision{Retry: true, Wait: wait}
	}

	backoff := p.Base << uint(attempt)
	if backoff > p.Cap || backoff <= 0 {
		backoff = p.Cap
	}
	backoff += p.rand(p.Jitter)
	if backoff > p.Cap {
		backoff = p.Cap
	}
	return Decision{Retry: true, Wait: backoff}
}

// explicitWait extracts a wait duration the source named, either as a
// structured RetryAfter on the classified error or parsed from the message.
func explicitWait(err error) (time.Duration, bool) {
	var se *models.SourceError
	if !errors.As(err, &se) {
		return 0, false
	}
	if se.RetryAfter > 0 {
		return se.RetryAfter, true
	}

	m := explicitWaitPattern.FindStringSubmatch(se.Message)
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil || n <= 0 {
		return 0, false
	}
	if strings.EqualFold(m[2], "minute") {
		return time.Duration(n) * time.Minute, true
	}
	return time.Duration(n) * time.Second, true
}
