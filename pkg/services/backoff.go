package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

const (
	PolicyRateLimit        = "rate_limit"
	PolicyRateLimitAndAuth = "rate_limit_and_auth"

	defaultAuthBackoffBase = time.Minute
	defaultAuthBackoffMax  = time.Hour

	// keeps 2^attempts well inside int64
	maxBackoffShift = 30
)

// BackoffState is the backoff bookkeeping of a coordinator. The zero value
// means no backoff.
type BackoffState struct {
	RateLimitUntil   time.Time `json:"rate_limit_until,omitempty"`
	AuthFailureCount int       `json:"auth_failure_count,omitempty"`
	AuthBackoffUntil time.Time `json:"auth_backoff_until,omitempty"`
}

// Active returns the backoff window that is still open at now, preferring
// the one that ends last. It returns nil when no window is open.
func (s BackoffState) Active(now time.Time) *models.BackoffActiveError {
	var active *models.BackoffActiveError
	if now.Before(s.RateLimitUntil) {
		active = &models.BackoffActiveError{
			Reason:    models.BackoffRateLimit,
			Until:     s.RateLimitUntil,
			Remaining: s.RateLimitUntil.Sub(now),
		}
	}
	if now.Before(s.AuthBackoffUntil) && (active == nil || s.AuthBackoffUntil.After(active.Until)) {
		active = &models.BackoffActiveError{
			Reason:    models.BackoffAuthFailure,
			Until:     s.AuthBackoffUntil,
			Remaining: s.AuthBackoffUntil.Sub(now),
		}
	}
	return active
}

// BackoffPolicy decides which poll failures open a backoff window.
type BackoffPolicy interface {
	Name() string
	// Record updates state after a failed poll and returns the length of
	// the window it opened, zero when the error does not cause backoff.
	Record(state *BackoffState, err error, now time.Time) time.Duration
}

// RateLimitPolicy backs off only when the bank answers 429, for as long
// as its Retry-After asks.
type RateLimitPolicy struct{}

func (RateLimitPolicy) Name() string {
	return PolicyRateLimit
}

func (RateLimitPolicy) Record(state *BackoffState, err error, now time.Time) time.Duration {
	var rl *models.RateLimitError
	if !errors.As(err, &rl) {
		return 0
	}
	until := now.Add(rl.RetryAfter)
	if until.After(state.RateLimitUntil) {
		state.RateLimitUntil = until
	}
	return rl.RetryAfter
}

// RateLimitAndAuthPolicy additionally backs off on 401 and 403, doubling
// the window with every consecutive failure up to Max.
type RateLimitAndAuthPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func (p RateLimitAndAuthPolicy) Name() string {
	return PolicyRateLimitAndAuth
}

func (p RateLimitAndAuthPolicy) Record(state *BackoffState, err error, now time.Time) time.Duration {
	if window := (RateLimitPolicy{}).Record(state, err, now); window > 0 {
		return window
	}

	var upstream *models.UpstreamError
	if !errors.As(err, &upstream) || !upstream.IsAuthFailure() {
		return 0
	}

	base := p.Base
	if base <= 0 {
		base = defaultAuthBackoffBase
	}
	maxWindow := p.Max
	if maxWindow <= 0 {
		maxWindow = defaultAuthBackoffMax
	}

	window := exponential(base, state.AuthFailureCount)
	if window > maxWindow {
		window = maxWindow
	}
	state.AuthFailureCount++
	state.AuthBackoffUntil = now.Add(window)
	return window
}

// exponential returns base * 2^attempt, saturating instead of overflowing.
func exponential(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return base * time.Duration(multiplier)
}

// NewBackoffPolicy returns the policy registered under name. An empty name
// selects the rate limit policy.
func NewBackoffPolicy(name string) (BackoffPolicy, error) {
	switch name {
	case "", PolicyRateLimit:
		return RateLimitPolicy{}, nil
	case PolicyRateLimitAndAuth:
		return RateLimitAndAuthPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", name)
	}
}
