// Package ratelimit enforces fixed-window request budgets per client and
// route class.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

// ErrUnknownClass is returned for a route class without a policy.
var ErrUnknownClass = errors.New("unknown rate limit class")

// Store counts hits in fixed windows. Incr records one hit for key and
// returns the count including it and the end of the current window. A window
// that has elapsed is reset by the same call.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limiter applies class policies on top of a Store.
type Limiter struct {
	store    Store
	policies map[string]config.RateLimitPolicy
	logger   interfaces.Logger
}

// NewLimiter creates a limiter. policies is copied.
func NewLimiter(store Store, policies map[string]config.RateLimitPolicy, logger interfaces.Logger) *Limiter {
	copied := make(map[string]config.RateLimitPolicy, len(policies))
	for class, p := range policies {
		copied[class] = p
	}
	return &Limiter{
		store:    store,
		policies: copied,
		logger:   logger,
	}
}

// Policy returns the policy for class.
func (l *Limiter) Policy(class string) (config.RateLimitPolicy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

// Allow counts the request against (key, class). The request that pushes the
// count past the policy maximum is rejected. Store failures fail open.
func (l *Limiter) Allow(ctx context.Context, key, class string) (interfaces.RateDecision, error) {
	policy, ok := l.policies[class]
	if !ok {
		return interfaces.RateDecision{Allowed: true, Class: class}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	decision := interfaces.RateDecision{
		Class:   class,
		Limit:   policy.Max,
		Message: policy.Message,
	}

	count, resetAt, err := l.store.Incr(ctx, class+":"+key, policy.Window)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("Rate limit store unavailable, allowing request", map[string]any{
				"class": class,
				"error": err.Error(),
			})
		}
		decision.Allowed = true
		decision.Remaining = policy.Max
		decision.ResetAt = time.Now().Add(policy.Window)
		return decision, nil
	}

	decision.ResetAt = resetAt
	decision.Allowed = count <= int64(policy.Max)
	if remaining := int64(policy.Max) - count; remaining > 0 {
		decision.Remaining = int(remaining)
	}

	if !decision.Allowed && l.logger != nil {
		l.logger.Warn("Rate limit exceeded", map[string]any{
			"class":    class,
			"client":   key,
			"limit":    policy.Max,
			"reset_at": resetAt,
		})
	}
	return decision, nil
}
