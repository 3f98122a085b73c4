package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/revshare/internal/config"
)

const keyIntakeTenant = "revshare:intake:tenant:%s"

// IntakeLimiter applies a per-tenant token bucket to notification intake.
type IntakeLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewIntakeLimiter returns nil when limiting is off or Redis is absent.
func NewIntakeLimiter(cfg config.Config, client *redis.Client) (*IntakeLimiter, error) {
	intake := cfg.Intake
	if !intake.RateLimitEnabled || client == nil {
		return nil, nil
	}
	if intake.RateLimitPerSecond <= 0 || intake.RateLimitBurst <= 0 {
		return nil, ErrLimiterInvalidRate
	}
	return &IntakeLimiter{
		bucket: NewTokenBucket(client),
		rate:   intake.RateLimitPerSecond,
		burst:  intake.RateLimitBurst,
	}, nil
}

func (l *IntakeLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IntakeLimiter) AllowTenant(ctx context.Context, tenantID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, IntakeKey(tenantID), l.rate, l.burst)
}

func IntakeKey(tenantID string) string {
	return fmt.Sprintf(keyIntakeTenant, strings.TrimSpace(tenantID))
}
