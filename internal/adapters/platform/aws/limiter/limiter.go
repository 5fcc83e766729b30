package limiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
)

const (
	DefaultRateLimitRPS = 20
	minRateLimitRPS     = 1
	maxRateLimitRPS     = 100
)

// RateLimiter throttles AWS API calls across every gateway of one provider.
type RateLimiter struct {
	limiter *rate.Limiter
	rps     int
	logger  ports.Logger
}

// New builds a limiter allowing rps calls per second with a burst of rps.
// Zero selects the default; values outside 1..100 fall back to it with a
// warning.
func New(rps int, logger ports.Logger) *RateLimiter {
	limitValue := DefaultRateLimitRPS
	switch {
	case rps >= minRateLimitRPS && rps <= maxRateLimitRPS:
		limitValue = rps
	case rps != 0:
		logger.Warnf(context.Background(), "Invalid AWS API RPS configured (%d), using default %d RPS. Valid range: %d-%d.",
			rps, DefaultRateLimitRPS, minRateLimitRPS, maxRateLimitRPS)
	}
	logger.Debugf(context.Background(), "Initialized AWS API rate limiter: %d RPS", limitValue)

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(limitValue), limitValue),
		rps:     limitValue,
		logger:  logger,
	}
}

func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			l.logger.Warnf(ctx, "Error waiting for AWS API rate limiter: %v", err)
		}
		return err
	}
	return nil
}

func (l *RateLimiter) RPS() int {
	return l.rps
}
