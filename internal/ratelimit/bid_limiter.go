package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/leadex/leadex/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyBidUser = "bids:user:%s"

// BidLimiter throttles bid submissions per buyer. It is disabled when no
// redis address is configured; a nil limiter allows everything.
type BidLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewBidLimiter(cfg config.Config) *BidLimiter {
	if cfg.RedisAddr == "" {
		return nil
	}
	if cfg.BidRateLimitRate <= 0 || cfg.BidRateLimitBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	return &BidLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.BidRateLimitRate,
		burst:  cfg.BidRateLimitBurst,
	}
}

func (l *BidLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *BidLimiter) AllowBid(ctx context.Context, userID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyBidUser, userID.String()), l.rate, l.burst)
}
