package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// LoginGuard counts failed logins per caller address in Redis.
type LoginGuard struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
}

// NewLoginGuard builds a guard. A nil client disables it.
func NewLoginGuard(client *redis.Client, maxAttempts int, window time.Duration) *LoginGuard {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginGuard{client: client, maxAttempts: int64(maxAttempts), window: window}
}

// Check returns ErrTooManyAttempts while addr is locked out.
func (g *LoginGuard) Check(ctx context.Context, addr string) error {
	if g == nil || g.client == nil {
		return nil
	}
	count, err := g.client.Get(ctx, shared.LoginAttemptsKey(addr)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if count >= g.maxAttempts {
		return fmt.Errorf("%w: retry later", shared.ErrTooManyAttempts)
	}
	return nil
}

// Fail records a failed attempt. The window starts at the first failure; the
// increment and the expiry are applied in one MULTI so a counter never
// outlives its window.
func (g *LoginGuard) Fail(ctx context.Context, addr string) error {
	if g == nil || g.client == nil {
		return nil
	}
	key := shared.LoginAttemptsKey(addr)
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, g.window)
		return nil
	})
	return err
}

// Reset clears the counter after a successful login.
func (g *LoginGuard) Reset(ctx context.Context, addr string) error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Del(ctx, shared.LoginAttemptsKey(addr)).Err()
}
