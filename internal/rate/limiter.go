package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailMode selects limiter behavior when the counter backend is unreachable.
type FailMode uint8

const (
	// FailClosed denies consumption when the backend is unavailable.
	FailClosed FailMode = iota
	// FailOpen allows consumption when the backend is unavailable and
	// marks the result as degraded so callers can record the gap.
	FailOpen
)

// Policy is a named sliding-window budget. Block is the lockout applied once
// the budget is exhausted; zero means track-only, where the counter keeps
// growing within the window and consumption never fails.
type Policy struct {
	Name     string
	Points   int64
	Window   time.Duration
	Block    time.Duration
	FailMode FailMode
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("rate: policy name required")
	}
	if p.Points <= 0 {
		return fmt.Errorf("rate: policy %q: points must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate: policy %q: window must be positive", p.Name)
	}
	if p.Block < 0 {
		return fmt.Errorf("rate: policy %q: block must not be negative", p.Name)
	}
	return nil
}

// Result is the outcome of a single Consume call. Consumed is the counter
// value after this call; for a blocked key it is the value that tripped the
// block.
type Result struct {
	Allowed    bool
	Consumed   int64
	Remaining  int64
	RetryAfter time.Duration
	// ResetAfter is how long until the counter clears: the remaining
	// window for allowed requests, the remaining block for denied ones.
	ResetAfter time.Duration
	Degraded   bool
}

// Status is a non-consuming view of one key under one policy.
type Status struct {
	Consumed   int64
	Remaining  int64
	BlockedFor time.Duration
}

const consumeScript = `
local blocked = redis.call("PTTL", KEYS[2])
if blocked > 0 then
  local tripped = tonumber(redis.call("GET", KEYS[2]) or "0")
  return {0, tripped, 0, blocked}
end

local points = tonumber(ARGV[1])
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
end
local window_left = redis.call("PTTL", KEYS[1])
if window_left < 0 then
  window_left = tonumber(ARGV[2])
end

if n > points then
  local block_ms = tonumber(ARGV[3])
  if block_ms > 0 then
    redis.call("SET", KEYS[2], n, "PX", block_ms)
    redis.call("DEL", KEYS[1])
    return {0, n, 0, block_ms}
  end
  return {1, n, 0, window_left}
end

return {1, n, points - n, window_left}
`

var consumeLua = redis.NewScript(consumeScript)

const peekScript = `
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
local blocked = redis.call("PTTL", KEYS[2])
if blocked < 0 then
  blocked = 0
end
return {n, blocked}
`

var peekLua = redis.NewScript(peekScript)

// Limiter is a generic windowed counter over a shared Redis store.
// Window reset rides on key expiry: a consume that finds the count key gone
// starts a fresh window, so a key that sat out a block comes back with a
// zeroed counter, not merely unblocked.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

func countKey(policy, key string) string {
	return "arw:" + policy + ":" + key
}

func blockKey(policy, key string) string {
	return "arb:" + policy + ":" + key
}

// Consume spends one point for key under the policy. The block check, the
// increment, and the blocked-state transition run as one Lua script so that
// concurrent consumers never admit past the budget.
func (l *Limiter) Consume(ctx context.Context, p Policy, key string) (Result, error) {
	raw, err := consumeLua.Run(
		ctx,
		l.redis,
		[]string{countKey(p.Name, key), blockKey(p.Name, key)},
		p.Points,
		p.Window.Milliseconds(),
		p.Block.Milliseconds(),
	).Result()
	if err != nil {
		if p.FailMode == FailOpen {
			return Result{Allowed: true, Remaining: p.Points, ResetAfter: p.Window, Degraded: true}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, err := scriptInts(raw, 4)
	if err != nil {
		return Result{}, err
	}

	if parts[0] == 0 {
		blocked := time.Duration(parts[3]) * time.Millisecond
		return Result{
			Allowed:    false,
			Consumed:   parts[1],
			RetryAfter: blocked,
			ResetAfter: blocked,
		}, nil
	}
	return Result{
		Allowed:    true,
		Consumed:   parts[1],
		Remaining:  parts[2],
		ResetAfter: time.Duration(parts[3]) * time.Millisecond,
	}, nil
}

// Peek reports consumed points and block state without spending a point.
func (l *Limiter) Peek(ctx context.Context, p Policy, key string) (Status, error) {
	raw, err := peekLua.Run(
		ctx,
		l.redis,
		[]string{countKey(p.Name, key), blockKey(p.Name, key)},
	).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, err := scriptInts(raw, 2)
	if err != nil {
		return Status{}, err
	}

	remaining := p.Points - parts[0]
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Consumed:   parts[0],
		Remaining:  remaining,
		BlockedFor: time.Duration(parts[1]) * time.Millisecond,
	}, nil
}

// Reset clears both the window counter and any block state for key.
// Called after successful login or an operator unlock.
func (l *Limiter) Reset(ctx context.Context, p Policy, key string) error {
	if err := l.redis.Del(ctx, countKey(p.Name, key), blockKey(p.Name, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func scriptInts(raw interface{}, want int) ([]int64, error) {
	parts, ok := raw.([]interface{})
	if !ok || len(parts) < want {
		return nil, fmt.Errorf("%w: malformed limiter script reply", ErrRedisUnavailable)
	}

	out := make([]int64, want)
	for i := 0; i < want; i++ {
		v, ok := parts[i].(int64)
		if !ok {
			return nil, fmt.Errorf("%w: malformed limiter script reply", ErrRedisUnavailable)
		}
		out[i] = v
	}
	return out, nil
}
