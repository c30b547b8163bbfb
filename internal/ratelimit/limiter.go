// Package ratelimit provides per-(organization, model) sliding-window
// admission control and monthly cost accounting, backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/columbushq/columbus/pkg/models"
)

// Budget is the fixed admission budget for one assistant.
type Budget struct {
	Requests       int
	Window         time.Duration
	CostPerRequest float64
}

// Budgets maps each assistant to its budget. Fixed configuration, not
// dynamic: distinct assistants have independent budgets, so exhausting one
// never blocks another for the same organization.
var Budgets = map[string]Budget{
	models.ModelChatGPT:    {Requests: 100, Window: time.Hour, CostPerRequest: 0.03},
	models.ModelClaude:     {Requests: 100, Window: time.Hour, CostPerRequest: 0.04},
	models.ModelGemini:     {Requests: 100, Window: time.Hour, CostPerRequest: 0.02},
	models.ModelPerplexity: {Requests: 50, Window: time.Hour, CostPerRequest: 0.05},
}

const (
	backoffBase   = time.Second
	backoffCap    = 30 * time.Second
	costRetention = 90 * 24 * time.Hour
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// ModelCost is one assistant's slice of the monthly cost ledger.
type ModelCost struct {
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
}

// Summary aggregates the current month's cost ledger for an organization.
type Summary struct {
	Total   float64              `json:"total"`
	ByModel map[string]ModelCost `json:"by_model"`
}

// checkScript prunes expired entries, counts the window, and reserves a slot
// in one atomic round trip. Two concurrent callers can never both observe
// spare capacity and both proceed.
//
// KEYS[1] window zset; ARGV: now_ms, window_ms, capacity, member.
// Returns {allowed, remaining, reset_at_ms}, where reset_at is when the
// oldest entry still counted leaves the window.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count >= capacity then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, 0, tonumber(oldest[2]) + window}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {1, capacity - count - 1, tonumber(oldest[2]) + window}
`)

// Limiter is the shared admission controller and cost tracker. Safe for
// concurrent use; all mutations are single atomic Redis operations.
type Limiter struct {
	client  *redis.Client
	budgets map[string]Budget
	now     func() time.Time
}

// New creates a Limiter over an existing Redis client.
func New(client *redis.Client) *Limiter {
	return &Limiter{
		client:  client,
		budgets: Budgets,
		now:     time.Now,
	}
}

// Check performs an atomic admission check for (org, model). On admission the
// slot is already reserved. If Redis is unreachable the check fails closed:
// external AI APIs bill per call, so denying is cheaper than unbounded calls.
func (l *Limiter) Check(ctx context.Context, orgID uuid.UUID, model string) (Result, error) {
	budget, ok := l.budgets[model]
	if !ok {
		return Result{}, fmt.Errorf("unknown model %q", model)
	}

	now := l.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	vals, err := checkScript.Run(ctx, l.client,
		[]string{windowKey(orgID, model)},
		now, budget.Window.Milliseconds(), budget.Requests, member,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit check: unexpected script reply %v", vals)
	}

	return Result{
		Allowed:   vals[0] == 1,
		Remaining: int(vals[1]),
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}

// Wait blocks the calling goroutine until Check admits, backing off
// exponentially from 1s to a 30s cap with no retry limit. It suspends only
// the caller; returns early with ctx.Err() if the enclosing job is abandoned.
func (l *Limiter) Wait(ctx context.Context, orgID uuid.UUID, model string) error {
	delay := backoffBase
	for {
		res, err := l.Check(ctx, orgID, model)
		if err != nil {
			// Fail closed: treat an unreachable counter store as denial
			// and keep retrying.
			slog.Warn("rate limit check failed, denying",
				"org_id", orgID, "model", model, "error", err)
		} else if res.Allowed {
			return nil
		} else {
			slog.Debug("rate limit hit, backing off",
				"org_id", orgID, "model", model,
				"wait", delay, "reset_at", res.ResetAt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
}

// TrackCost adds one request at the model's unit cost to the current month's
// ledger for (org, model). Independent of admission: callers that already
// passed Wait record cost without rechecking the limit.
func (l *Limiter) TrackCost(ctx context.Context, orgID uuid.UUID, model string) error {
	budget, ok := l.budgets[model]
	if !ok {
		return fmt.Errorf("unknown model %q", model)
	}

	key := costKey(orgID, model, l.monthKey())
	pipe := l.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "requests", 1)
	pipe.HIncrByFloat(ctx, key, "cost", budget.CostPerRequest)
	pipe.Expire(ctx, key, costRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track cost: %w", err)
	}
	return nil
}

// CostSummary aggregates the current month across all known models.
// Untouched models report zero.
func (l *Limiter) CostSummary(ctx context.Context, orgID uuid.UUID) (*Summary, error) {
	month := l.monthKey()
	summary := &Summary{ByModel: make(map[string]ModelCost, len(models.AllModels))}

	for _, model := range models.AllModels {
		data, err := l.client.HGetAll(ctx, costKey(orgID, model, month)).Result()
		if err != nil {
			return nil, fmt.Errorf("cost summary for %s: %w", model, err)
		}

		var mc ModelCost
		if v, ok := data["requests"]; ok {
			mc.Requests, _ = strconv.Atoi(v)
		}
		if v, ok := data["cost"]; ok {
			mc.Cost, _ = strconv.ParseFloat(v, 64)
		}

		summary.ByModel[model] = mc
		summary.Total += mc.Cost
	}

	return summary, nil
}

func (l *Limiter) monthKey() string {
	return l.now().UTC().Format("2006-01")
}

func windowKey(orgID uuid.UUID, model string) string {
	return fmt.Sprintf("ratelimit:%s:%s", orgID, model)
}

func costKey(orgID uuid.UUID, model, month string) string {
	return fmt.Sprintf("cost:%s:%s:%s", orgID, model, month)
}
