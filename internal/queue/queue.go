// Package queue implements named work queues over Redis: one logical queue
// per job family with at-least-once delivery, bounded retries, and
// exponential backoff. Queues are explicitly constructed and owned by a
// Manager with Start/Stop; there are no package-level connections.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue names, one per job family.
const (
	VisibilityScan     = "visibility-scan"
	CompetitorAnalysis = "competitor-analysis"
	WebsiteAnalysis    = "website-analysis"
	FreshnessCheck     = "freshness-check"
	ReportGeneration   = "report-generation"
	EmailNotifications = "email-notifications"
)

// Config holds per-queue delivery settings.
type Config struct {
	Name        string
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	JobTimeout  time.Duration
}

// Defaults mirrors how the queues are tuned in production: scans run two at
// a time, reports one at a time, email fan-out wider.
var Defaults = map[string]Config{
	VisibilityScan:     {Name: VisibilityScan, Concurrency: 2, MaxAttempts: 3, BackoffBase: 2 * time.Second, JobTimeout: 10 * time.Minute},
	CompetitorAnalysis: {Name: CompetitorAnalysis, Concurrency: 2, MaxAttempts: 3, BackoffBase: 5 * time.Second, JobTimeout: 10 * time.Minute},
	WebsiteAnalysis:    {Name: WebsiteAnalysis, Concurrency: 2, MaxAttempts: 3, BackoffBase: 5 * time.Second, JobTimeout: 10 * time.Minute},
	FreshnessCheck:     {Name: FreshnessCheck, Concurrency: 1, MaxAttempts: 3, BackoffBase: 5 * time.Second, JobTimeout: 10 * time.Minute},
	ReportGeneration:   {Name: ReportGeneration, Concurrency: 1, MaxAttempts: 2, BackoffBase: 5 * time.Second, JobTimeout: 10 * time.Minute},
	EmailNotifications: {Name: EmailNotifications, Concurrency: 5, MaxAttempts: 3, BackoffBase: 2 * time.Second, JobTimeout: time.Minute},
}

// Handler processes one delivery. A non-nil error triggers a retry until the
// queue's attempt budget is exhausted.
type Handler func(ctx context.Context, payload []byte) error

// Envelope wraps a payload on the wire with its delivery bookkeeping.
type Envelope struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// promoteScript atomically moves due entries from the delayed zset to the
// pending list so two consumers never promote the same entry twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], 0, ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, v in ipairs(due) do
  redis.call('ZREM', KEYS[1], v)
  redis.call('LPUSH', KEYS[2], v)
end
return #due
`)

// Queue is one named work queue.
type Queue struct {
	client *redis.Client
	cfg    Config
}

func newQueue(client *redis.Client, cfg Config) *Queue {
	return &Queue{client: client, cfg: cfg}
}

func (q *Queue) pendingKey() string    { return "queue:" + q.cfg.Name + ":pending" }
func (q *Queue) processingKey() string { return "queue:" + q.cfg.Name + ":processing" }
func (q *Queue) delayedKey() string    { return "queue:" + q.cfg.Name + ":delayed" }
func (q *Queue) deadKey() string       { return "queue:" + q.cfg.Name + ":dead" }

// Enqueue marshals the payload and pushes a first-attempt envelope.
// Returns the delivery id.
func (q *Queue) Enqueue(ctx context.Context, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload for %s: %w", q.cfg.Name, err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Queue:      q.cfg.Name,
		Payload:    raw,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope for %s: %w", q.cfg.Name, err)
	}

	if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return "", fmt.Errorf("enqueue on %s: %w", q.cfg.Name, err)
	}
	return env.ID, nil
}

// retry schedules the envelope for a later attempt, or dead-letters it once
// attempts are exhausted.
func (q *Queue) retry(ctx context.Context, env Envelope, cause error) {
	if env.Attempt >= q.cfg.MaxAttempts {
		slog.Error("job exhausted attempts, dead-lettering",
			"queue", q.cfg.Name, "delivery_id", env.ID,
			"attempts", env.Attempt, "error", cause)
		if data, err := json.Marshal(env); err == nil {
			if err := q.client.LPush(ctx, q.deadKey(), data).Err(); err != nil {
				slog.Error("dead-letter push failed", "queue", q.cfg.Name, "error", err)
			}
		}
		return
	}

	// Exponential backoff: base, 2*base, 4*base, ...
	delay := q.cfg.BackoffBase << (env.Attempt - 1)
	env.Attempt++

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("marshal retry envelope", "queue", q.cfg.Name, "error", err)
		return
	}

	score := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: score, Member: data}).Err(); err != nil {
		slog.Error("schedule retry failed", "queue", q.cfg.Name, "delivery_id", env.ID, "error", err)
		return
	}

	slog.Warn("job failed, retry scheduled",
		"queue", q.cfg.Name, "delivery_id", env.ID,
		"attempt", env.Attempt, "delay", delay, "error", cause)
}

// promoteDue moves delayed entries whose time has come back onto the
// pending list.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	return promoteScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.pendingKey()}, now, 100).Err()
}

// consume runs one consumer goroutine until ctx is cancelled. A delivery
// moves from pending to the processing list atomically and stays there
// until acked, so a crash mid-job leaves it reclaimable instead of lost.
func (q *Queue) consume(ctx context.Context, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
			slog.Error("promote delayed jobs", "queue", q.cfg.Name, "error", err)
		}

		raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(),
			"RIGHT", "LEFT", 2*time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			slog.Error("dequeue failed", "queue", q.cfg.Name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			slog.Error("malformed envelope dropped", "queue", q.cfg.Name, "error", err)
			q.ack(raw)
			continue
		}

		q.handle(ctx, env, handler)
		q.ack(raw)
	}
}

// ack removes the delivery's processing copy. The retry or dead-letter
// copy, if any, is already in Redis by the time this runs. Acks use their
// own timeout so a job that finished during shutdown is still removed.
func (q *Queue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		slog.Error("ack failed, delivery will be redelivered",
			"queue", q.cfg.Name, "error", err)
	}
}

// reclaim pushes deliveries stranded in the processing list by a previous
// run back onto pending. Redelivering work that was in flight during a
// crash is the at-least-once contract.
func (q *Queue) reclaim(ctx context.Context) error {
	var n int
	for {
		_, err := q.client.LMove(ctx, q.processingKey(), q.pendingKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return err
		}
		n++
	}
	if n > 0 {
		slog.Warn("reclaimed orphaned deliveries", "queue", q.cfg.Name, "count", n)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, env Envelope, handler Handler) {
	hctx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := handler(hctx, env.Payload)
	if err != nil {
		q.retry(ctx, env, err)
		return
	}

	slog.Info("job completed",
		"queue", q.cfg.Name, "delivery_id", env.ID,
		"attempt", env.Attempt, "duration_ms", time.Since(start).Milliseconds())
}

// Manager owns every named queue and their consumers.
type Manager struct {
	client   *redis.Client
	queues   map[string]*Queue
	handlers map[string]Handler

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewManager constructs all named queues over one shared Redis client.
func NewManager(client *redis.Client) *Manager {
	queues := make(map[string]*Queue, len(Defaults))
	for name, cfg := range Defaults {
		queues[name] = newQueue(client, cfg)
	}
	return &Manager{
		client:   client,
		queues:   queues,
		handlers: make(map[string]Handler),
	}
}

// Enqueue pushes a payload onto the named queue.
func (m *Manager) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	q, ok := m.queues[name]
	if !ok {
		return "", fmt.Errorf("unknown queue %q", name)
	}
	return q.Enqueue(ctx, payload)
}

// Register binds a handler to a queue. Must be called before Start.
// Queues without a handler accept producers but are drained elsewhere
// (the email queue is consumed by the notifier process).
func (m *Manager) Register(name string, handler Handler) error {
	if _, ok := m.queues[name]; !ok {
		return fmt.Errorf("unknown queue %q", name)
	}
	m.handlers[name] = handler
	return nil
}

// Start launches the configured number of consumer goroutines per
// registered queue.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)

	for name, handler := range m.handlers {
		q := m.queues[name]
		if err := q.reclaim(ctx); err != nil {
			slog.Error("reclaim processing list", "queue", name, "error", err)
		}
		for i := 0; i < q.cfg.Concurrency; i++ {
			m.wg.Add(1)
			go func(q *Queue, h Handler) {
				defer m.wg.Done()
				q.consume(ctx, h)
			}(q, handler)
		}
		slog.Info("queue consumers started", "queue", name, "concurrency", q.cfg.Concurrency)
	}
}

// Stop cancels all consumers and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
