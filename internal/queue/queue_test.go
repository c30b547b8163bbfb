package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { client.Close() })

	return client
}

// testConfig keeps retries fast enough for a test run.
func testConfig(name string) Config {
	return Config{
		Name:        name,
		Concurrency: 1,
		MaxAttempts: 3,
		BackoffBase: 50 * time.Millisecond,
		JobTimeout:  5 * time.Second,
	}
}

func startQueue(t *testing.T, client *redis.Client, cfg Config, handler Handler) *Queue {
	t.Helper()
	q := newQueue(client, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consume(ctx, handler)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueue_DeliversPayload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)

	var mu sync.Mutex
	var got []string
	handler := func(_ context.Context, payload []byte) error {
		var m map[string]string
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, m["domain"])
		mu.Unlock()
		return nil
	}

	q := startQueue(t, client, testConfig("deliver-test"), handler)

	id, err := q.Enqueue(context.Background(), map[string]string{"domain": "acme.test"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	assert.Equal(t, []string{"acme.test"}, got)
	mu.Unlock()
}

func TestQueue_RetriesWithBackoffThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)

	var attempts atomic.Int32
	handler := func(context.Context, []byte) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}

	q := startQueue(t, client, testConfig("retry-test"), handler)

	start := time.Now()
	_, err := q.Enqueue(context.Background(), map[string]string{"k": "v"})
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return attempts.Load() == 3 })

	// Backoff: 50ms after attempt 1, 100ms after attempt 2.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)

	var attempts atomic.Int32
	handler := func(context.Context, []byte) error {
		attempts.Add(1)
		return errors.New("permanent")
	}

	cfg := testConfig("dead-test")
	q := startQueue(t, client, cfg, handler)

	id, err := q.Enqueue(context.Background(), map[string]string{"k": "v"})
	require.NoError(t, err)

	ctx := context.Background()
	waitFor(t, 10*time.Second, func() bool {
		n, err := client.LLen(ctx, q.deadKey()).Result()
		return err == nil && n == 1
	})

	assert.EqualValues(t, cfg.MaxAttempts, attempts.Load())

	raw, err := client.LRange(ctx, q.deadKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &env))
	assert.Equal(t, id, env.ID)
	assert.Equal(t, cfg.MaxAttempts, env.Attempt)
}

func TestQueue_PromoteMovesOnlyDueEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()

	q := newQueue(client, testConfig("promote-test"))

	due, err := json.Marshal(Envelope{ID: "due", Queue: q.cfg.Name, Attempt: 2})
	require.NoError(t, err)
	future, err := json.Marshal(Envelope{ID: "future", Queue: q.cfg.Name, Attempt: 2})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, client.ZAdd(ctx, q.delayedKey(),
		redis.Z{Score: float64(now.Add(-time.Second).UnixMilli()), Member: due},
		redis.Z{Score: float64(now.Add(time.Hour).UnixMilli()), Member: future},
	).Err())

	require.NoError(t, q.promoteDue(ctx))

	pending, err := client.LLen(ctx, q.pendingKey()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	delayed, err := client.ZCard(ctx, q.delayedKey()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, delayed, "the future entry stays delayed")
}

func TestQueue_InFlightDeliveryStaysInRedisUntilAcked(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()

	release := make(chan struct{})
	handler := func(hctx context.Context, _ []byte) error {
		select {
		case <-release:
		case <-hctx.Done():
		}
		return nil
	}

	q := startQueue(t, client, testConfig("inflight-test"), handler)

	_, err := q.Enqueue(ctx, map[string]string{"k": "v"})
	require.NoError(t, err)

	// While the handler runs, the delivery lives in the processing list.
	waitFor(t, 5*time.Second, func() bool {
		n, err := client.LLen(ctx, q.processingKey()).Result()
		return err == nil && n == 1
	})
	pending, err := client.LLen(ctx, q.pendingKey()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	close(release)

	waitFor(t, 5*time.Second, func() bool {
		n, err := client.LLen(ctx, q.processingKey()).Result()
		return err == nil && n == 0
	})
}

func TestQueue_ReclaimRequeuesOrphanedDeliveries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()

	q := newQueue(client, testConfig("reclaim-test"))

	// A delivery a crashed consumer left behind.
	orphan, err := json.Marshal(Envelope{ID: "orphan", Queue: q.cfg.Name, Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, q.processingKey(), orphan).Err())

	require.NoError(t, q.reclaim(ctx))

	pending, err := client.LLen(ctx, q.pendingKey()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	processing, err := client.LLen(ctx, q.processingKey()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, processing)
}

func TestManager_StartRedeliversOrphans(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()

	orphan, err := json.Marshal(Envelope{
		ID: "orphan", Queue: VisibilityScan, Attempt: 1,
		Payload: json.RawMessage(`{"k":"v"}`),
	})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, "queue:"+VisibilityScan+":processing", orphan).Err())

	var delivered atomic.Int32
	m := NewManager(client)
	require.NoError(t, m.Register(VisibilityScan, func(context.Context, []byte) error {
		delivered.Add(1)
		return nil
	}))

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool { return delivered.Load() == 1 })
}

func TestManager_RoutesByQueueName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)

	m := NewManager(client)

	var scans, reports atomic.Int32
	require.NoError(t, m.Register(VisibilityScan, func(context.Context, []byte) error {
		scans.Add(1)
		return nil
	}))
	require.NoError(t, m.Register(ReportGeneration, func(context.Context, []byte) error {
		reports.Add(1)
		return nil
	}))

	m.Start(context.Background())
	defer m.Stop()

	ctx := context.Background()
	_, err := m.Enqueue(ctx, VisibilityScan, map[string]string{"k": "a"})
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, VisibilityScan, map[string]string{"k": "b"})
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, ReportGeneration, map[string]string{"k": "c"})
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		return scans.Load() == 2 && reports.Load() == 1
	})
}

func TestManager_UnknownQueue(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Enqueue(context.Background(), "no-such-queue", nil)
	assert.Error(t, err)
	assert.Error(t, m.Register("no-such-queue", func(context.Context, []byte) error { return nil }))
}

func TestManager_ProducerOnlyQueueAcceptsWork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)

	m := NewManager(client)
	m.Start(context.Background())
	defer m.Stop()

	// No handler registered for the email queue; the envelope just waits.
	_, err := m.Enqueue(context.Background(), EmailNotifications, map[string]string{"k": "v"})
	require.NoError(t, err)

	n, err := client.LLen(context.Background(), "queue:"+EmailNotifications+":pending").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
