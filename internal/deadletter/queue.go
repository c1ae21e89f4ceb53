// Package deadletter keeps video ids whose check errored so they can be
// re-checked later.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raysh454/thumbscan/internal/logging"
)

const (
	DefaultQueueName  = "thumbscan:dlq:checks"
	DefaultTTL        = 30 * 24 * time.Hour
	DefaultMaxRetries = 5
)

// Entry is one failed check.
type Entry struct {
	ScanID     string    `json:"scan_id"`
	VideoID    string    `json:"video_id"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// Sink accepts failed checks.
type Sink interface {
	Enqueue(ctx context.Context, e Entry) error
}

// Queue is a Redis list used as a FIFO: LPUSH on enqueue, RPOP on dequeue.
// A Queue built with a nil client accepts and drops everything.
type Queue struct {
	client     *redis.Client
	name       string
	ttl        time.Duration
	maxRetries int
	logger     logging.Logger
}

var _ Sink = (*Queue)(nil)

func NewQueue(client *redis.Client, name string, logger logging.Logger) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		client:     client,
		name:       name,
		ttl:        DefaultTTL,
		maxRetries: DefaultMaxRetries,
		logger:     logger.With(logging.Field{Key: "component", Value: "deadletter"}),
	}
}

// Dial connects to addr and verifies the connection with PING. An empty addr
// yields a disabled queue.
func Dial(ctx context.Context, addr, name string, logger logging.Logger) (*Queue, error) {
	if addr == "" {
		return NewQueue(nil, name, logger), nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewQueue(client, name, logger), nil
}

func (q *Queue) Enabled() bool { return q != nil && q.client != nil }

func (q *Queue) Name() string { return q.name }

func (q *Queue) Enqueue(ctx context.Context, e Entry) error {
	if !q.Enabled() {
		q.logger.Debug("dead letter queue disabled, dropping entry",
			logging.Field{Key: "video_id", Value: e.VideoID})
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		q.logger.Error("failed to enqueue dead letter",
			logging.Field{Key: "video_id", Value: e.VideoID},
			logging.Field{Key: "error", Value: err})
		return err
	}
	if err := q.client.Expire(ctx, q.name, q.ttl).Err(); err != nil {
		q.logger.Warn("failed to refresh dead letter ttl", logging.Field{Key: "error", Value: err})
	}
	q.logger.Info("dead letter enqueued",
		logging.Field{Key: "video_id", Value: e.VideoID},
		logging.Field{Key: "retry_count", Value: e.RetryCount})
	return nil
}

// Dequeue pops the oldest entry. It returns nil, nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Entry, error) {
	if !q.Enabled() {
		return nil, nil
	}
	data, err := q.client.RPop(ctx, q.name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue dead letter: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode dead letter: %w", err)
	}
	return &e, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	if !q.Enabled() {
		return 0, nil
	}
	return q.client.LLen(ctx, q.name).Result()
}

// RedriveStats summarises one Redrive pass.
type RedriveStats struct {
	Processed int `json:"processed"`
	Recovered int `json:"recovered"`
	Requeued  int `json:"requeued"`
	Dropped   int `json:"dropped"`
}

// Redrive drains the queue once, handing each entry to fn. An entry whose
// retry fails goes back on the queue straight away, so an error later in the
// pass never loses it, until it reaches the retry limit.
func (q *Queue) Redrive(ctx context.Context, fn func(ctx context.Context, e Entry) error) (RedriveStats, error) {
	var stats RedriveStats
	if !q.Enabled() {
		return stats, nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		return stats, err
	}
	// Requeues pushed to the head are not popped again within n.
	for i := int64(0); i < n; i++ {
		e, err := q.Dequeue(ctx)
		if err != nil {
			return stats, err
		}
		if e == nil {
			break
		}
		stats.Processed++
		ferr := fn(ctx, *e)
		if ferr == nil {
			stats.Recovered++
			continue
		}
		e.RetryCount++
		e.Error = ferr.Error()
		e.Timestamp = time.Now().UTC()
		if e.RetryCount >= q.maxRetries {
			stats.Dropped++
			q.logger.Warn("dead letter exceeded max retries",
				logging.Field{Key: "video_id", Value: e.VideoID},
				logging.Field{Key: "retry_count", Value: e.RetryCount})
			continue
		}
		// The entry is already off the list; put it back even if ctx is done.
		if err := q.Enqueue(context.WithoutCancel(ctx), *e); err != nil {
			return stats, err
		}
		stats.Requeued++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (q *Queue) Close() error {
	if !q.Enabled() {
		return nil
	}
	return q.client.Close()
}
