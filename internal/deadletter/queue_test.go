package deadletter_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/testutil"
)

func TestQueue_NilClientIsNoop(t *testing.T) {
	t.Parallel()
	q := deadletter.NewQueue(nil, "", &testutil.DummyLogger{})
	ctx := context.Background()

	if q.Enabled() {
		t.Fatal("queue without client must be disabled")
	}
	if q.Name() != deadletter.DefaultQueueName {
		t.Errorf("expected default name, got %q", q.Name())
	}
	if err := q.Enqueue(ctx, deadletter.Entry{VideoID: "v1", Error: "boom"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	e, err := q.Dequeue(ctx)
	if err != nil || e != nil {
		t.Fatalf("expected empty dequeue, got %v, %v", e, err)
	}
	n, err := q.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected zero length, got %d, %v", n, err)
	}
	called := false
	stats, err := q.Redrive(ctx, func(context.Context, deadletter.Entry) error {
		called = true
		return nil
	})
	if err != nil || called || stats.Processed != 0 {
		t.Fatalf("redrive on disabled queue must do nothing, got %+v, %v", stats, err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDial_EmptyAddrDisabled(t *testing.T) {
	t.Parallel()
	q, err := deadletter.Dial(context.Background(), "", "custom", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if q.Enabled() || q.Name() != "custom" {
		t.Errorf("expected disabled queue named custom, got enabled=%v name=%q", q.Enabled(), q.Name())
	}
}

func TestDial_UnreachableAddr(t *testing.T) {
	t.Parallel()
	if _, err := deadletter.Dial(context.Background(), "127.0.0.1:1", "", nil); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

// liveQueue dials the Redis named by THUMBSCAN_TEST_REDIS on a queue name
// private to the test and removes the key afterwards.
func liveQueue(t *testing.T) *deadletter.Queue {
	t.Helper()
	addr := os.Getenv("THUMBSCAN_TEST_REDIS")
	if addr == "" {
		t.Skip("THUMBSCAN_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis %s unreachable: %v", addr, err)
	}
	name := "thumbscan:test:" + uuid.NewString()
	t.Cleanup(func() {
		_ = client.Del(context.Background(), name).Err()
		_ = client.Close()
	})
	return deadletter.NewQueue(client, name, &testutil.DummyLogger{})
}

func fill(t *testing.T, q *deadletter.Queue, entries ...deadletter.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := q.Enqueue(context.Background(), e); err != nil {
			t.Fatalf("Enqueue(%s): %v", e.VideoID, err)
		}
	}
}

func TestQueue_Live_FIFO(t *testing.T) {
	t.Parallel()
	q := liveQueue(t)
	ctx := context.Background()
	fill(t, q, deadletter.Entry{VideoID: "v1"}, deadletter.Entry{VideoID: "v2"})

	n, err := q.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected length 2, got %d, %v", n, err)
	}
	for _, want := range []string{"v1", "v2"} {
		e, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if e == nil || e.VideoID != want {
			t.Fatalf("expected %s, got %+v", want, e)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("enqueue must stamp the entry")
		}
	}
	if e, err := q.Dequeue(ctx); err != nil || e != nil {
		t.Fatalf("expected empty queue, got %+v, %v", e, err)
	}
}

func TestQueue_Live_RedriveOutcomes(t *testing.T) {
	t.Parallel()
	q := liveQueue(t)
	ctx := context.Background()
	fill(t, q,
		deadletter.Entry{VideoID: "ok"},
		deadletter.Entry{VideoID: "retry", RetryCount: 1},
		deadletter.Entry{VideoID: "last", RetryCount: deadletter.DefaultMaxRetries - 1},
	)

	stats, err := q.Redrive(ctx, func(_ context.Context, e deadletter.Entry) error {
		if e.VideoID == "ok" {
			return nil
		}
		return errors.New("still failing")
	})
	if err != nil {
		t.Fatalf("Redrive: %v", err)
	}
	want := deadletter.RedriveStats{Processed: 3, Recovered: 1, Requeued: 1, Dropped: 1}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}

	e, err := q.Dequeue(ctx)
	if err != nil || e == nil {
		t.Fatalf("expected the requeued entry, got %+v, %v", e, err)
	}
	if e.VideoID != "retry" || e.RetryCount != 2 || e.Error != "still failing" {
		t.Errorf("unexpected requeued entry %+v", e)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
}

func TestQueue_Live_RedriveInterruptedKeepsFailures(t *testing.T) {
	t.Parallel()
	q := liveQueue(t)
	fill(t, q, deadletter.Entry{VideoID: "a"}, deadletter.Entry{VideoID: "b"}, deadletter.Entry{VideoID: "c"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stats, err := q.Redrive(ctx, func(_ context.Context, e deadletter.Entry) error {
		cancel()
		return errors.New("timed out")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Processed != 1 || stats.Requeued != 1 {
		t.Errorf("expected one processed and requeued entry, got %+v", stats)
	}

	n, err := q.Len(context.Background())
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("no entry may be lost when the pass stops early, got length %d", n)
	}
}
