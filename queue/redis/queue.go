// Package redis publishes trace lifecycle events to a capped Redis list so
// dashboards and other consumers can follow deployments as they happen.
// The list is a fan-out channel; nothing is ever read back into the trace store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"nexlayer.io/mcp/common"
	"nexlayer.io/mcp/tracestore"
)

const (
	// DefaultKey is the list events are pushed to
	DefaultKey = "nexlayer:trace-events"
	// DefaultMaxLen caps the list; older events are trimmed
	DefaultMaxLen = 1000

	bufferSize     = 256
	publishTimeout = 2 * time.Second
)

// Queue handles trace event operations using Redis
type Queue struct {
	client *redis.Client
	key    string
	maxLen int64
	logger *common.ContextLogger

	events  chan tracestore.Event
	dropped atomic.Int64
	once    sync.Once
	done    chan struct{}
}

// Config configures the Redis queue
type Config struct {
	RedisURL string // Redis URL (redis://localhost:6379/0)
	Key      string // List key (defaults to DefaultKey)
	MaxLen   int64  // Maximum retained events (defaults to DefaultMaxLen)
}

// NewQueue connects to Redis and verifies the connection
func NewQueue(ctx context.Context, config Config, logger *common.ContextLogger) (*Queue, error) {
	if config.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewQueueWithClient(client, config, logger), nil
}

// NewQueueWithClient wraps an existing client
func NewQueueWithClient(client *redis.Client, config Config, logger *common.ContextLogger) *Queue {
	if config.Key == "" {
		config.Key = DefaultKey
	}
	if config.MaxLen <= 0 {
		config.MaxLen = DefaultMaxLen
	}
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	return &Queue{
		client: client,
		key:    config.Key,
		maxLen: config.MaxLen,
		logger: logger.WithField("component", "trace_events"),
		events: make(chan tracestore.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Key returns the Redis list key
func (q *Queue) Key() string {
	return q.key
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

// Publish pushes one event and trims the list to MaxLen
func (q *Queue) Publish(ctx context.Context, event tracestore.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, data)
	pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Observer returns a trace store observer. Events are buffered and published
// by Run; when the buffer is full the event is dropped and counted.
func (q *Queue) Observer() func(tracestore.Event) {
	return func(event tracestore.Event) {
		select {
		case q.events <- event:
		default:
			q.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Run publishes buffered events until ctx is cancelled, then drains what is left
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case event := <-q.events:
			q.publishLogged(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-q.events:
					q.publishLogged(event)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned
func (q *Queue) Wait() {
	<-q.done
}

func (q *Queue) publishLogged(event tracestore.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := q.Publish(ctx, event); err != nil {
		q.once.Do(func() {
			q.logger.WithError(err).Warn("Trace event publishing failing; further errors suppressed")
		})
	}
}

// Dequeue removes and returns the oldest event (blocking). It returns nil, nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*tracestore.Event, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Timeout, no event available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var event tracestore.Event
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Depth returns the number of retained events
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
