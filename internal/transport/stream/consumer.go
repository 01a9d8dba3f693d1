package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kestrelworks/engram/internal/config"
	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/internal/ingest"
	"github.com/kestrelworks/engram/pkg/log"
)

const (
	readBlock  = 5 * time.Second
	workerSlot = 256

	// DefaultWorkerIdleTTL bounds how long a session worker outlives its
	// last event before being reaped.
	DefaultWorkerIdleTTL = 5 * time.Minute
)

// Consumer reads raw events from a Redis stream consumer group and feeds the
// aggregator. Events are serialized per session through a dedicated worker so
// turn boundaries and causal linkage see them in order, while sessions
// progress concurrently.
type Consumer struct {
	cfg     *config.StreamConfig
	client  *redis.Client
	agg     *ingest.Aggregator
	idleTTL time.Duration

	mu      sync.Mutex
	workers map[string]chan redis.XMessage
	closed  bool
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewConsumer(cfg *config.StreamConfig, agg *ingest.Aggregator) *Consumer {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Consumer{
		cfg:     cfg,
		client:  client,
		agg:     agg,
		idleTTL: DefaultWorkerIdleTTL,
		workers: make(map[string]chan redis.XMessage),
		done:    make(chan struct{}),
	}
}

// Publisher returns a turn publisher sharing this consumer's connection.
func (c *Consumer) Publisher(stream string) *Publisher {
	return NewPublisher(c.client, stream)
}

func (c *Consumer) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	defer close(c.done)

	if err := c.ensureGroup(ctx); err != nil {
		return fmt.Errorf("stream group setup: %w", err)
	}
	logger.Info().Str("stream", c.cfg.Stream).Str("group", c.cfg.Group).Msg("starting event consumer")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.BatchSize,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Error().Err(err).Msg("stream read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.dispatch(ctx, msg)
			}
		}
	}
}

// Shutdown stops routing new messages, waits for the read loop to return,
// then closes the session workers. Worker channels are only closed once no
// dispatch can still be holding one.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if started {
		select {
		case <-c.done:
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}

	c.mu.Lock()
	for _, ch := range c.workers {
		close(ch)
	}
	c.workers = make(map[string]chan redis.XMessage)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return c.client.Close()
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// dispatch routes the message to its session worker, creating one on demand.
// The send happens under the lock, so a closing channel (shutdown or idle
// reap) can never catch a dispatch mid-send. A full worker channel applies
// backpressure to the read loop.
func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage) {
	logger := log.FromCtx(ctx)

	sessionID := sessionKey(msg)
	if sessionID == "" {
		logger.Debug().Str("entry", msg.ID).Msg("event without session id, acking and skipping")
		c.ack(ctx, msg.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// left pending in the group, redelivered on the next start
		return
	}
	ch, ok := c.workers[sessionID]
	if !ok {
		ch = make(chan redis.XMessage, workerSlot)
		c.workers[sessionID] = ch
		c.wg.Add(1)
		go c.worker(ctx, sessionID, ch)
	}

	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

func (c *Consumer) worker(ctx context.Context, sessionID string, ch chan redis.XMessage) {
	defer c.wg.Done()
	logger := log.FromCtx(ctx)

	idle := time.NewTimer(c.idleTTL)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			if c.retire(sessionID, ch) {
				return
			}
			idle.Reset(c.idleTTL)
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTTL)

			ev, err := decodeEvent(msg)
			if err != nil {
				logger.Warn().Err(err).Str("entry", msg.ID).Msg("undecodable event, acking and skipping")
				c.ack(ctx, msg.ID)
				continue
			}
			if err := c.agg.ProcessEvent(ctx, ev, sessionID); err != nil {
				logger.Error().Err(err).Str("entry", msg.ID).Msg("event processing failed")
			}
			c.ack(ctx, msg.ID)
		}
	}
}

// retire removes an idle worker from the routing table. It takes the same
// lock as dispatch, so either the worker is gone before another message is
// routed to it, or the buffered message keeps it alive. TryLock keeps the
// worker from blocking on the lock while a dispatch is waiting for this
// worker to drain its channel.
func (c *Consumer) retire(sessionID string, ch chan redis.XMessage) bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()
	if len(ch) > 0 {
		return false
	}
	delete(c.workers, sessionID)
	return true
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, entryID).Err(); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("entry", entryID).Msg("ack failed")
	}
}

func decodeEvent(msg redis.XMessage) (*core.Event, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("entry %s has no event field", msg.ID)
	}
	var ev core.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

func sessionKey(msg redis.XMessage) string {
	if s, ok := msg.Values["session_id"].(string); ok && s != "" {
		return s
	}
	// fall back to the payload
	if ev, err := decodeEvent(msg); err == nil {
		return ev.SessionID
	}
	return ""
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
