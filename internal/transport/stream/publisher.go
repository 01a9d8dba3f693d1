package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/kestrelworks/engram/internal/core"
)

// Publisher implements core.TurnPublisher by appending finalized-turn
// summaries to a Redis stream for external indexers.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

func (p *Publisher) PublishTurnFinalized(ctx context.Context, summary core.TurnSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal turn summary: %w", err)
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"session_id": summary.SessionID,
			"turn":       string(data),
		},
	}).Err(); err != nil {
		return fmt.Errorf("publish turn summary: %w", err)
	}
	return nil
}
