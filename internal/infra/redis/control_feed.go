package redis

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RoundControl is the command surface of the round coordinator.
type RoundControl interface {
	Start(ctx context.Context) error
	Stop()
}

// ControlFeed turns messages on a Redis pub/sub channel into coordinator
// commands, so an external admin toggle (e.g. a dashboard flipping a flag)
// can start or force-reset the round without a direct HTTP call. Commands
// enter the same serialized coordinator as every other mutation.
type ControlFeed struct {
	client  *redis.Client
	channel string
	game    RoundControl
}

func NewControlFeed(client *redis.Client, channel string, game RoundControl) *ControlFeed {
	return &ControlFeed{client: client, channel: channel, game: game}
}

// Run subscribes and dispatches until the context is canceled.
func (f *ControlFeed) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.dispatch(ctx, msg.Payload)
		}
	}
}

func (f *ControlFeed) dispatch(ctx context.Context, payload string) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "start":
		if err := f.game.Start(ctx); err != nil {
			log.Printf("control feed: start rejected: %v", err)
		}
	case "stop":
		f.game.Stop()
	default:
		log.Printf("control feed: ignoring message %q", payload)
	}
}
