package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	resubscribeBaseDelay = 250 * time.Millisecond
	resubscribeMaxDelay  = 10 * time.Second
)

type RedisBroker struct {
	Client *goredis.Client
}

func NewRedisBroker(client *goredis.Client) *RedisBroker {
	return &RedisBroker{Client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.Client.Publish(ctx, channel, data).Err()
}

// Subscribe delivers events on channel to handler until the subscription is
// cancelled or ctx ends. A dropped pub/sub connection is retried with
// backoff; the gap is reported to the handler as EventStreamStale and the
// recovery as EventStreamLive, so a broken stream self-heals instead of
// terminating the subscriber.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		delay := resubscribeBaseDelay
		stale := false
		for {
			if subCtx.Err() != nil {
				return
			}

			pubsub := b.Client.Subscribe(subCtx, channel)
			if _, err := pubsub.Receive(subCtx); err != nil {
				pubsub.Close()
				if subCtx.Err() != nil {
					return
				}
				if !stale {
					stale = true
					_ = handler(subCtx, Event{Type: EventStreamStale, Timestamp: time.Now().Unix()})
				}
				select {
				case <-subCtx.Done():
					return
				case <-time.After(delay):
				}
				if delay *= 2; delay > resubscribeMaxDelay {
					delay = resubscribeMaxDelay
				}
				continue
			}

			delay = resubscribeBaseDelay
			if stale {
				stale = false
				_ = handler(subCtx, Event{Type: EventStreamLive, Timestamp: time.Now().Unix()})
			}

			ch := pubsub.Channel()
		recv:
			for {
				select {
				case <-subCtx.Done():
					pubsub.Close()
					return
				case msg, ok := <-ch:
					if !ok {
						break recv
					}
					var event Event
					if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
						continue
					}
					_ = handler(subCtx, event)
				}
			}
			pubsub.Close()
		}
	}()

	return &Subscription{cancel: cancel}, nil
}
