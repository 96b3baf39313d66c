package feeds

import (
	"context"
	"sync"

	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"
	"routechat/internal/services"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// Feeds turns broker events into live, self-refreshing views. Each feed
// pushes a full snapshot whenever the underlying data changes; observers
// never patch state incrementally, so a missed event costs one refresh, not
// correctness.
type Feeds struct {
	broker    events.Broker
	directory *services.ConversationService
	stream    *services.MessageService
	log       *logger.Logger
}

func New(broker events.Broker, directory *services.ConversationService, stream *services.MessageService, log *logger.Logger) *Feeds {
	return &Feeds{broker: broker, directory: directory, stream: stream, log: log}
}

// ConversationListUpdate is one snapshot of a user's conversation list.
// Stale marks snapshots produced while the event stream is degraded: the
// data shown may lag until the stream recovers.
type ConversationListUpdate struct {
	Conversations []conversation.Conversation
	Stale         bool
}

type ConversationListFeed struct {
	updates <-chan ConversationListUpdate
	cancel  context.CancelFunc
}

func (f *ConversationListFeed) Updates() <-chan ConversationListUpdate { return f.updates }

// Close stops this feed only; other subscribers are unaffected.
func (f *ConversationListFeed) Close() { f.cancel() }

// MessagesUpdate is one snapshot of a conversation's message log.
type MessagesUpdate struct {
	Messages []message.Message
	Stale    bool
}

type MessagesFeed struct {
	updates <-chan MessagesUpdate
	cancel  context.CancelFunc
}

func (f *MessagesFeed) Updates() <-chan MessagesUpdate { return f.updates }

func (f *MessagesFeed) Close() { f.cancel() }

// ConversationList opens a live feed of the user's conversation list. The
// first snapshot is delivered immediately; later ones follow each relevant
// change. The feed runs until Close or ctx cancellation.
func (f *Feeds) ConversationList(ctx context.Context, userID uuid.UUID) (*ConversationListFeed, error) {
	ctx, cancel := context.WithCancel(ctx)

	out := make(chan ConversationListUpdate)
	err := f.run(ctx, events.UserChannel(userID.String()), func(stale bool) bool {
		convs, err := f.directory.ListForUser(ctx, userID)
		if err != nil {
			if f.log != nil {
				f.log.Warnf("conversation list refresh failed for user %s: %v", userID, err)
			}
			return true
		}
		select {
		case out <- ConversationListUpdate{Conversations: convs, Stale: stale}:
			return true
		case <-ctx.Done():
			return false
		}
	}, func() { close(out) })
	if err != nil {
		cancel()
		return nil, err
	}

	return &ConversationListFeed{updates: out, cancel: cancel}, nil
}

// Messages opens a live feed of one conversation's message log for a
// participant. Non-participants get ErrForbidden.
func (f *Feeds) Messages(ctx context.Context, conversationID, userID uuid.UUID) (*MessagesFeed, error) {
	isMember, err := f.directory.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, routechat_errors.ErrForbidden
	}

	ctx, cancel := context.WithCancel(ctx)

	out := make(chan MessagesUpdate)
	err = f.run(ctx, events.ConversationChannel(conversationID.String()), func(stale bool) bool {
		msgs, err := f.stream.ListByConversation(ctx, conversationID, userID)
		if err != nil {
			if f.log != nil {
				f.log.Warnf("message feed refresh failed for conversation %s: %v", conversationID, err)
			}
			return true
		}
		select {
		case out <- MessagesUpdate{Messages: msgs, Stale: stale}:
			return true
		case <-ctx.Done():
			return false
		}
	}, func() { close(out) })
	if err != nil {
		cancel()
		return nil, err
	}

	return &MessagesFeed{updates: out, cancel: cancel}, nil
}

// run wires one subscription to one refresh function. Events only nudge the
// refresher through a capacity-1 channel, so bursts coalesce into a single
// re-query instead of queueing a snapshot per event.
func (f *Feeds) run(ctx context.Context, channel string, push func(stale bool) bool, done func()) error {
	notify := make(chan struct{}, 1)

	var mu sync.Mutex
	stale := false

	handler := func(_ context.Context, event events.Event) error {
		switch event.Type {
		case events.EventStreamStale:
			mu.Lock()
			stale = true
			mu.Unlock()
		case events.EventStreamLive:
			mu.Lock()
			stale = false
			mu.Unlock()
		}
		select {
		case notify <- struct{}{}:
		default:
		}
		return nil
	}

	sub, err := f.broker.Subscribe(ctx, channel, handler)
	if err != nil {
		return err
	}

	go func() {
		defer done()
		defer sub.Cancel()

		currentStale := func() bool {
			mu.Lock()
			defer mu.Unlock()
			return stale
		}

		if !push(currentStale()) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				if !push(currentStale()) {
					return
				}
			}
		}
	}()
	return nil
}
