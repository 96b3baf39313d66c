package events

import "context"

// Event is the unit pushed to live-view subscribers. Payload carries the
// aggregate id (conversation, message or call) the change applies to;
// observers re-query their own view of it.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

const (
	EventMessageNew          = "message.new"
	EventMessageStatus       = "message.status"
	EventMessageDeleted      = "message.deleted"
	EventConversationUpdated = "conversation.updated"
	EventConversationDeleted = "conversation.deleted"
	EventCallRinging         = "call.ringing"
	EventCallAnswered        = "call.answered"
	EventCallEnded           = "call.ended"

	// Stream health markers injected by the broker itself, never published
	// by services. Observers treat Stale as a connectivity indicator, not
	// a terminal error.
	EventStreamStale = "stream.stale"
	EventStreamLive  = "stream.live"
)

type Handler func(ctx context.Context, event Event) error

// Subscription is a live feed of events on one channel until cancelled.
type Subscription struct {
	cancel func()
}

func (s *Subscription) Cancel() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error)
}

type Broker interface {
	Publisher
	Subscriber
}

// Channel naming shared by publishers and subscribers.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

func UserChannel(userID string) string {
	return "user:" + userID
}
