package repository

import (
	"context"
	"time"

	"routechat/internal/domain/call"
	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"

	"github.com/google/uuid"
)

// ConversationRepository owns the conversations, participants and
// conversation_sequences tables.
type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	GetByParticipantKey(ctx context.Context, key string) (conversation.Conversation, error)
	GetUserConversations(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error

	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error)

	// IncrementUnread bumps every counter except excludeUserID's by one in
	// a single atomic update.
	IncrementUnread(ctx context.Context, conversationID, excludeUserID uuid.UUID) error
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error

	UpdateSummary(ctx context.Context, conversationID uuid.UUID, content string, senderID uuid.UUID, at time.Time) error
	ClearSummary(ctx context.Context, conversationID uuid.UUID) error

	// IncrementSequence allocates the next per-conversation sequence number.
	IncrementSequence(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

// MessageRepository owns the messages and attachments tables.
type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
	GetLatest(ctx context.Context, conversationID uuid.UUID) (message.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error

	// AdvanceStatus conditionally moves a message to newStatus when its
	// current status is one of allowedCurrent. Returns whether a row
	// changed; the caller decides what an unchanged row means.
	AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus string, allowedCurrent []string) (bool, error)

	// ListUnreadIDs returns up to limit ids of messages in the conversation
	// that were not sent by userID and are not yet READ, oldest first.
	ListUnreadIDs(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]uuid.UUID, error)
	MarkReadByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// CallRepository owns the calls and call_participants tables.
type CallRepository interface {
	Create(ctx context.Context, c *call.Call) error
	GetByID(ctx context.Context, id uuid.UUID) (call.Call, error)
	GetActiveCallForUser(ctx context.Context, userID uuid.UUID) (call.Call, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]call.Call, int64, error)

	// TransitionStatus moves the call from -> to in one conditional update
	// so that concurrent terminal transitions cannot both win. Returns
	// whether this caller won the transition.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (bool, error)

	GetParticipant(ctx context.Context, callID, userID uuid.UUID) (call.CallParticipant, error)
	SetMute(ctx context.Context, callID, userID uuid.UUID, audioMuted, videoMuted bool) error
	MarkJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error
}
