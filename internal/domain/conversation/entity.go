package conversation

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation represents the conversations table. The last-message fields
// are a denormalized summary maintained by the message stream; they can be
// recomputed from the messages table at any time and are never the sole
// source of truth.
type Conversation struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	// ParticipantKey is the canonical identity of the participant set:
	// sorted, deduplicated ids joined with ":". Two conversations are the
	// same conversation iff their keys are equal.
	ParticipantKey      string `gorm:"uniqueIndex;not null"`
	LastMessage         sql.NullString
	LastMessageSenderID uuid.NullUUID `gorm:"type:uuid"`
	LastMessageAt       sql.NullTime  `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Participants []Participant
}

// Participant represents the participants table. UnreadCount is this user's
// count of messages not yet marked read by them.
type Participant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	UnreadCount    int64     `gorm:"not null;default:0"`
	JoinedAt       time.Time
}

// ConversationSequence represents the conversation_sequences table. The
// counter provides the strictly increasing per-conversation ordering used
// to break timestamp ties between messages.
type ConversationSequence struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastSequence   int64
	UpdatedAt      time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}

func (ConversationSequence) TableName() string {
	return "conversation_sequences"
}

// NormalizeParticipants sorts and deduplicates the participant set.
func NormalizeParticipants(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// ParticipantKeyOf builds the canonical key for an already normalized set.
func ParticipantKeyOf(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ":")
}
