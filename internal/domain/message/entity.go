package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null"`
	// SenderName is a display-name snapshot taken at append time so the
	// message renders correctly even if the identity record changes later.
	SenderName string
	Content    sql.NullString
	Status     string `gorm:"not null"`
	// SeqID is allocated from the conversation sequence inside the append
	// transaction; reads order by it, never by id string or raw timestamp.
	SeqID     int64 `gorm:"not null;index"`
	CreatedAt time.Time

	// Reply snapshot, copied from the original at append time. It stays
	// valid after the original message is deleted.
	ReplyToMsgID    uuid.NullUUID `gorm:"type:uuid"`
	ReplyToContent  sql.NullString
	ReplyToSenderID uuid.NullUUID `gorm:"type:uuid"`

	Attachments []Attachment `gorm:"foreignKey:MessageID"`
}

// Attachment represents the attachments table. Immutable once created and
// owned by exactly one message.
type Attachment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string
	MimeType  string
	SizeBytes int64
	URL       string
	Position  int
	CreatedAt time.Time
}

func (Message) TableName() string {
	return "messages"
}

func (Attachment) TableName() string {
	return "attachments"
}
