package call

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Call represents the calls table.
type Call struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ReceiverID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Type        string    `gorm:"not null"`
	Status      string    `gorm:"not null"`
	StartedAt   time.Time
	ConnectedAt sql.NullTime
	EndedAt     sql.NullTime
	CreatedAt   time.Time
}

// CallParticipant represents call_participants. Mute flags are local
// participant state; toggling them never changes the call status.
type CallParticipant struct {
	CallID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	MutedAudio bool      `gorm:"default:false"`
	MutedVideo bool      `gorm:"default:false"`
	JoinedAt   sql.NullTime
}

func (Call) TableName() string {
	return "calls"
}

func (CallParticipant) TableName() string {
	return "call_participants"
}

// IsParticipant reports whether userID is one of the two call parties.
func (c Call) IsParticipant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}
