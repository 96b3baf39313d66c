package httpdto

import "github.com/google/uuid"

type FindOrCreateConversationRequest struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"required"`
}
