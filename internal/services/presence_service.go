package services

import (
	"context"
	"time"

	"routechat/internal/repository"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
)

// PresenceService couples "user is actively viewing conversation X" to the
// read-state mutation: opening a conversation marks the other party's
// messages read and zeroes the viewer's unread counter.
type PresenceService struct {
	directory   *ConversationService
	messageRepo repository.MessageRepository
	broker      events.Publisher
	log         *logger.Logger
	batchSize   int
}

func NewPresenceService(directory *ConversationService, messageRepo repository.MessageRepository, broker events.Publisher, log *logger.Logger, batchSize int) *PresenceService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PresenceService{directory: directory, messageRepo: messageRepo, broker: broker, log: log, batchSize: batchSize}
}

// MarkConversationOpen advances every message the user did not send to READ
// and resets their unread counter. The unread backlog is walked in bounded
// batches so an arbitrarily large backlog never rides on a single round
// trip. Calling it again while the conversation is already open changes
// nothing.
func (s *PresenceService) MarkConversationOpen(ctx context.Context, userID, conversationID uuid.UUID) error {
	isMember, err := s.directory.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return routechat_errors.ErrForbidden
	}

	changed := int64(0)
	for {
		ids, err := s.messageRepo.ListUnreadIDs(ctx, conversationID, userID, s.batchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		n, err := s.messageRepo.MarkReadByIDs(ctx, ids)
		if err != nil {
			return err
		}
		changed += n
		if len(ids) < s.batchSize {
			break
		}
	}

	if err := s.directory.ResetUnread(ctx, conversationID, userID); err != nil {
		return err
	}

	if changed > 0 && s.broker != nil {
		event := events.Event{
			Type:      events.EventMessageStatus,
			Payload:   conversationID.String(),
			Timestamp: time.Now().Unix(),
		}
		if err := s.broker.Publish(ctx, events.ConversationChannel(conversationID.String()), event); err != nil && s.log != nil {
			s.log.Warnf("publish read receipts for conversation %s failed: %v", conversationID, err)
		}
	}
	return nil
}
