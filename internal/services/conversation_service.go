package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"
	"routechat/internal/repository"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationService is the conversation directory: it owns conversation
// identity, the per-user list and the unread summaries.
type ConversationService struct {
	db          *gorm.DB
	repo        repository.ConversationRepository
	messageRepo repository.MessageRepository
	broker      events.Publisher
	log         *logger.Logger
}

func NewConversationService(db *gorm.DB, repo repository.ConversationRepository, messageRepo repository.MessageRepository, broker events.Publisher, log *logger.Logger) *ConversationService {
	return &ConversationService{db: db, repo: repo, messageRepo: messageRepo, broker: broker, log: log}
}

// FindOrCreate resolves the conversation for a participant set. The set is
// normalized (sorted, deduplicated) and matched by full set equality via the
// canonical participant key, so {u1,u2} and {u2,u1} resolve to the same
// conversation and a set sharing one member with another never collapses
// into it. Two concurrent callers converge on one row through the unique
// key on participant_key.
func (s *ConversationService) FindOrCreate(ctx context.Context, participantIDs []uuid.UUID) (conversation.Conversation, error) {
	normalized := conversation.NormalizeParticipants(participantIDs)
	if len(normalized) < 2 {
		return conversation.Conversation{}, routechat_errors.ErrInvalidParticipantSet
	}
	key := conversation.ParticipantKeyOf(normalized)

	existing, err := s.repo.GetByParticipantKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, routechat_errors.ErrNotFound) {
		return conversation.Conversation{}, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		ParticipantKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, userID := range normalized {
		conv.Participants = append(conv.Participants, conversation.Participant{
			ConversationID: conv.ID,
			UserID:         userID,
			JoinedAt:       now,
		})
	}

	if err := s.repo.Create(ctx, &conv); err != nil {
		if errors.Is(err, routechat_errors.ErrAlreadyExists) {
			// Lost the creation race; the winner's row is the conversation.
			return s.repo.GetByParticipantKey(ctx, key)
		}
		return conversation.Conversation{}, err
	}
	return conv, nil
}

func (s *ConversationService) GetByID(ctx context.Context, conversationID uuid.UUID) (conversation.Conversation, error) {
	return s.repo.GetByID(ctx, conversationID)
}

// ListForUser returns the user's conversations ordered by last message time,
// newest first. Live delivery of changes is handled by the feeds package on
// top of the broker.
func (s *ConversationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	return s.repo.GetUserConversations(ctx, userID)
}

func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return s.repo.IsParticipant(ctx, conversationID, userID)
}

// IncrementUnread bumps the counter of every participant except the sender.
func (s *ConversationService) IncrementUnread(ctx context.Context, conversationID, excludeUserID uuid.UUID) error {
	if err := s.repo.IncrementUnread(ctx, conversationID, excludeUserID); err != nil {
		return err
	}
	s.publishConversationUpdated(ctx, conversationID)
	return nil
}

// ResetUnread zeroes one participant's counter.
func (s *ConversationService) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.repo.ResetUnread(ctx, conversationID, userID); err != nil {
		return err
	}
	s.publishConversationUpdated(ctx, conversationID)
	return nil
}

// UpdateSummary refreshes the denormalized last-message fields after an
// append.
func (s *ConversationService) UpdateSummary(ctx context.Context, conversationID uuid.UUID, content string, senderID uuid.UUID, at time.Time) error {
	return s.repo.UpdateSummary(ctx, conversationID, content, senderID, at)
}

// RecomputeSummary re-derives the last-message fields from the newest
// surviving message. Idempotent; safe to call after any suspected
// inconsistency between the summary and the message log.
func (s *ConversationService) RecomputeSummary(ctx context.Context, conversationID uuid.UUID) error {
	latest, err := s.messageRepo.GetLatest(ctx, conversationID)
	if err != nil {
		if errors.Is(err, routechat_errors.ErrNotFound) {
			if err := s.repo.ClearSummary(ctx, conversationID); err != nil {
				return err
			}
			s.publishConversationUpdated(ctx, conversationID)
			return nil
		}
		return err
	}

	if err := s.repo.UpdateSummary(ctx, conversationID, summaryText(latest.Content), latest.SenderID, latest.CreatedAt); err != nil {
		return err
	}
	s.publishConversationUpdated(ctx, conversationID)
	return nil
}

// Delete removes a conversation and cascades to its messages. Only a
// participant may delete.
func (s *ConversationService) Delete(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	member := false
	for _, p := range conv.Participants {
		if p.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		return routechat_errors.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMessageRepository(tx).DeleteByConversation(ctx, conversationID); err != nil {
			return err
		}
		return repository.NewConversationRepository(tx).Delete(ctx, conversationID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, conv.Participants, events.Event{
		Type:      events.EventConversationDeleted,
		Payload:   conversationID.String(),
		Timestamp: time.Now().Unix(),
	})
	return nil
}

func (s *ConversationService) publishConversationUpdated(ctx context.Context, conversationID uuid.UUID) {
	participants, err := s.repo.GetParticipants(ctx, conversationID)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("conversation update fanout skipped for %s: %v", conversationID, err)
		}
		return
	}
	s.publish(ctx, participants, events.Event{
		Type:      events.EventConversationUpdated,
		Payload:   conversationID.String(),
		Timestamp: time.Now().Unix(),
	})
}

func (s *ConversationService) publish(ctx context.Context, participants []conversation.Participant, event events.Event) {
	if s.broker == nil {
		return
	}
	for _, p := range participants {
		if err := s.broker.Publish(ctx, events.UserChannel(p.UserID.String()), event); err != nil && s.log != nil {
			s.log.Warnf("publish %s to user %s failed: %v", event.Type, p.UserID, err)
		}
	}
}

func summaryText(content sql.NullString) string {
	if content.Valid && content.String != "" {
		return content.String
	}
	return message.PlaceholderContent
}
