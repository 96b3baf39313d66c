package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"routechat/internal/domain/message"
	"routechat/internal/repository"
	routechat_errors "routechat/pkg/errors"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageService is the message stream: the ordered, append-mostly log of
// one conversation with the delivery-state lifecycle.
type MessageService struct {
	db        *gorm.DB
	repo      repository.MessageRepository
	directory *ConversationService
	broker    events.Publisher
	notifier  Notifier
	log       *logger.Logger
}

func NewMessageService(db *gorm.DB, repo repository.MessageRepository, directory *ConversationService, broker events.Publisher, notifier Notifier, log *logger.Logger) *MessageService {
	return &MessageService{db: db, repo: repo, directory: directory, broker: broker, notifier: notifier, log: log}
}

// AppendInput describes one message append. Attachments are descriptors
// already produced by the uploader.
type AppendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	SenderName     string
	Content        string
	Attachments    []message.Attachment
	ReplyToID      uuid.NullUUID
}

// Append persists a new message with status SENT and a server timestamp,
// then updates the conversation summary and unread counters. The message
// insert (with its sequence number) is the durable step; a failure in the
// summary or counter step leaves a stale summary, never a missing message —
// RecomputeSummary can repair it.
func (s *MessageService) Append(ctx context.Context, input AppendInput) (message.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return message.Message{}, routechat_errors.ErrEmptyMessage
	}

	conv, err := s.directory.GetByID(ctx, input.ConversationID)
	if err != nil {
		return message.Message{}, err
	}
	senderIsMember := false
	for _, p := range conv.Participants {
		if p.UserID == input.SenderID {
			senderIsMember = true
			break
		}
	}
	if !senderIsMember {
		return message.Message{}, routechat_errors.ErrForbidden
	}

	now := time.Now()
	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		SenderName:     input.SenderName,
		Content:        nullString(content),
		Status:         message.StatusSent,
		CreatedAt:      now,
	}

	if input.ReplyToID.Valid {
		// The reply reference is embedded as a value snapshot so it stays
		// renderable after the original message is deleted.
		original, err := s.repo.GetByID(ctx, input.ReplyToID.UUID)
		if err != nil {
			return message.Message{}, err
		}
		if original.ConversationID != input.ConversationID {
			return message.Message{}, routechat_errors.ErrInvalidInput
		}
		msg.ReplyToMsgID = input.ReplyToID
		msg.ReplyToContent = original.Content
		msg.ReplyToSenderID = uuid.NullUUID{UUID: original.SenderID, Valid: true}
	}

	for i, a := range input.Attachments {
		a.MessageID = msg.ID
		a.Position = i
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		msg.Attachments = append(msg.Attachments, a)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := repository.NewConversationRepository(tx).IncrementSequence(ctx, input.ConversationID)
		if err != nil {
			return err
		}
		msg.SeqID = seq
		return repository.NewMessageRepository(tx).Create(ctx, &msg)
	})
	if err != nil {
		return message.Message{}, err
	}

	if err := s.directory.UpdateSummary(ctx, input.ConversationID, summaryText(msg.Content), input.SenderID, now); err != nil && s.log != nil {
		s.log.Warnf("summary update failed for conversation %s: %v", input.ConversationID, err)
	}
	if err := s.directory.IncrementUnread(ctx, input.ConversationID, input.SenderID); err != nil && s.log != nil {
		s.log.Warnf("unread increment failed for conversation %s: %v", input.ConversationID, err)
	}

	s.publishMessageEvent(ctx, events.EventMessageNew, msg.ConversationID, msg.ID)
	for _, p := range conv.Participants {
		if p.UserID == input.SenderID {
			continue
		}
		dispatchNotify(s.notifier, s.log, p.UserID, input.SenderName, summaryText(msg.Content), map[string]string{
			"conversation_id": input.ConversationID.String(),
			"message_id":      msg.ID.String(),
		})
	}

	return msg, nil
}

// AdvanceStatus moves a message forward in the SENT < DELIVERED < READ
// ordering. The sender may never advance their own message; re-applying the
// current status is a no-op so concurrent calls from both of a user's open
// views converge without errors.
func (s *MessageService) AdvanceStatus(ctx context.Context, messageID, actorID uuid.UUID, newStatus string) error {
	target := message.StatusRank(newStatus)
	if target < 0 {
		return routechat_errors.ErrInvalidInput
	}

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == actorID {
		return routechat_errors.ErrForbidden
	}
	isMember, err := s.directory.IsParticipant(ctx, msg.ConversationID, actorID)
	if err != nil {
		return err
	}
	if !isMember {
		return routechat_errors.ErrForbidden
	}

	current := message.StatusRank(msg.Status)
	if target == current {
		return nil
	}
	if target < current {
		return routechat_errors.ErrInvalidTransition
	}

	var allowed []string
	for status, rank := range map[string]int{
		message.StatusSent:      0,
		message.StatusDelivered: 1,
		message.StatusRead:      2,
	} {
		if rank < target {
			allowed = append(allowed, status)
		}
	}
	// An unchanged row means a concurrent caller already advanced at least
	// this far; that is convergence, not a failure.
	if _, err := s.repo.AdvanceStatus(ctx, messageID, newStatus, allowed); err != nil {
		return err
	}

	s.publishMessageEvent(ctx, events.EventMessageStatus, msg.ConversationID, messageID)
	return nil
}

// Delete removes a message. Only its sender may delete it. When the deleted
// message was the conversation's most recent one, the denormalized summary
// is recomputed from the surviving log.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID uuid.UUID) error {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return routechat_errors.ErrForbidden
	}

	latest, err := s.repo.GetLatest(ctx, msg.ConversationID)
	if err != nil && !errors.Is(err, routechat_errors.ErrNotFound) {
		return err
	}
	wasLatest := err == nil && latest.ID == messageID

	if err := s.repo.Delete(ctx, messageID); err != nil {
		return err
	}

	if wasLatest {
		if err := s.directory.RecomputeSummary(ctx, msg.ConversationID); err != nil && s.log != nil {
			s.log.Warnf("summary recompute failed for conversation %s: %v", msg.ConversationID, err)
		}
	}

	s.publishMessageEvent(ctx, events.EventMessageDeleted, msg.ConversationID, messageID)
	return nil
}

func (s *MessageService) GetByID(ctx context.Context, messageID uuid.UUID) (message.Message, error) {
	return s.repo.GetByID(ctx, messageID)
}

// ListByConversation returns the conversation's messages ordered by their
// append sequence, oldest first.
func (s *MessageService) ListByConversation(ctx context.Context, conversationID, userID uuid.UUID) ([]message.Message, error) {
	isMember, err := s.directory.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, routechat_errors.ErrForbidden
	}
	return s.repo.ListByConversation(ctx, conversationID)
}

func (s *MessageService) publishMessageEvent(ctx context.Context, eventType string, conversationID, messageID uuid.UUID) {
	if s.broker == nil {
		return
	}
	event := events.Event{
		Type:      eventType,
		Payload:   messageID.String(),
		Timestamp: time.Now().Unix(),
	}
	if err := s.broker.Publish(ctx, events.ConversationChannel(conversationID.String()), event); err != nil && s.log != nil {
		s.log.Warnf("publish %s for conversation %s failed: %v", eventType, conversationID, err)
	}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
