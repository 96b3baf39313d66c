package repository

import (
	"context"
	"errors"
	"time"

	"routechat/internal/domain/conversation"
	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return routechat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, routechat_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByParticipantKey(ctx context.Context, key string) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("participant_key = ?", key).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, routechat_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	var conversations []conversation.Conversation

	subQuery := r.db.Model(&conversation.Participant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)

	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", subQuery).
		Order("(last_message_at IS NULL), last_message_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *PostgresConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&conversation.Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return routechat_errors.ErrNotFound
		}
		if err := tx.Delete(&conversation.Participant{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&conversation.ConversationSequence{}, "conversation_id = ?", id).Error
	})
}

func (r *PostgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresConversationRepository) GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error) {
	var participants []conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// IncrementUnread is a single counter update, not a read-then-overwrite, so
// two participants appending at the same instant cannot lose each other's
// increment.
func (r *PostgresConversationRepository) IncrementUnread(ctx context.Context, conversationID, excludeUserID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, excludeUserID).
		Update("unread_count", gorm.Expr("unread_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) UpdateSummary(ctx context.Context, conversationID uuid.UUID, content string, senderID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message":           content,
			"last_message_sender_id": senderID,
			"last_message_at":        at,
			"updated_at":             time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) ClearSummary(ctx context.Context, conversationID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message":           nil,
			"last_message_sender_id": nil,
			"last_message_at":        nil,
			"updated_at":             time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}

// IncrementSequence allocates the next number with a single upsert that
// bumps the counter in place. Concurrent appends serialize on the counter
// row instead of both reading the same old value, so no two messages in a
// conversation can be handed the same sequence.
func (r *PostgresConversationRepository) IncrementSequence(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var seq conversation.ConversationSequence

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversation.ConversationSequence{
			ConversationID: conversationID,
			LastSequence:   1,
			UpdatedAt:      time.Now(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_sequence": gorm.Expr("conversation_sequences.last_sequence + 1"),
				"updated_at":    time.Now(),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", conversationID).First(&seq).Error
	})

	if err != nil {
		return 0, err
	}
	return seq.LastSequence, nil
}
