package repository

import (
	"context"
	"errors"

	"routechat/internal/domain/message"
	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return routechat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, routechat_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	var messages []message.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("conversation_id = ?", conversationID).
		Order("seq_id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) GetLatest(ctx context.Context, conversationID uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq_id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, routechat_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&message.Attachment{}, "message_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&message.Message{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return routechat_errors.ErrNotFound
		}
		return nil
	})
}

func (r *PostgresMessageRepository) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subQuery := tx.Model(&message.Message{}).
			Select("id").
			Where("conversation_id = ?", conversationID)
		if err := tx.Delete(&message.Attachment{}, "message_id IN (?)", subQuery).Error; err != nil {
			return err
		}
		return tx.Delete(&message.Message{}, "conversation_id = ?", conversationID).Error
	})
}

// AdvanceStatus is a guarded update: the row only changes when its current
// status is still one of allowedCurrent, so concurrent forward moves
// converge and a backward move never applies.
func (r *PostgresMessageRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus string, allowedCurrent []string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND status IN (?)", id, allowedCurrent).
		Update("status", newStatus)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresMessageRepository) ListUnreadIDs(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Select("id").
		Where("conversation_id = ? AND sender_id <> ? AND status <> ?", conversationID, userID, message.StatusRead).
		Order("seq_id ASC").
		Limit(limit).
		Find(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresMessageRepository) MarkReadByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id IN (?) AND status <> ?", ids, message.StatusRead).
		Update("status", message.StatusRead)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
