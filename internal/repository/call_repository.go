package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"routechat/internal/domain/call"
	routechat_errors "routechat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresCallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &PostgresCallRepository{db: db}
}

func (r *PostgresCallRepository) Create(ctx context.Context, c *call.Call) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		participants := []call.CallParticipant{
			{CallID: c.ID, UserID: c.CallerID, JoinedAt: sql.NullTime{Time: c.StartedAt, Valid: true}},
			{CallID: c.ID, UserID: c.ReceiverID},
		}
		return tx.Create(&participants).Error
	})
}

func (r *PostgresCallRepository) GetByID(ctx context.Context, id uuid.UUID) (call.Call, error) {
	var c call.Call
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call.Call{}, routechat_errors.ErrNotFound
		}
		return call.Call{}, err
	}
	return c, nil
}

func (r *PostgresCallRepository) GetActiveCallForUser(ctx context.Context, userID uuid.UUID) (call.Call, error) {
	var c call.Call
	err := r.db.WithContext(ctx).
		Where("(caller_id = ? OR receiver_id = ?) AND status IN (?)",
			userID, userID, []string{call.StatusRinging, call.StatusOngoing}).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call.Call{}, routechat_errors.ErrNotFound
		}
		return call.Call{}, err
	}
	return c, nil
}

func (r *PostgresCallRepository) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]call.Call, int64, error) {
	var calls []call.Call
	var total int64

	q := r.db.WithContext(ctx).
		Model(&call.Call{}).
		Where("caller_id = ? OR receiver_id = ?", userID, userID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit
	if err := q.
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&calls).Error; err != nil {
		return nil, 0, err
	}

	return calls, total, nil
}

// TransitionStatus only succeeds while the call is still in the expected
// source state. A timer firing after answer, or two terminal transitions
// racing, lose the conditional update and report false.
func (r *PostgresCallRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case call.StatusOngoing:
		updates["connected_at"] = at
	case call.StatusEnded, call.StatusRejected, call.StatusMissed:
		updates["ended_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&call.Call{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresCallRepository) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (call.CallParticipant, error) {
	var p call.CallParticipant
	err := r.db.WithContext(ctx).
		Where("call_id = ? AND user_id = ?", callID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call.CallParticipant{}, routechat_errors.ErrNotFound
		}
		return call.CallParticipant{}, err
	}
	return p, nil
}

func (r *PostgresCallRepository) SetMute(ctx context.Context, callID, userID uuid.UUID, audioMuted, videoMuted bool) error {
	res := r.db.WithContext(ctx).
		Model(&call.CallParticipant{}).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Updates(map[string]interface{}{
			"muted_audio": audioMuted,
			"muted_video": videoMuted,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresCallRepository) MarkJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&call.CallParticipant{}).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Update("joined_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return routechat_errors.ErrNotFound
	}
	return nil
}
