package store

import (
	"context"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
)

// AppendMessage stores a finished exchange.
func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperror.Storage("append message", err)
	}
	return nil
}

// CountMessages returns how many exchanges a user has.
func (s *Store) CountMessages(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, apperror.Storage("count messages", err)
	}
	return n, nil
}

// ListMessages returns a user's exchanges newest first.
func (s *Store) ListMessages(ctx context.Context, userID string, offset, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, apperror.Storage("list messages", err)
	}
	return msgs, nil
}
