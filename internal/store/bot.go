package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
)

// RateLimitWindow returns the window for month, creating it when missing. A
// new window starts from the newest cursor of any earlier month.
func (s *Store) RateLimitWindow(ctx context.Context, month time.Time) (*model.RateLimitWindow, error) {
	db := s.db.WithContext(ctx)

	var w model.RateLimitWindow
	err := db.Where("month = ?", month).Take(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Storage("get rate limit window", err)
	}

	fresh := model.RateLimitWindow{Month: month}
	var prev model.RateLimitWindow
	err = db.Where("last_mention_id IS NOT NULL AND month < ?", month).Order("month DESC").Take(&prev).Error
	switch {
	case err == nil:
		fresh.LastMentionID = prev.LastMentionID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperror.Storage("get previous rate limit window", err)
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, apperror.Storage("create rate limit window", err)
	}
	if err := db.Where("month = ?", month).Take(&w).Error; err != nil {
		return nil, apperror.Storage("get rate limit window", err)
	}
	return &w, nil
}

// IncrementRateLimits adds to the month's counters, creating the window if needed.
func (s *Store) IncrementRateLimits(ctx context.Context, month time.Time, posts, reads int) error {
	if posts == 0 && reads == 0 {
		return nil
	}
	row := model.RateLimitWindow{Month: month, PostCount: posts, ReadCount: reads}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "month"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "post_count"}, Value: gorm.Expr("rate_limits.post_count + excluded.post_count")},
				{Column: clause.Column{Name: "read_count"}, Value: gorm.Expr("rate_limits.read_count + excluded.read_count")},
			},
		}).
		Create(&row).Error
	if err != nil {
		return apperror.Storage("increment rate limits", err)
	}
	return nil
}

// AdvanceMentionCursor moves the month's cursor to mentionID only if it is
// newer than the stored one. Mention ids are decimal strings, so a longer id
// is newer and equal lengths compare lexically.
func (s *Store) AdvanceMentionCursor(ctx context.Context, month time.Time, mentionID string) error {
	err := s.db.WithContext(ctx).
		Model(&model.RateLimitWindow{}).
		Where("month = ?", month).
		Where("last_mention_id IS NULL OR LENGTH(last_mention_id) < LENGTH(?) OR (LENGTH(last_mention_id) = LENGTH(?) AND last_mention_id < ?)",
			mentionID, mentionID, mentionID).
		Update("last_mention_id", mentionID).Error
	if err != nil {
		return apperror.Storage("advance mention cursor", err)
	}
	return nil
}

// SaveTweetReply appends a reply audit record.
func (s *Store) SaveTweetReply(ctx context.Context, reply *model.TweetReply) error {
	if err := s.db.WithContext(ctx).Create(reply).Error; err != nil {
		return apperror.Storage("save tweet reply", err)
	}
	return nil
}
