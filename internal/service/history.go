package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
)

// MessageStore reads exchange records.
type MessageStore interface {
	CountMessages(ctx context.Context, userID string) (int64, error)
	ListMessages(ctx context.Context, userID string, offset, limit int) ([]model.Message, error)
}

// HistoryService pages through a user's past exchanges.
type HistoryService struct {
	store  MessageStore
	logger *logger.Logger
}

// NewHistoryService creates a new history service.
func NewHistoryService(store MessageStore, log *logger.Logger) *HistoryService {
	return &HistoryService{store: store, logger: log.Named("history")}
}

// Page returns page (1-indexed) of the user's history, newest first. Store
// failures yield an empty page with total 0.
func (s *HistoryService) Page(ctx context.Context, userID string, page, pageSize int) *model.HistoryPage {
	out := &model.HistoryPage{
		Data:     []model.HistoryItem{},
		Page:     page,
		PageSize: pageSize,
	}

	total, err := s.store.CountMessages(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count history", zap.String("user_id", userID), zap.Error(err))
		return out
	}

	out.Total = total
	out.TotalPages = total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		out.TotalPages++
	}
	// Pages past the end are answered without a query; this also keeps the
	// offset below total, so it cannot overflow.
	if int64(page-1) >= out.TotalPages {
		return out
	}

	records, err := s.store.ListMessages(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		out.Total, out.TotalPages = 0, 0
		s.logger.Error("failed to list history", zap.String("user_id", userID), zap.Error(err))
		return out
	}

	for _, r := range records {
		out.Data = append(out.Data, model.HistoryItem{
			ID:        strconv.FormatUint(uint64(r.ID), 10),
			Message:   r.Message,
			Response:  r.Response,
			Timestamp: r.Timestamp.Unix(),
		})
	}
	return out
}
