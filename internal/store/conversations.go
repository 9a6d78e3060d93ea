package store

import (
	"context"

	"github.com/xuegao65/agent-back/internal/apperror"
	"github.com/xuegao65/agent-back/internal/model"
)

// CreateConversation inserts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return apperror.Storage("create conversation", err)
	}
	return nil
}

// FindActiveConversation returns the user's conversation if it is still active.
func (s *Store) FindActiveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ? AND status = ?", userID, conversationID, model.ConversationActive).
		Take(&conv).Error
	if err != nil {
		return nil, notFoundOr(err, "active conversation", "find conversation")
	}
	return &conv, nil
}

// CompleteConversation moves an active conversation to completed. It reports
// false when the conversation was not active, so the transition happens once.
func (s *Store) CompleteConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("user_id = ? AND conversation_id = ? AND status = ?", userID, conversationID, model.ConversationActive).
		Update("status", model.ConversationCompleted)
	if res.Error != nil {
		return false, apperror.Storage("complete conversation", res.Error)
	}
	return res.RowsAffected == 1, nil
}
