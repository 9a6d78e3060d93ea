// Package service provides the conversation lifecycle and history use cases
// behind the HTTP API.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

// ConversationStore persists conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	FindActiveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
	CompleteConversation(ctx context.Context, userID, conversationID string) (bool, error)
}

// EventPublisher records lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.AgentEvent) error
}

// ConversationService handles conversation operations.
type ConversationService struct {
	store  ConversationStore
	events EventPublisher
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(store ConversationStore, events EventPublisher, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  store,
		events: events,
		logger: log.Named("conversations"),
	}
}

// Start creates a new active conversation holding the user's message.
func (s *ConversationService) Start(ctx context.Context, userID, text string) (*model.Conversation, error) {
	conv := &model.Conversation{
		UserID:         userID,
		ConversationID: uuid.NewString(),
		Status:         model.ConversationActive,
		LastMessage:    text,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(model.ConversationActive)).Inc()
	s.logger.Info("conversation created",
		zap.String("user_id", userID),
		zap.String("conversation_id", conv.ConversationID),
	)
	s.publish(ctx, &model.AgentEvent{
		Type:           model.EventConversationStarted,
		UserID:         userID,
		ConversationID: conv.ConversationID,
	})
	return conv, nil
}

// FindActive returns the user's conversation if it is still active.
func (s *ConversationService) FindActive(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	return s.store.FindActiveConversation(ctx, userID, conversationID)
}

// Complete marks the conversation completed. A non-empty reason records that
// generation failed; the conversation is completed either way.
func (s *ConversationService) Complete(ctx context.Context, userID, conversationID, reason string) error {
	changed, err := s.store.CompleteConversation(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to complete conversation: %w", err)
	}
	if !changed {
		return nil
	}

	event := &model.AgentEvent{
		Type:           model.EventConversationCompleted,
		UserID:         userID,
		ConversationID: conversationID,
	}
	if reason != "" {
		event.Type = model.EventConversationFailed
		event.Reason = reason
	}

	metrics.ConversationsTotal.WithLabelValues(string(model.ConversationCompleted)).Inc()
	s.logger.Info("conversation completed",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.Bool("failed", reason != ""),
	)
	s.publish(ctx, event)
	return nil
}

func (s *ConversationService) publish(ctx context.Context, event *model.AgentEvent) {
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
