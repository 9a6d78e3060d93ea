package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
)

const completeTimeout = 10 * time.Second

// Generator produces the agent's response to a message.
type Generator interface {
	Generate(ctx context.Context, userID, message string, onFragment func(string) error) (string, error)
}

// MessageService runs the agent for a conversation.
type MessageService struct {
	conversations *ConversationService
	generator     Generator
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(conversations *ConversationService, generator Generator, log *logger.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		generator:     generator,
		logger:        log.Named("messages"),
	}
}

// Respond streams the agent's answer to the conversation's message through
// onFragment and then completes the conversation, on failure as well. The
// completion uses a context detached from ctx so it survives a disconnect.
func (s *MessageService) Respond(ctx context.Context, conv *model.Conversation, onFragment func(string) error) error {
	_, genErr := s.generator.Generate(ctx, conv.UserID, conv.LastMessage, onFragment)

	reason := ""
	if genErr != nil {
		reason = genErr.Error()
		s.logger.ForConversation(conv.UserID, conv.ConversationID).
			Warn("generation failed", zap.Error(genErr))
	}

	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()
	if err := s.conversations.Complete(completeCtx, conv.UserID, conv.ConversationID, reason); err != nil {
		s.logger.Error("failed to complete conversation",
			zap.String("conversation_id", conv.ConversationID),
			zap.Error(err),
		)
	}
	return genErr
}
