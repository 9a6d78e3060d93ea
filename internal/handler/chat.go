// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/middleware"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
)

const chatStartedMessage = "Conversation started. Connect to SSE endpoint to receive updates."

// ConversationStarter creates conversations.
type ConversationStarter interface {
	Start(ctx context.Context, userID, text string) (*model.Conversation, error)
}

// ChatHandler handles POST /chat/{user_id}.
type ChatHandler struct {
	conversations ConversationStarter
	logger        *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(conversations ConversationStarter, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		logger:        log,
	}
}

// Start records the user's message as a new active conversation. The reply
// is read from the SSE endpoint.
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "user_id")

	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.StartConversationRequest
	if err := decodeJSON(w, r, middleware.MaxMessageBytes+4096, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateChatText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Start(ctx, userID, req.Text)
	if err != nil {
		h.logger.Error("failed to start conversation",
			zap.String("user_id", userID),
			zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to start conversation")
		return
	}

	writeJSON(w, http.StatusOK, model.StartConversationResponse{
		Message:        chatStartedMessage,
		ConversationID: conv.ConversationID,
	})
}
