package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/middleware"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

const (
	noActiveConversation = "No active conversation found for this user_id and conversation_id"
	streamFailedMessage  = "An error occurred while generating the response."
)

// ActiveConversationFinder looks up active conversations.
type ActiveConversationFinder interface {
	FindActive(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
}

// Responder runs the agent for a conversation and completes it.
type Responder interface {
	Respond(ctx context.Context, conv *model.Conversation, onFragment func(string) error) error
}

// StreamHandler handles GET /sse/{user_id}/{conversation_id}.
type StreamHandler struct {
	conversations ActiveConversationFinder
	responder     Responder
	pacing        time.Duration
	logger        *logger.Logger

	producers sync.WaitGroup
}

// NewStreamHandler creates a new stream handler. pacing is the pause after
// each message event.
func NewStreamHandler(conversations ActiveConversationFinder, responder Responder, pacing time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		conversations: conversations,
		responder:     responder,
		pacing:        pacing,
		logger:        log,
	}
}

// Stream attaches to an active conversation and streams the agent's reply as
// message events, then a single close event. A failed generation emits an
// error event before close.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "user_id")
	conversationID := chi.URLParam(r, "conversation_id")
	log := h.logger.ForConversation(userID, conversationID).
		With(zap.String("correlation_id", middleware.GetCorrelationID(ctx)))

	if middleware.ValidateConversationID(conversationID) != nil {
		writeError(w, http.StatusOK, noActiveConversation)
		return
	}
	conv, err := h.conversations.FindActive(ctx, userID, conversationID)
	if err != nil {
		writeError(w, http.StatusOK, noActiveConversation)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events := make(chan model.StreamEvent)
	h.producers.Add(1)
	go func() {
		defer h.producers.Done()
		h.produce(ctx, conv, events, log)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				log.Warn("failed to write SSE event", zap.Error(err))
				return
			}
			flusher.Flush()
			if ev.Event == model.StreamEventClose {
				return
			}
		}
	}
}

// produce runs the agent and feeds events to the writer. Sends give up once
// the client is gone, which abandons generation.
func (h *StreamHandler) produce(ctx context.Context, conv *model.Conversation, events chan<- model.StreamEvent, log *logger.Logger) {
	defer close(events)

	send := func(ev model.StreamEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := h.responder.Respond(ctx, conv, func(fragment string) error {
		if err := send(model.StreamEvent{Event: model.StreamEventMessage, Data: fragment}); err != nil {
			return err
		}
		return h.pause(ctx)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Error("message producer failed", zap.Error(err))
		if send(model.StreamEvent{Event: model.StreamEventError, Data: streamFailedMessage}) != nil {
			return
		}
	}
	_ = send(model.StreamEvent{Event: model.StreamEventClose})
}

// Wait blocks until every producer has finished, including the conversation
// completion that outlives a disconnected client.
func (h *StreamHandler) Wait() {
	h.producers.Wait()
}

func (h *StreamHandler) pause(ctx context.Context) error {
	if h.pacing <= 0 {
		return nil
	}
	t := time.NewTimer(h.pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeSSEEvent writes one event frame. Multi-line data is split over several
// data fields so clients reassemble it with newlines.
func writeSSEEvent(w io.Writer, ev model.StreamEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", ev.Event)
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", strings.TrimSuffix(line, "\r"))
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
