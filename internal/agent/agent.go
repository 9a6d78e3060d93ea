// Package agent is the chat orchestrator: it runs the persona against the LLM,
// executes the token tools the model asks for and records each finished
// exchange in the user's history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/llm"
	"github.com/xuegao65/agent-back/internal/model"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

// ErrEmptyResponse is returned when the model finishes without any text.
var ErrEmptyResponse = errors.New("agent: empty response")

// HistoryStore reads and appends exchange records.
type HistoryStore interface {
	ListMessages(ctx context.Context, userID string, offset, limit int) ([]model.Message, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
}

// Config tunes generation.
type Config struct {
	Model         string
	HistoryTurns  int
	MaxToolRounds int
	MaxTokens     int
}

// Agent generates persona responses.
type Agent struct {
	llm     llm.Client
	tools   map[string]Tool
	specs   []llm.ToolSpec
	history HistoryStore
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// New creates an Agent with the closed tool set backed by actions.
func New(client llm.Client, actions Actions, history HistoryStore, cfg Config, log *logger.Logger) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 5
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}

	a := &Agent{
		llm:     client,
		tools:   make(map[string]Tool),
		history: history,
		cfg:     cfg,
		log:     log.Named("agent"),
		now:     time.Now,
	}
	for _, t := range Tools(actions) {
		a.tools[t.Name] = t
		a.specs = append(a.specs, t.Spec())
	}
	return a
}

// Generate answers message for userID. Fragments are passed to onFragment in
// generation order as they arrive; onFragment may be nil. An error from
// onFragment abandons generation. The full response is returned and
// recorded in the user's history.
func (a *Agent) Generate(ctx context.Context, userID, message string, onFragment func(string) error) (string, error) {
	start := time.Now()
	log := a.log.With(zap.String("user_id", userID))

	msgs := append(a.loadHistory(ctx, userID, log), llm.ChatMessage{Role: llm.RoleUser, Content: message})

	var full strings.Builder
	emit := func(fragment string) error {
		full.WriteString(fragment)
		if onFragment != nil {
			return onFragment(fragment)
		}
		return nil
	}

	var tokensIn, tokensOut int
	modelName := a.cfg.Model
	for round := 0; ; round++ {
		req := &llm.CompletionRequest{
			Model:     a.cfg.Model,
			System:    Persona,
			Messages:  msgs,
			MaxTokens: a.cfg.MaxTokens,
		}
		// The final round offers no tools so the model must answer.
		if round < a.cfg.MaxToolRounds {
			req.Tools = a.specs
		}

		resp, err := a.llm.CompleteStream(ctx, req, emit)
		if err != nil {
			metrics.RecordLLMStream(modelLabel(modelName), "error", time.Since(start).Seconds(), tokensIn, tokensOut)
			return "", fmt.Errorf("agent: generate: %w", err)
		}
		tokensIn += resp.TokensIn
		tokensOut += resp.TokensOut
		modelName = resp.Model

		if len(resp.ToolCalls) == 0 || req.Tools == nil {
			break
		}

		msgs = append(msgs, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := a.runTool(ctx, call, log)
			msgs = append(msgs, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	response := full.String()
	if strings.TrimSpace(response) == "" {
		metrics.RecordLLMStream(modelLabel(modelName), "empty", time.Since(start).Seconds(), tokensIn, tokensOut)
		return "", ErrEmptyResponse
	}
	metrics.RecordLLMStream(modelLabel(modelName), "success", time.Since(start).Seconds(), tokensIn, tokensOut)

	record := &model.Message{
		UserID:    userID,
		Message:   message,
		Response:  response,
		Timestamp: a.now().UTC(),
	}
	if err := a.history.AppendMessage(ctx, record); err != nil {
		log.Error("failed to record exchange", zap.Error(err))
	}

	log.Info("response generated",
		zap.Int("chars", len(response)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut),
		zap.Duration("duration", time.Since(start)),
	)
	return response, nil
}

// loadHistory returns the most recent turns, oldest first. A failure only
// costs context, so it is logged and ignored.
func (a *Agent) loadHistory(ctx context.Context, userID string, log *logger.Logger) []llm.ChatMessage {
	if a.cfg.HistoryTurns == 0 {
		return nil
	}
	records, err := a.history.ListMessages(ctx, userID, 0, a.cfg.HistoryTurns)
	if err != nil {
		log.Warn("failed to load history", zap.Error(err))
		return nil
	}

	msgs := make([]llm.ChatMessage, 0, 2*len(records)+1)
	for i := len(records) - 1; i >= 0; i-- {
		msgs = append(msgs,
			llm.ChatMessage{Role: llm.RoleUser, Content: records[i].Message},
			llm.ChatMessage{Role: llm.RoleAssistant, Content: records[i].Response},
		)
	}
	return msgs
}

func (a *Agent) runTool(ctx context.Context, call llm.ToolCall, log *logger.Logger) string {
	tool, ok := a.tools[call.Name]
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues("unknown").Inc()
		log.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return fmt.Sprintf("Unknown tool: %s.", call.Name)
	}

	metrics.ToolCallsTotal.WithLabelValues(tool.Name).Inc()
	result := tool.Call(ctx, call.Arguments)
	log.Info("tool executed", zap.String("tool", tool.Name), zap.String("result", result))
	return result
}

func modelLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
