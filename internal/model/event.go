package model

import (
	"time"
)

// StreamEventType names an SSE event emitted on /sse.
type StreamEventType string

const (
	StreamEventMessage StreamEventType = "message"
	StreamEventError   StreamEventType = "error"
	StreamEventClose   StreamEventType = "close"
)

// StreamEvent is one frame of a conversation stream. Data is sent verbatim.
type StreamEvent struct {
	Event StreamEventType
	Data  string
}

// AgentEventType names a lifecycle event published to the event stream.
type AgentEventType string

const (
	EventConversationStarted   AgentEventType = "conversation.started"
	EventConversationCompleted AgentEventType = "conversation.completed"
	EventConversationFailed    AgentEventType = "conversation.failed"
	EventTokensRefreshed       AgentEventType = "tokens.refreshed"
	EventBotReplied            AgentEventType = "bot.replied"
)

// AgentEvent is an audit record of something the backend did.
type AgentEvent struct {
	ID             string            `json:"id"`
	Type           AgentEventType    `json:"type"`
	UserID         string            `json:"user_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
