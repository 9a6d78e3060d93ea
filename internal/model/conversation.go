// Package model defines data structures for the agent backend.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
)

// Conversation is one chat session between a user and the agent. It is
// created active and completed once its response stream ends.
type Conversation struct {
	ID             uint               `gorm:"primaryKey" json:"-"`
	UserID         string             `gorm:"index:idx_conversations_user_status;not null" json:"user_id"`
	ConversationID string             `gorm:"uniqueIndex;not null" json:"conversation_id"`
	Status         ConversationStatus `gorm:"index:idx_conversations_user_status;type:varchar(16);not null" json:"status"`
	LastMessage    string             `gorm:"type:text" json:"last_message"`
	CreatedAt      time.Time          `json:"created_at"`
}

// TableName pins the collection name.
func (Conversation) TableName() string {
	return "conversations"
}

// StartConversationRequest is the body of POST /chat/{user_id}.
type StartConversationRequest struct {
	Text string `json:"text"`
}

// StartConversationResponse tells the client where to read the reply.
type StartConversationResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}
