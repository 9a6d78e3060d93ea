package model

import (
	"time"
)

// Message is one completed exchange: what the user said and what the agent
// answered. History is keyed by user only.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"index:idx_messages_user_ts;not null"`
	Message   string    `gorm:"type:text"`
	Response  string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index:idx_messages_user_ts;not null"`
}

// TableName pins the collection name.
func (Message) TableName() string {
	return "messages"
}

// HistoryItem is the wire form of a Message.
type HistoryItem struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryPage is the response of GET /history/{user_id}.
type HistoryPage struct {
	Data       []HistoryItem `json:"data"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int64         `json:"total_pages"`
}
