package model

import (
	"time"
)

// RateLimitWindow counts X API usage for one calendar month (UTC).
type RateLimitWindow struct {
	ID            uint      `gorm:"primaryKey"`
	Month         time.Time `gorm:"uniqueIndex;not null"`
	PostCount     int       `gorm:"not null;default:0"`
	ReadCount     int       `gorm:"not null;default:0"`
	LastMentionID *string
}

// TableName pins the collection name.
func (RateLimitWindow) TableName() string {
	return "rate_limits"
}

// Cursor returns the last processed mention id, or "".
func (w *RateLimitWindow) Cursor() string {
	if w == nil || w.LastMentionID == nil {
		return ""
	}
	return *w.LastMentionID
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TweetReply records a reply the bot posted.
type TweetReply struct {
	ID           uint   `gorm:"primaryKey"`
	MentionID    string `gorm:"index;not null"`
	MentionText  string `gorm:"type:text"`
	ResponseID   string `gorm:"not null"`
	ResponseText string `gorm:"type:text"`
	CreatedAt    time.Time
}

// TableName pins the collection name.
func (TweetReply) TableName() string {
	return "tweets"
}
