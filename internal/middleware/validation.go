package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageBytes bounds a chat message.
const MaxMessageBytes = 100000

const maxUserIDLen = 128

// ValidateChatText checks the text of a chat message.
func ValidateChatText(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return errors.New("text cannot be empty")
	case len(text) > MaxMessageBytes:
		return errors.New("text exceeds maximum length")
	case !utf8.ValidString(text):
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID checks the id has the shape the chat endpoint issues.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateUserID checks a user_id path segment.
func ValidateUserID(id string) error {
	if id == "" || len(id) > maxUserIDLen {
		return errors.New("invalid user ID")
	}
	return nil
}
