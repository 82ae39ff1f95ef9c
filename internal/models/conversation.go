package models

import "time"

// Conversation groups a sequence of messages owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Language  string    `json:"language"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary is the sidebar view of a conversation.
type ConversationSummary struct {
	ConversationID     string    `json:"conversation_id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastSender         Sender    `json:"last_sender"`
	LastTimestamp      time.Time `json:"last_timestamp"`
	TotalMessages      int       `json:"total_messages"`
	Model              string    `json:"model"`
	Language           string    `json:"language"`
	IsActive           bool      `json:"is_active"`
	CreatedDate        time.Time `json:"created_date"`
}

// ConversationDetail is a summary plus its ordered messages.
type ConversationDetail struct {
	ConversationSummary
	Messages []Message `json:"messages"`
}
