package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aksara/internal/models"
)

const (
	NewConversationTitle = "New Chat"
	DefaultLanguage      = "id"
	titleLimit           = 50
	previewLimit         = 100
)

var ErrConversationNotFound = errors.New("chat history not found")

// ConversationTitle derives a title from the first message of a conversation.
func ConversationTitle(input string) string {
	input = strings.TrimSpace(input)
	runes := []rune(input)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return input
}

// CreateConversation inserts a new conversation for the user and returns the record.
func (s *Service) CreateConversation(ctx context.Context, userID, title, model string) (*models.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	if title == "" {
		title = NewConversationTitle
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Model:     model,
		Language:  DefaultLanguage,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, model, language, is_active, is_deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.Model, conv.Language, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns a non-deleted conversation owned by the user.
func (s *Service) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, model, language, is_active, created_at, updated_at
		 FROM conversations WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.Language, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ListMessages returns the ordered messages of a conversation owned by the user.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, text, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			m      models.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = models.Sender(sender)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// Exchange is one user input and the assistant output to persist together.
type Exchange struct {
	ConversationID string
	Input          string
	Output         string
	// Title replaces the conversation title when non-empty.
	Title string
}

// AppendExchange stores the user and assistant messages of one turn atomically.
func (s *Service) AppendExchange(ctx context.Context, userID string, ex Exchange) ([]*models.Message, error) {
	if strings.TrimSpace(ex.Input) == "" {
		return nil, errors.New("input cannot be empty")
	}
	if _, err := s.GetConversation(ctx, userID, ex.ConversationID); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	stored := make([]*models.Message, 0, 2)
	for _, m := range []struct {
		sender models.Sender
		text   string
	}{
		{models.SenderUser, ex.Input},
		{models.SenderAssistant, ex.Output},
	} {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
			ex.ConversationID, string(m.sender), m.text, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("message id: %w", err)
		}
		stored = append(stored, &models.Message{
			ID:             id,
			ConversationID: ex.ConversationID,
			Sender:         m.sender,
			Text:           m.text,
			CreatedAt:      now,
		})
	}
	if ex.Title != "" {
		_, err = tx.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, ex.Title, now, ex.ConversationID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, ex.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit exchange: %w", err)
	}
	return stored, nil
}

// ListConversations returns the user's conversation summaries, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.model, c.language, c.is_active, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
			COALESCE((SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id DESC LIMIT 1), ''),
			COALESCE((SELECT m.sender FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id DESC LIMIT 1), '')
		 FROM conversations c
		 WHERE c.user_id = ? AND c.is_deleted = 0
		 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var (
			sum    models.ConversationSummary
			sender string
		)
		if err := rows.Scan(&sum.ConversationID, &sum.Title, &sum.Model, &sum.Language, &sum.IsActive,
			&sum.CreatedDate, &sum.LastTimestamp, &sum.TotalMessages, &sum.LastMessagePreview, &sender); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sum.LastSender = models.Sender(sender)
		sum.LastMessagePreview = preview(sum.LastMessagePreview)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// GetConversationDetail returns one conversation and its ordered messages.
func (s *Service) GetConversationDetail(ctx context.Context, userID, id string) (*models.ConversationDetail, error) {
	conv, err := s.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.ListMessages(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	detail := &models.ConversationDetail{
		ConversationSummary: models.ConversationSummary{
			ConversationID: conv.ID,
			Title:          conv.Title,
			LastTimestamp:  conv.UpdatedAt,
			TotalMessages:  len(messages),
			Model:          conv.Model,
			Language:       conv.Language,
			IsActive:       conv.IsActive,
			CreatedDate:    conv.CreatedAt,
		},
		Messages: make([]models.Message, 0, len(messages)),
	}
	for _, m := range messages {
		detail.Messages = append(detail.Messages, *m)
	}
	if n := len(messages); n > 0 {
		detail.LastMessagePreview = preview(messages[n-1].Text)
		detail.LastSender = messages[n-1].Sender
	}
	return detail, nil
}

// DeleteConversation soft-deletes a conversation owned by the user.
func (s *Service) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_deleted = 1, is_active = 0, updated_at = ? WHERE id = ? AND user_id = ? AND is_deleted = 0`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func preview(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "..."
	}
	return string(runes)
}
