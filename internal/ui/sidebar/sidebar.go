// Package sidebar holds the conversation history list shown beside the chat.
package sidebar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/logging"
	"aksara/internal/models"
)

// PreviewLength is the number of characters shown of titles and previews.
const PreviewLength = 60

type Sidebar struct {
	backend client.Backend
	logger  *zap.Logger

	mu       sync.RWMutex
	items    []models.ConversationSummary
	query    string
	selected string
	lastErr  error
}

func New(backend client.Backend, logger *zap.Logger) *Sidebar {
	return &Sidebar{backend: backend, logger: logging.OrNop(logger)}
}

// Load fetches the history list. On failure the list is emptied and the error returned.
func (s *Sidebar) Load(ctx context.Context) error {
	items, err := s.backend.ListConversations(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		s.items = nil
		s.logger.Warn("load chat histories failed", zap.Error(err))
		return fmt.Errorf("load histories: %w", err)
	}
	s.items = items
	return nil
}

func (s *Sidebar) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Sidebar) SetQuery(q string) {
	s.mu.Lock()
	s.query = strings.TrimSpace(q)
	s.mu.Unlock()
}

func (s *Sidebar) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Visible returns the items matching the query on title or last message, case-insensitively.
func (s *Sidebar) Visible() []models.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked()
}

func (s *Sidebar) visibleLocked() []models.ConversationSummary {
	if s.query == "" {
		return append([]models.ConversationSummary(nil), s.items...)
	}
	q := strings.ToLower(s.query)
	out := make([]models.ConversationSummary, 0, len(s.items))
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Title), q) || strings.Contains(strings.ToLower(item.LastMessagePreview), q) {
			out = append(out, item)
		}
	}
	return out
}

// Counts returns the number of visible and total items.
func (s *Sidebar) Counts() (visible, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visibleLocked()), len(s.items)
}

func (s *Sidebar) Select(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

func (s *Sidebar) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Delete removes the conversation once the backend confirmed it.
func (s *Sidebar) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ConversationID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			break
		}
	}
	if s.selected == id {
		s.selected = ""
	}
	return nil
}

// Truncate shortens text to max runes, marking the cut with "...".
func Truncate(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}

// FormatTimestamp renders t relative to now, switching to a date after a week.
func FormatTimestamp(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 7*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	}
	return t.Local().Format("2 Jan 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
