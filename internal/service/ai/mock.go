package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"aksara/internal/dummydata"
	"aksara/internal/models"
)

// MockReplier answers with canned replies. It backs dummy mode and tests.
type MockReplier struct {
	model string

	mu    sync.Mutex
	calls int
	err   error
	reply string
}

func NewMockReplier(modelName string) *MockReplier {
	if modelName == "" {
		modelName = "mock"
	}
	return &MockReplier{model: modelName}
}

func (m *MockReplier) Model() string {
	return m.model
}

// FailWith makes subsequent replies return err (nil restores normal behaviour).
func (m *MockReplier) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// ReplyWith fixes the reply text; an empty string restores canned replies.
func (m *MockReplier) ReplyWith(text string) {
	m.mu.Lock()
	m.reply = text
	m.mu.Unlock()
}

// Calls reports how many replies were requested.
func (m *MockReplier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Reply rotates through the canned replies by conversation length.
func (m *MockReplier) Reply(ctx context.Context, history []*models.Message, input string, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(input) == "" {
		return "", errors.New("input cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if m.reply != "" {
		return m.reply, nil
	}
	replies := dummydata.Replies(input)
	return replies[(len(history)/2)%len(replies)], nil
}
