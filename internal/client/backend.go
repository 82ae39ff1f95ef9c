// Package client talks to the Aksara API, or to an in-memory stand-in in dummy mode.
package client

import (
	"context"
	"errors"
	"fmt"

	"aksara/internal/models"
)

var (
	// ErrInvalidCredentials marks a rejected login. Registration rejections
	// surface as *APIError carrying the server's reason.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized marks a request rejected because the session expired.
	ErrUnauthorized = errors.New("session expired, please log in again")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// SendOptions tune a chat reply.
type SendOptions struct {
	Temperature float64
	MaxTokens   int
}

// Backend is everything the UI holders need from the server.
type Backend interface {
	Login(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdate) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, req models.PasswordUpdate) error

	SendMessage(ctx context.Context, conversationID, input string, opts SendOptions) (*models.ChatResponse, error)
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, id string) (*models.ConversationDetail, error)
	DeleteConversation(ctx context.Context, id string) error

	Statistics(ctx context.Context) (*models.Statistics, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserActive(ctx context.Context, id string, active bool) (*models.User, error)
	SetUserRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}
