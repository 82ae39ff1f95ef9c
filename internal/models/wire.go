package models

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	ErrorCode int `json:"error_code"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type ProfileUpdate struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email" binding:"required"`
}

type PasswordUpdate struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChatRequest asks for an assistant reply. An empty ChatHistoryID starts a new conversation.
type ChatRequest struct {
	Input         string   `json:"input" binding:"required"`
	ChatHistoryID string   `json:"chat_history_id,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	Timestamp      time.Time `json:"timestamp"`
}

type ToggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type ChangeRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

// AdminUserRequest creates or updates an account from the admin view.
type AdminUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
	IsActive    *bool  `json:"is_active"`
}
