package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aksara/internal/logging"
	"aksara/internal/models"
)

const defaultTimeout = 60 * time.Second

// Gateway is the HTTP Backend. It attaches the stored bearer token to every
// call and ends the session when the server answers 401.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	store      Store
	logger     *zap.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

func NewGateway(baseURL string, store Store, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		logger:     logging.OrNop(logger),
	}
}

// OnUnauthorized registers the hook run after a 401 cleared the stored session.
func (g *Gateway) OnUnauthorized(fn func()) {
	g.mu.Lock()
	g.onUnauthorized = fn
	g.mu.Unlock()
}

type requestOptions struct {
	// anonymous calls carry no stored token and their 401s are not session expiry
	anonymous bool
	// login maps rejections to ErrInvalidCredentials
	login bool
	// token overrides the stored access token
	token string
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any, opts requestOptions) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := opts.token
	if token == "" && !opts.anonymous {
		token = g.store.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env models.Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		g.logger.Debug("api error", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", env.Message))
		switch {
		case opts.login && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound):
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
		case resp.StatusCode == http.StatusUnauthorized && !opts.anonymous:
			g.expire()
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func (g *Gateway) expire() {
	if err := g.store.Clear(); err != nil {
		g.logger.Warn("clear session failed", zap.Error(err))
	}
	g.mu.RLock()
	fn := g.onUnauthorized
	g.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (g *Gateway) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	err := g.do(ctx, http.MethodPost, "/api/users/login", models.LoginRequest{Username: username, Password: password}, &out, requestOptions{anonymous: true, login: true})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := g.do(ctx, http.MethodPost, "/api/users/register", req, &out, requestOptions{anonymous: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the stored refresh token for a new access token and stores it.
func (g *Gateway) Refresh(ctx context.Context) (string, error) {
	refresh := g.store.RefreshToken()
	if refresh == "" {
		return "", ErrUnauthorized
	}
	var out models.RefreshResponse
	if err := g.do(ctx, http.MethodPost, "/api/users/refresh-token", nil, &out, requestOptions{token: refresh}); err != nil {
		return "", err
	}
	if err := g.store.SaveToken(out.AccessToken); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (g *Gateway) Logout(ctx context.Context) error {
	var body any
	if refresh := g.store.RefreshToken(); refresh != "" {
		body = map[string]string{"refresh_token": refresh}
	}
	return g.do(ctx, http.MethodPost, "/api/users/logout", body, nil, requestOptions{})
}

func (g *Gateway) Profile(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := g.do(ctx, http.MethodGet, "/api/users/profile", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdate) (*models.User, error) {
	var out models.User
	if err := g.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(userID), req, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) ChangePassword(ctx context.Context, userID string, req models.PasswordUpdate) error {
	return g.do(ctx, http.MethodPut, "/api/users/update-password/"+url.PathEscape(userID), req, nil, requestOptions{})
}

func (g *Gateway) SendMessage(ctx context.Context, conversationID, input string, opts SendOptions) (*models.ChatResponse, error) {
	temperature := opts.Temperature
	maxTokens := opts.MaxTokens
	req := models.ChatRequest{
		Input:         input,
		ChatHistoryID: conversationID,
		Temperature:   &temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	var out models.ChatResponse
	if err := g.do(ctx, http.MethodPost, "/api/chat/message", req, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	if err := g.do(ctx, http.MethodGet, "/api/chat/histories", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) GetConversation(ctx context.Context, id string) (*models.ConversationDetail, error) {
	var out models.ConversationDetail
	if err := g.do(ctx, http.MethodGet, "/api/chat/histories/"+url.PathEscape(id), nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) DeleteConversation(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/api/chat/histories/"+url.PathEscape(id), nil, nil, requestOptions{})
}

func (g *Gateway) Statistics(ctx context.Context) (*models.Statistics, error) {
	var out models.Statistics
	if err := g.do(ctx, http.MethodGet, "/api/admin/statistics", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := g.do(ctx, http.MethodGet, "/api/admin/users", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) SetUserActive(ctx context.Context, id string, active bool) (*models.User, error) {
	var out models.User
	err := g.do(ctx, http.MethodPatch, "/api/admin/users/"+url.PathEscape(id)+"/toggle-active", models.ToggleActiveRequest{IsActive: &active}, &out, requestOptions{})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) SetUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	var out models.User
	err := g.do(ctx, http.MethodPatch, "/api/admin/users/"+url.PathEscape(id)+"/change-role", models.ChangeRoleRequest{Role: role}, &out, requestOptions{})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) DeleteUser(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/api/admin/users/"+url.PathEscape(id), nil, nil, requestOptions{})
}
