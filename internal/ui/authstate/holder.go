// Package authstate holds the signed-in user and gates access to the views.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/logging"
	"aksara/internal/models"
	"aksara/internal/ui/forms"
)

const (
	RouteLogin    = "/login"
	RouteRegister = "/register"
	RouteChat     = "/chat"
	RouteAdmin    = "/admin"
	RouteProfile  = "/profile"
)

var (
	ErrNotAuthenticated = errors.New("not signed in")
	ErrForbidden        = errors.New("access denied")
)

// Holder is the single source of truth for who is signed in.
// All methods are safe for concurrent use.
type Holder struct {
	backend client.Backend
	store   client.Store
	logger  *zap.Logger

	mu   sync.RWMutex
	user *models.User
}

// New restores the previous session when the store holds both a token and a user.
func New(backend client.Backend, store client.Store, logger *zap.Logger) *Holder {
	h := &Holder{backend: backend, store: store, logger: logging.OrNop(logger)}
	if store.Token() != "" {
		h.user = store.User()
	}
	return h
}

func (h *Holder) User() *models.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return nil
	}
	u := *h.user
	return &u
}

func (h *Holder) IsAuthenticated() bool {
	return h.User() != nil
}

func (h *Holder) Login(ctx context.Context, username, password string) error {
	form := forms.LoginForm{Username: strings.TrimSpace(username), Password: password}
	if err := forms.Validate(form); err != nil {
		return err
	}
	resp, err := h.backend.Login(ctx, form.Username, form.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return h.signIn(resp)
}

// Register creates the account; the backend signs the new user in directly.
func (h *Holder) Register(ctx context.Context, form forms.RegisterForm) error {
	form.DisplayName = strings.TrimSpace(form.DisplayName)
	form.Email = strings.TrimSpace(form.Email)
	form.Username = strings.TrimSpace(form.Username)
	if err := forms.Validate(form); err != nil {
		return err
	}
	resp, err := h.backend.Register(ctx, models.RegisterRequest{
		Username:    form.Username,
		DisplayName: form.DisplayName,
		Email:       form.Email,
		Password:    form.Password,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return h.signIn(resp)
}

func (h *Holder) signIn(resp *models.AuthResponse) error {
	user := resp.User
	if err := h.store.Save(resp.AccessToken, resp.RefreshToken, &user); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	h.mu.Lock()
	h.user = &user
	h.mu.Unlock()
	h.logger.Info("signed in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return nil
}

// Logout tells the backend when it can and always ends the local session.
func (h *Holder) Logout(ctx context.Context) {
	if h.store.Token() != "" {
		if err := h.backend.Logout(ctx); err != nil {
			h.logger.Warn("logout request failed", zap.Error(err))
		}
	}
	h.clear()
}

// Expire drops the session after the backend rejected the token.
func (h *Holder) Expire() {
	h.clear()
	h.logger.Info("session expired")
}

func (h *Holder) clear() {
	if err := h.store.Clear(); err != nil {
		h.logger.Warn("clear session failed", zap.Error(err))
	}
	h.mu.Lock()
	h.user = nil
	h.mu.Unlock()
}

// UpdateUser replaces the signed-in user, typically after a profile edit.
func (h *Holder) UpdateUser(user *models.User) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	u := *user
	h.mu.Lock()
	if h.user == nil {
		h.mu.Unlock()
		return ErrNotAuthenticated
	}
	if u.Role == "" {
		u.Role = h.user.Role
	}
	h.user = &u
	h.mu.Unlock()
	return h.store.SaveUser(&u)
}

// Refresh reloads the signed-in user from the backend.
func (h *Holder) Refresh(ctx context.Context) error {
	if !h.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	user, err := h.backend.Profile(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			h.Expire()
		}
		return fmt.Errorf("load profile: %w", err)
	}
	return h.UpdateUser(user)
}

// Guard checks access to a view. An empty role admits any signed-in user.
func (h *Holder) Guard(required models.Role) error {
	user := h.User()
	if user == nil {
		return ErrNotAuthenticated
	}
	if required != "" && user.Role != required {
		return ErrForbidden
	}
	return nil
}

// HomeRoute is where the user lands after sign-in or a denied route.
func (h *Holder) HomeRoute() string {
	user := h.User()
	switch {
	case user == nil:
		return RouteLogin
	case user.IsAdmin():
		return RouteAdmin
	default:
		return RouteChat
	}
}
