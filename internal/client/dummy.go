package client

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aksara/internal/dummydata"
	"aksara/internal/models"
	"aksara/internal/service/assistant"
)

// DefaultDummyLatency is the simulated round trip of a dummy call.
const DefaultDummyLatency = 800 * time.Millisecond

const dummyModel = "aksara-dummy"

// Dummy is an in-memory Backend serving fixtures, used when the API is unavailable.
type Dummy struct {
	latency time.Duration
	now     func() time.Time

	mu            sync.Mutex
	accounts      map[string]*dummydata.Account
	order         []string
	current       string
	conversations map[string]*models.ConversationDetail
	nextMessageID int64
	replies       int
}

func NewDummy(latency time.Duration) *Dummy {
	d := &Dummy{
		latency:       latency,
		now:           time.Now,
		accounts:      make(map[string]*dummydata.Account),
		conversations: make(map[string]*models.ConversationDetail),
	}
	for _, acc := range dummydata.Accounts() {
		d.accounts[acc.User.ID] = &acc
		d.order = append(d.order, acc.User.ID)
	}
	for _, conv := range dummydata.Conversations() {
		d.conversations[conv.ConversationID] = &conv
		for _, m := range conv.Messages {
			if m.ID > d.nextMessageID {
				d.nextMessageID = m.ID
			}
		}
	}
	return d
}

func (d *Dummy) wait(ctx context.Context) error {
	if d.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dummy) token(id string) string {
	return fmt.Sprintf("dummy_token_%s_%d", id, d.now().Unix())
}

func (d *Dummy) authResponse(acc *dummydata.Account) *models.AuthResponse {
	return &models.AuthResponse{
		AccessToken:  d.token(acc.User.ID),
		RefreshToken: d.token(acc.User.ID),
		TokenType:    "bearer",
		User:         acc.User,
	}
}

func (d *Dummy) findLocked(username string) *dummydata.Account {
	for _, id := range d.order {
		if acc := d.accounts[id]; strings.EqualFold(acc.User.Username, username) {
			return acc
		}
	}
	return nil
}

func (d *Dummy) currentLocked() (*dummydata.Account, error) {
	acc, ok := d.accounts[d.current]
	if !ok || !acc.User.IsActive {
		return nil, ErrUnauthorized
	}
	return acc, nil
}

func (d *Dummy) adminLocked() error {
	acc, err := d.currentLocked()
	if err != nil {
		return err
	}
	if acc.User.Role != models.RoleAdmin {
		return &APIError{Status: http.StatusForbidden, Message: "admin role required"}
	}
	return nil
}

func (d *Dummy) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acc := d.findLocked(username)
	if acc == nil || acc.Password != password {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, &APIError{Status: http.StatusBadRequest, Message: "invalid username or password"})
	}
	if !acc.User.IsActive {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, &APIError{Status: http.StatusBadRequest, Message: "account is inactive"})
	}
	d.current = acc.User.ID
	return d.authResponse(acc), nil
}

func (d *Dummy) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findLocked(req.Username) != nil {
		return nil, &APIError{Status: http.StatusBadRequest, Message: "username already taken"}
	}
	now := d.now()
	acc := &dummydata.Account{
		Password: req.Password,
		User: models.User{
			ID:          uuid.NewString(),
			Username:    req.Username,
			DisplayName: req.DisplayName,
			Email:       req.Email,
			Role:        models.RoleUser,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	d.accounts[acc.User.ID] = acc
	d.order = append(d.order, acc.User.ID)
	d.current = acc.User.ID
	return d.authResponse(acc), nil
}

func (d *Dummy) Logout(ctx context.Context) error {
	d.mu.Lock()
	d.current = ""
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Profile(ctx context.Context) (*models.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, err := d.currentLocked()
	if err != nil {
		return nil, err
	}
	u := acc.User
	return &u, nil
}

func (d *Dummy) UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdate) (*models.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, err := d.currentLocked()
	if err != nil {
		return nil, err
	}
	if acc.User.ID != userID {
		return nil, &APIError{Status: http.StatusForbidden, Message: "cannot modify another user"}
	}
	if other := d.findLocked(req.Username); other != nil && other.User.ID != userID {
		return nil, &APIError{Status: http.StatusBadRequest, Message: "username already taken"}
	}
	acc.User.Username = req.Username
	acc.User.DisplayName = req.DisplayName
	acc.User.Email = req.Email
	acc.User.UpdatedAt = d.now()
	u := acc.User
	return &u, nil
}

func (d *Dummy) ChangePassword(ctx context.Context, userID string, req models.PasswordUpdate) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, err := d.currentLocked()
	if err != nil {
		return err
	}
	if acc.User.ID != userID {
		return &APIError{Status: http.StatusForbidden, Message: "cannot modify another user"}
	}
	if acc.Password != req.OldPassword {
		return &APIError{Status: http.StatusBadRequest, Message: "old password is incorrect"}
	}
	acc.Password = req.NewPassword
	return nil
}

func (d *Dummy) SendMessage(ctx context.Context, conversationID, input string, opts SendOptions) (*models.ChatResponse, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.currentLocked(); err != nil {
		return nil, err
	}
	now := d.now()
	conv, ok := d.conversations[conversationID]
	if conversationID != "" && !ok {
		return nil, &APIError{Status: http.StatusNotFound, Message: "conversation not found"}
	}
	if !ok {
		conv = &models.ConversationDetail{ConversationSummary: models.ConversationSummary{
			ConversationID: uuid.NewString(),
			Title:          assistant.ConversationTitle(input),
			Model:          dummyModel,
			Language:       "id",
			IsActive:       true,
			CreatedDate:    now,
		}}
		d.conversations[conv.ConversationID] = conv
	}

	replies := dummydata.Replies(input)
	output := replies[d.replies%len(replies)]
	d.replies++

	d.nextMessageID++
	conv.Messages = append(conv.Messages, models.Message{ID: d.nextMessageID, ConversationID: conv.ConversationID, Sender: models.SenderUser, Text: input, CreatedAt: now})
	d.nextMessageID++
	conv.Messages = append(conv.Messages, models.Message{ID: d.nextMessageID, ConversationID: conv.ConversationID, Sender: models.SenderAssistant, Text: output, CreatedAt: now})
	conv.LastMessagePreview = output
	conv.LastSender = models.SenderAssistant
	conv.LastTimestamp = now
	conv.TotalMessages = len(conv.Messages)

	return &models.ChatResponse{
		ConversationID: conv.ConversationID,
		Model:          dummyModel,
		Input:          input,
		Output:         output,
		Timestamp:      now,
	}, nil
}

func (d *Dummy) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.currentLocked(); err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(d.conversations))
	for _, conv := range d.conversations {
		out = append(out, conv.ConversationSummary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out, nil
}

func (d *Dummy) GetConversation(ctx context.Context, id string) (*models.ConversationDetail, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.currentLocked(); err != nil {
		return nil, err
	}
	conv, ok := d.conversations[id]
	if !ok {
		return nil, &APIError{Status: http.StatusNotFound, Message: "conversation not found"}
	}
	out := *conv
	out.Messages = append([]models.Message(nil), conv.Messages...)
	return &out, nil
}

func (d *Dummy) DeleteConversation(ctx context.Context, id string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.currentLocked(); err != nil {
		return err
	}
	if _, ok := d.conversations[id]; !ok {
		return &APIError{Status: http.StatusNotFound, Message: "conversation not found"}
	}
	delete(d.conversations, id)
	return nil
}

func (d *Dummy) Statistics(ctx context.Context) (*models.Statistics, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.adminLocked(); err != nil {
		return nil, err
	}
	var stats models.Statistics
	for _, acc := range d.accounts {
		stats.TotalUsers++
		if acc.User.Role == models.RoleAdmin {
			stats.AdminUsers++
		} else {
			stats.RegularUsers++
		}
		if acc.User.IsActive {
			stats.ActiveUsers++
		}
	}
	return &stats, nil
}

func (d *Dummy) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.adminLocked(); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.accounts[id].User)
	}
	return out, nil
}

func (d *Dummy) SetUserActive(ctx context.Context, id string, active bool) (*models.User, error) {
	return d.patchUser(ctx, id, func(u *models.User) { u.IsActive = active })
}

func (d *Dummy) SetUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, &APIError{Status: http.StatusBadRequest, Message: "role must be ADMIN or USER"}
	}
	return d.patchUser(ctx, id, func(u *models.User) { u.Role = role })
}

func (d *Dummy) patchUser(ctx context.Context, id string, apply func(*models.User)) (*models.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.adminLocked(); err != nil {
		return nil, err
	}
	acc, ok := d.accounts[id]
	if !ok {
		return nil, &APIError{Status: http.StatusNotFound, Message: "user not found"}
	}
	apply(&acc.User)
	acc.User.UpdatedAt = d.now()
	u := acc.User
	return &u, nil
}

func (d *Dummy) DeleteUser(ctx context.Context, id string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.adminLocked(); err != nil {
		return err
	}
	if id == d.current {
		return &APIError{Status: http.StatusBadRequest, Message: "cannot delete your own account"}
	}
	if _, ok := d.accounts[id]; !ok {
		return &APIError{Status: http.StatusNotFound, Message: "user not found"}
	}
	delete(d.accounts, id)
	for i, existing := range d.order {
		if existing == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}
