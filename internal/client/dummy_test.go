package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aksara/internal/dummydata"
	"aksara/internal/models"
)

var _ Backend = (*Dummy)(nil)
var _ Backend = (*Gateway)(nil)

func TestDummyLogin(t *testing.T) {
	d := NewDummy(0)
	ctx := context.Background()

	resp, err := d.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.HasPrefix(resp.AccessToken, "dummy_token_1_") {
		t.Fatalf("unexpected token %q", resp.AccessToken)
	}
	if resp.User.Role != models.RoleAdmin {
		t.Fatalf("admin should carry the admin role: %+v", resp.User)
	}

	if _, err := d.Login(ctx, "user", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = d.Register(ctx, models.RegisterRequest{Username: "user", Email: "dup@example.com", Password: "password123"})
	var apiErr *APIError
	if errors.Is(err, ErrInvalidCredentials) || !errors.As(err, &apiErr) || apiErr.Message != "username already taken" {
		t.Fatalf("duplicate register: got %v", err)
	}
}

func TestDummyChatFlow(t *testing.T) {
	d := NewDummy(0)
	ctx := context.Background()
	if _, err := d.SendMessage(ctx, "", "hi", SendOptions{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("chat before login should fail, got %v", err)
	}
	if _, err := d.Login(ctx, "user", "user123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	seeded, err := d.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(seeded) != len(dummydata.Conversations()) {
		t.Fatalf("seeded conversations = %d", len(seeded))
	}

	reply, err := d.SendMessage(ctx, "", "Tell me about Go", SendOptions{Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.ConversationID == "" || reply.Output == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	list, _ := d.ListConversations(ctx)
	if len(list) != len(seeded)+1 || list[0].ConversationID != reply.ConversationID {
		t.Fatalf("new conversation should be listed first: %+v", list)
	}
	if list[0].Title != "Tell me about Go" {
		t.Fatalf("unexpected title %q", list[0].Title)
	}

	if _, err := d.SendMessage(ctx, reply.ConversationID, "more", SendOptions{}); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	detail, err := d.GetConversation(ctx, reply.ConversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Messages) != 4 || detail.Messages[0].Sender != models.SenderUser || detail.Messages[3].Sender != models.SenderAssistant {
		t.Fatalf("unexpected messages %+v", detail.Messages)
	}

	if err := d.DeleteConversation(ctx, reply.ConversationID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var apiErr *APIError
	if _, err := d.GetConversation(ctx, reply.ConversationID); !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("deleted conversation should be gone, got %v", err)
	}
}

func TestDummyAdminOperations(t *testing.T) {
	d := NewDummy(0)
	ctx := context.Background()
	if _, err := d.Login(ctx, "user", "user123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	var apiErr *APIError
	if _, err := d.ListUsers(ctx); !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("regular user must not list users, got %v", err)
	}

	admin, err := d.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	stats, err := d.Statistics(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 3 || stats.AdminUsers != 1 || stats.ActiveUsers != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	u, err := d.SetUserActive(ctx, "2", false)
	if err != nil || u.IsActive {
		t.Fatalf("deactivate: %+v %v", u, err)
	}
	if _, err := d.Login(ctx, "user", "user123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user should not log in, got %v", err)
	}
	if _, err := d.Login(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	u, err = d.SetUserRole(ctx, "3", models.RoleAdmin)
	if err != nil || u.Role != models.RoleAdmin {
		t.Fatalf("promote: %+v %v", u, err)
	}
	if err := d.DeleteUser(ctx, admin.User.ID); err == nil {
		t.Fatalf("deleting self should fail")
	}
	if err := d.DeleteUser(ctx, "3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, _ := d.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("users after delete = %d", len(users))
	}
}

func TestDummyLatencyHonoursContext(t *testing.T) {
	d := NewDummy(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Login(ctx, "admin", "admin123"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
