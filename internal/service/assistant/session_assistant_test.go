package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aksara/internal/models"
)

func TestConversationTitle(t *testing.T) {
	if got := ConversationTitle("  hello  "); got != "hello" {
		t.Fatalf("short title mismatch: %q", got)
	}
	long := strings.Repeat("a", 60)
	if got := ConversationTitle(long); got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("long title mismatch: %q", got)
	}
}

func TestConversationLifecycle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	userID := insertTestUser(t, svc, "alice")
	otherID := insertTestUser(t, svc, "mallory")

	conv, err := svc.CreateConversation(ctx, userID, "", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.Title != NewConversationTitle {
		t.Fatalf("expected default title, got %q", conv.Title)
	}

	stored, err := svc.AppendExchange(ctx, userID, Exchange{
		ConversationID: conv.ID,
		Input:          "What is Aksara?",
		Output:         "A chat assistant.",
		Title:          ConversationTitle("What is Aksara?"),
	})
	if err != nil {
		t.Fatalf("append exchange: %v", err)
	}
	if len(stored) != 2 || stored[0].Sender != models.SenderUser || stored[1].Sender != models.SenderAssistant {
		t.Fatalf("unexpected stored messages: %+v", stored)
	}

	time.Sleep(5 * time.Millisecond)
	second, err := svc.CreateConversation(ctx, userID, "", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("create second conversation: %v", err)
	}

	list, err := svc.ListConversations(ctx, userID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ConversationID != second.ID {
		t.Fatalf("expected most recent conversation first")
	}
	first := list[1]
	if first.Title != "What is Aksara?" || first.TotalMessages != 2 {
		t.Fatalf("unexpected summary: %+v", first)
	}
	if first.LastMessagePreview != "A chat assistant." || first.LastSender != models.SenderAssistant {
		t.Fatalf("unexpected last message: %+v", first)
	}

	detail, err := svc.GetConversationDetail(ctx, userID, conv.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Messages) != 2 || detail.Messages[0].Text != "What is Aksara?" {
		t.Fatalf("unexpected detail messages: %+v", detail.Messages)
	}

	if _, err := svc.GetConversationDetail(ctx, otherID, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("other user must not read conversation, got %v", err)
	}
	if err := svc.DeleteConversation(ctx, otherID, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("other user must not delete conversation, got %v", err)
	}
	if err := svc.DeleteConversation(ctx, userID, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetConversation(ctx, userID, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("deleted conversation still visible: %v", err)
	}
	list, err = svc.ListConversations(ctx, userID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation after delete, got %d", len(list))
	}
}

func TestAppendExchangeRejectsEmptyInput(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, svc, "bob")
	conv, err := svc.CreateConversation(context.Background(), userID, "", "m")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := svc.AppendExchange(context.Background(), userID, Exchange{ConversationID: conv.ID, Input: "   "}); err == nil {
		t.Fatalf("expected error for blank input")
	}
}
