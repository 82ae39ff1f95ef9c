package worker

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"aksara/internal/config"
	"aksara/internal/models"
	"aksara/internal/redis"
	"aksara/internal/service/ai"
)

func TestHistoryCacheDisabledIsNoop(t *testing.T) {
	cache := newHistoryCache(nil, nil)
	ctx := context.Background()
	cache.store(ctx, "u1", "c1", []*models.Message{{ID: 1}})
	if _, ok := cache.load(ctx, "u1", "c1"); ok {
		t.Fatalf("disabled cache should never hit")
	}
	cache.invalidate(ctx, "u1", "c1")
}

func TestHistoryCacheStoreLoadAndInvalidate(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()
	cache := newHistoryCache(client, nil)
	ctx := context.Background()

	history := []*models.Message{
		{ID: 1, ConversationID: "c1", Sender: models.SenderUser, Text: "hello"},
		{ID: 2, ConversationID: "c1", Sender: models.SenderAssistant, Text: "hi"},
	}
	cache.store(ctx, "u1", "c1", history)

	got, ok := cache.load(ctx, "u1", "c1")
	if !ok || len(got) != 2 || got[1].Text != "hi" {
		t.Fatalf("unexpected cached history: %+v ok=%v", got, ok)
	}
	if _, ok := cache.load(ctx, "u2", "c1"); ok {
		t.Fatalf("history must be scoped to its owner")
	}

	cache.invalidate(ctx, "u1", "c1")
	if _, ok := cache.load(ctx, "u1", "c1"); ok {
		t.Fatalf("expected history invalidated")
	}
}

func TestManagerUsesRedisHistory(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()
	store := newMemoryStore()
	manager := NewManager(store, ai.NewMockReplier("m"), DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, client, nil)
	defer manager.Close()
	ctx := context.Background()

	res, err := manager.Reply(ctx, ReplyRequest{UserID: "u1", Input: "first"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if _, err := manager.Reply(ctx, ReplyRequest{UserID: "u1", ConversationID: res.Conversation.ID, Input: "second"}); err != nil {
		t.Fatalf("second reply: %v", err)
	}
	if store.lastHistoryLen != 0 {
		t.Fatalf("history should come from redis, store was read for %d messages", store.lastHistoryLen)
	}
	cached, ok := manager.cache.load(ctx, "u1", res.Conversation.ID)
	if !ok || len(cached) != 4 {
		t.Fatalf("expected 4 cached messages, got %d ok=%v", len(cached), ok)
	}

	manager.Purge(ctx, "u1", res.Conversation.ID)
	if _, ok := manager.cache.load(ctx, "u1", res.Conversation.ID); ok {
		t.Fatalf("purge should drop cached history")
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed worker tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := redis.NewRedisClient(config.RedisConfig{Enabled: true, Host: host, Port: port, DB: db})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Raw().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return client
}
