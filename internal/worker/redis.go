package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aksara/internal/models"
	"aksara/internal/redis"
)

const redisHistoryTTL = 30 * time.Minute

// historyCache keeps recent conversation history in redis. A disabled client turns every call into a no-op.
type historyCache struct {
	client *redis.Client
	logger *zap.Logger
}

func newHistoryCache(client *redis.Client, logger *zap.Logger) *historyCache {
	return &historyCache{client: client, logger: logger}
}

func historyKey(userID, conversationID string) string {
	return fmt.Sprintf("worker:history:%s:%s", userID, conversationID)
}

func (r *historyCache) enabled() bool {
	return r != nil && r.client.Enabled()
}

func (r *historyCache) store(ctx context.Context, userID, conversationID string, history []*models.Message) {
	if !r.enabled() || conversationID == "" {
		return
	}
	if history == nil {
		history = []*models.Message{}
	}
	if err := r.client.SetJSON(ctx, historyKey(userID, conversationID), history, redisHistoryTTL); err != nil {
		r.logger.Warn("cache history failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func (r *historyCache) load(ctx context.Context, userID, conversationID string) ([]*models.Message, bool) {
	if !r.enabled() || conversationID == "" {
		return nil, false
	}
	var history []*models.Message
	if err := r.client.GetJSON(ctx, historyKey(userID, conversationID), &history); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			r.logger.Warn("load cached history failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return nil, false
	}
	return history, true
}

func (r *historyCache) invalidate(ctx context.Context, userID, conversationID string) {
	if !r.enabled() || conversationID == "" {
		return
	}
	if err := r.client.Del(ctx, historyKey(userID, conversationID)); err != nil {
		r.logger.Warn("invalidate cached history failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
