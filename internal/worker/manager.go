package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"aksara/internal/logging"
	"aksara/internal/models"
	"aksara/internal/redis"
	"aksara/internal/service/ai"
	"aksara/internal/service/assistant"
)

// ErrModelFailed wraps any error returned by the language model.
var ErrModelFailed = errors.New("model request failed")

// ConversationStore is the persistence the manager needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title, model string) (*models.Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error)
	AppendExchange(ctx context.Context, userID string, ex assistant.Exchange) ([]*models.Message, error)
}

type DispatcherConfig struct {
	MinWorkers   int
	MaxWorkers   int
	QueueSize    int
	IdleTimeout  time.Duration
	ReplyTimeout time.Duration
}

type ReplyRequest struct {
	UserID         string
	ConversationID string
	Input          string
	Temperature    float32
	MaxTokens      int
}

type ReplyResult struct {
	Conversation     *models.Conversation
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Created          bool
}

// Manager runs chat replies on the worker pool and keeps the history cache in step with the database.
type Manager struct {
	store        ConversationStore
	replier      ai.Replier
	cache        *historyCache
	logger       *zap.Logger
	dispatcher   *Dispatcher
	replyTimeout time.Duration
}

func NewManager(store ConversationStore, replier ai.Replier, cfg DispatcherConfig, cache *redis.Client, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger)
	m := &Manager{
		store:        store,
		replier:      replier,
		cache:        newHistoryCache(cache, logger),
		logger:       logger,
		replyTimeout: cfg.ReplyTimeout,
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.IdleTimeout, logger)
	return m
}

// Reply queues one chat turn and waits for its result.
func (m *Manager) Reply(ctx context.Context, req ReplyRequest) (*ReplyResult, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, errors.New("input cannot be empty")
	}
	if req.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	resultCh := make(chan replyResult, 1)
	job := Job{
		Type:   Reply,
		UserID: req.UserID,
		reply:  &replyTask{ctx: ctx, req: req, resultCh: resultCh},
	}
	if err := m.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.result, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.dispatcher.done:
		return nil, ErrDispatcherClosed
	}
}

func (m *Manager) handleReply(task *replyTask) (*ReplyResult, error) {
	req := task.req
	ctx := task.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.replyTimeout)
		defer cancel()
	}

	var (
		conv    *models.Conversation
		history []*models.Message
		err     error
	)
	if req.ConversationID != "" {
		conv, err = m.store.GetConversation(ctx, req.UserID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		history, err = m.loadHistory(ctx, req.UserID, conv.ID)
		if err != nil {
			return nil, err
		}
		ctx = ai.WithToolSession(ctx, req.UserID, conv.ID)
	}

	output, err := m.replier.Reply(ctx, history, req.Input, ai.Options{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		m.logger.Warn("model reply failed",
			zap.String("user_id", req.UserID),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrModelFailed, err)
	}
	if strings.TrimSpace(output) == "" {
		output = ai.FallbackReply
	}

	// a new conversation is only stored once the model has answered
	created := false
	title := ""
	if conv == nil {
		conv, err = m.store.CreateConversation(ctx, req.UserID, assistant.ConversationTitle(req.Input), m.replier.Model())
		if err != nil {
			return nil, err
		}
		created = true
	} else if len(history) == 0 {
		title = assistant.ConversationTitle(req.Input)
	}

	stored, err := m.store.AppendExchange(ctx, req.UserID, assistant.Exchange{
		ConversationID: conv.ID,
		Input:          req.Input,
		Output:         output,
		Title:          title,
	})
	if err != nil {
		return nil, err
	}
	if title != "" {
		conv.Title = title
	}
	m.cache.store(ctx, req.UserID, conv.ID, append(history, stored...))

	m.logger.Debug("reply stored",
		zap.String("user_id", req.UserID),
		zap.String("conversation_id", conv.ID),
		zap.Bool("created", created))
	return &ReplyResult{
		Conversation:     conv,
		UserMessage:      stored[0],
		AssistantMessage: stored[1],
		Created:          created,
	}, nil
}

func (m *Manager) loadHistory(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	if history, ok := m.cache.load(ctx, userID, conversationID); ok {
		return history, nil
	}
	history, err := m.store.ListMessages(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	m.cache.store(ctx, userID, conversationID, history)
	return history, nil
}

// Purge drops cached state of a conversation, e.g. after it is deleted.
func (m *Manager) Purge(ctx context.Context, userID, conversationID string) {
	m.cache.invalidate(ctx, userID, conversationID)
}

// CancelUser drops the queued replies of a user who was deactivated or removed.
func (m *Manager) CancelUser(userID string) {
	m.dispatcher.CancelUser(userID)
}

func (m *Manager) Close() {
	m.dispatcher.Close()
}
