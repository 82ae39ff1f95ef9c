package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	WebSearchRateLimit   = 5
	WebSearchRateWindow  = time.Minute
	WebSearchHTTPTimeout = 10 * time.Second
	maxFetchBodySize     = 512 * 1024
)

type toolSessionContextKey struct{}

type toolSession struct {
	UserID         string
	ConversationID string
}

// toolRateLimiter admits at most limit calls per key within any window.
type toolRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time // ascending
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, now: time.Now, calls: make(map[string][]time.Time)}
}

func (l *toolRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	recent := l.calls[key]
	first := sort.Search(len(recent), func(i int) bool { return recent[i].After(cutoff) })
	recent = recent[first:]
	if len(recent) >= l.limit {
		l.calls[key] = recent
		return false
	}
	l.calls[key] = append(recent, now)
	return true
}

// WithToolSession tags ctx with the conversation a tool call runs for.
func WithToolSession(ctx context.Context, userID, conversationID string) context.Context {
	if userID == "" || conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolSessionContextKey{}, toolSession{UserID: userID, ConversationID: conversationID})
}

func ToolSessionFromContext(ctx context.Context) (string, string, bool) {
	meta, ok := ctx.Value(toolSessionContextKey{}).(toolSession)
	if !ok {
		return "", "", false
	}
	return meta.UserID, meta.ConversationID, true
}

func limiterKey(ctx context.Context) string {
	userID, convID, ok := ToolSessionFromContext(ctx)
	if !ok {
		return "global"
	}
	return "user:" + userID + ":conversation:" + convID
}

var errUnsupportedScheme = errors.New("only http and https urls can be fetched")

// fetchURL returns up to maxFetchBodySize bytes of the page at target.
func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", target, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", errUnsupportedScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "aksara-web-search/1.0")

	client := w.httpClient
	if client == nil {
		client = &http.Client{Timeout: WebSearchHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("get %s: unexpected status %s", u.Host, resp.Status)
	}

	var page strings.Builder
	if _, err := io.Copy(&page, io.LimitReader(resp.Body, maxFetchBodySize)); err != nil {
		return "", fmt.Errorf("read %s: %w", u.Host, err)
	}
	return page.String(), nil
}

func looksLikeURL(input string) bool {
	if len(input) < len("http://") {
		return false
	}
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
