package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"aksara/internal/logging"
)

const webSearchToolName = "web_search"

var (
	errEmptyQuery     = errors.New("query must not be empty")
	errSearchLimited  = errors.New("web search rate limit exceeded, please retry in a minute")
	errNoSearchResult = errors.New("no search provider succeeded")
)

// searchProvider is one backend of the web_search tool, tried in order.
type searchProvider struct {
	name string
	tool tool.InvokableTool
}

type webSearchTool struct {
	providers  []searchProvider
	httpClient *http.Client
	limiter    *toolRateLimiter
	logger     *zap.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

// agentTools returns the tools handed to the ReAct agent. It is empty when
// no search provider could be built.
func agentTools(ctx context.Context, logger *zap.Logger) []tool.BaseTool {
	logger = logging.OrNop(logger)
	var providers []searchProvider
	if t := newGoogleSearch(ctx, logger); t != nil {
		providers = append(providers, searchProvider{name: "google", tool: t})
	}
	if t := newDuckDuckGoSearch(ctx, logger); t != nil {
		providers = append(providers, searchProvider{name: "duckduckgo", tool: t})
	}
	if len(providers) == 0 {
		logger.Warn("web search disabled: no search provider available")
		return nil
	}
	ws := &webSearchTool{
		providers:  providers,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
		logger:     logger,
	}
	return []tool.BaseTool{ws.invokable()}
}

func (w *webSearchTool) invokable() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: webSearchToolName,
		Desc: "Search the web for up-to-date information. Given a URL, returns the page text instead.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Search keywords or a URL",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, w.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Query) == "" {
		return "", errEmptyQuery
	}
	query := strings.TrimSpace(params.Query)
	if w.limiter != nil && !w.limiter.Allow(limiterKey(ctx)) {
		return "", errSearchLimited
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		w.logger.Warn("fetch url failed, falling back to search", zap.String("url", query), zap.Error(err))
	}

	payload, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("encode search query: %w", err)
	}
	for _, p := range w.providers {
		result, err := p.tool.InvokableRun(ctx, string(payload))
		if err == nil {
			return result, nil
		}
		w.logger.Warn("search provider failed", zap.String("provider", p.name), zap.Error(err))
	}
	return "", errNoSearchResult
}

func newDuckDuckGoSearch(ctx context.Context, logger *zap.Logger) tool.InvokableTool {
	t, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo text search",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		logger.Warn("duckduckgo search unavailable", zap.Error(err))
		return nil
	}
	return t
}

// newGoogleSearch needs GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID.
func newGoogleSearch(ctx context.Context, logger *zap.Logger) tool.InvokableTool {
	apiKey, engineID := os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		logger.Info("google search unavailable: GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID not set")
		return nil
	}
	t, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google custom search",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "id",
		Num:            5,
	})
	if err != nil {
		logger.Warn("google search unavailable", zap.Error(err))
		return nil
	}
	return t
}
