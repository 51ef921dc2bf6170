package tools

import (
	"context"
	"io"
	"net/http"
	"time"
)

// SearchFunc performs a web search and returns a formatted result string.
// The concrete search backend (provider, API key, rate limiting) is left
// to whatever constructs a WebSearchTool; this type only supplies the
// registry-facing contract and dispatches to whatever backend is wired in.
type SearchFunc func(ctx context.Context, query string) (string, error)

// WebSearchTool exposes a pluggable web search backend as a registry tool.
type WebSearchTool struct {
	search SearchFunc
}

func NewWebSearchTool(search SearchFunc) *WebSearchTool { return &WebSearchTool{search: search} }

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web for a query and return relevant results." }
func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search query"},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	if t.search == nil {
		return ErrorResult("web search is not configured")
	}
	result, err := t.search(ctx, query)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return &ToolResult{ForLLM: result}
}

// WebFetchTool retrieves a URL's text content over plain HTTP(S). Unlike
// search, fetch needs no external provider wiring, so it is implemented
// directly on net/http rather than via a pluggable backend.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch the text content of a URL." }
func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "description": "URL to fetch"},
		},
		"required": []string{"url"},
	}
}

const maxFetchBytes = 2 << 20 // 2 MB

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ErrorResult(err.Error())
	}
	if resp.StatusCode >= 400 {
		return ErrorResult("fetch failed with status " + resp.Status)
	}
	return &ToolResult{ForLLM: string(body)}
}
