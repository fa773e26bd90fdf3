// Package webfetch implements the web_fetch user-level tool: fetches a URL
// and converts its HTML body to markdown before it reaches DialogueService,
// so the LLM summarizes readable text instead of raw markup.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

const maxResultChars = 8000

// Tool fetches a URL and returns its content as markdown. It is a
// user-level tool: Execute receives only the declared arguments, no
// ToolContext.
type Tool struct {
	client *http.Client
}

// New builds a Tool with a bounded HTTP client.
func New() *Tool {
	return &Tool{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *Tool) Name() string { return "web_fetch" }

func (t *Tool) SystemCtl() bool { return false }

func (t *Tool) Definition() types.Tool {
	return types.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The URL to fetch"},
			},
			"required": []string{"url"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, toolCtx *ports.ToolContext, args map[string]any) (types.ActionResponse, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return types.ActionResponse{Action: types.ActionError, Text: "url is required"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.ActionResponse{}, fmt.Errorf("webfetch: building request: %w", err)
	}
	req.Header.Set("User-Agent", "xiaozhi-engine/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return types.ActionResponse{Action: types.ActionError, Text: "could not reach that page"}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.ActionResponse{Action: types.ActionError, Text: fmt.Sprintf("page returned status %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return types.ActionResponse{}, fmt.Errorf("webfetch: reading body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return types.ActionResponse{Action: types.ActionError, Text: "could not read that page"}, nil
	}
	if len(md) > maxResultChars {
		md = md[:maxResultChars] + "\n\n[content truncated]"
	}

	return types.ActionResponse{Action: types.ActionRespond, Text: md}, nil
}
