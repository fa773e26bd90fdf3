// Package gemini implements ports.LLM against the Google Gemini
// streamGenerateContent SSE endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/relaytone/xiaozhi-engine/pkg/core"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Option func(*Provider)

func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      "gemini-2.0-flash",
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Stream(ctx context.Context, systemPrompt string, history []types.Message, tools []types.Tool) (ports.LLMStream, error) {
	body, err := buildRequest(systemPrompt, history, tools)
	if err != nil {
		return nil, core.NewConfigurationError("", "encoding gemini request", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewProviderError("", "gemini", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("", "gemini", "request failed", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, core.NewProviderError("", apiErr.Error.Status, apiErr.Error.Message, fmt.Errorf("gemini: http %d", resp.StatusCode))
	}

	return newStream(resp.Body), nil
}
