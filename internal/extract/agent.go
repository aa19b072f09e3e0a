// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

const defaultAgentTimeout = 120 * time.Second

// AgentClient calls the metadata agent over HTTP. Each call is a single
// attempt.
type AgentClient struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewAgentClient creates an agent client from cfg.
func NewAgentClient(cfg types.ExtractionConfig) *AgentClient {
	return &AgentClient{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		client:    httputil.NewClient(cfg.Timeout, defaultAgentTimeout),
	}
}

type agentRequest struct {
	MarkdownContent string `json:"markdown_content"`
}

type agentResponse struct {
	Success   bool   `json:"success"`
	RawOutput string `json:"raw_output"`
	Error     string `json:"error"`
}

// ExtractMetadata sends markdown to the agent and parses its raw output.
func (a *AgentClient) ExtractMetadata(ctx context.Context, markdown string) (types.PaperMetadata, error) {
	body, err := json.Marshal(agentRequest{MarkdownContent: markdown})
	if err != nil {
		return types.PaperMetadata{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return types.PaperMetadata{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return types.PaperMetadata{}, fmt.Errorf("calling metadata agent: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp); err != nil {
		return types.PaperMetadata{}, err
	}

	var ar agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return types.PaperMetadata{}, fmt.Errorf("decoding agent response: %w", err)
	}
	if !ar.Success {
		if ar.Error != "" {
			return types.PaperMetadata{}, fmt.Errorf("agent reported failure: %s", ar.Error)
		}
		return types.PaperMetadata{}, errors.New("agent reported failure")
	}

	return ParseMetadata(ar.RawOutput)
}
