// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

const (
	defaultParseTimeout = 300 * time.Second
	defaultEngine       = "marker"
)

// HTTPParser uploads PDFs to the parsing service as multipart form data
// with a "file" part and an "engine" field.
type HTTPParser struct {
	url       string
	engine    string
	userAgent string
	client    *http.Client
}

// NewHTTPParser creates a parser client from cfg.
func NewHTTPParser(cfg types.ParserConfig) *HTTPParser {
	engine := cfg.Engine
	if engine == "" {
		engine = defaultEngine
	}
	return &HTTPParser{
		url:       cfg.URL,
		engine:    engine,
		userAgent: cfg.UserAgent,
		client:    httputil.NewClient(cfg.Timeout, defaultParseTimeout),
	}
}

// parseResponse is the parsing service's JSON body.
type parseResponse struct {
	Success  bool                 `json:"success"`
	Markdown string               `json:"markdown"`
	Metadata types.ParserMetadata `json:"metadata"`
	Error    string               `json:"error"`
}

// Parse uploads the PDF at pdfPath and returns its Markdown.
func (p *HTTPParser) Parse(ctx context.Context, pdfPath string) (*ParseResult, error) {
	body, contentType, err := p.buildForm(pdfPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrParseService, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseService, err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseService, err)
	}

	var pr parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrParseService, err)
	}
	if !pr.Success {
		msg := pr.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return nil, fmt.Errorf("%w: %s", ErrParseService, msg)
	}

	return &ParseResult{
		Markdown: pr.Markdown,
		Engine:   p.engine,
		Metadata: pr.Metadata,
	}, nil
}

func (p *HTTPParser) buildForm(pdfPath string) (io.Reader, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copying PDF into form: %w", err)
	}
	if err := mw.WriteField("engine", p.engine); err != nil {
		return nil, "", fmt.Errorf("writing engine field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
