// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package persist submits finished papers to the storage API. The server
// side owns deduplication: a new record with the same origin MD5 as an
// active one deactivates it. This client never retries.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

// ErrPersistence marks every failed save.
var ErrPersistence = errors.New("persistence failed")

const defaultTimeout = 120 * time.Second

// Multipart field names understood by the storage API. The parser metadata
// field carries types.ParserMetadata as JSON.
const (
	FieldOriginFile     = "origin_file"
	FieldMarkdownFile   = "markdown_file"
	FieldLegacyPDF      = "pdf_file"
	FieldDomain         = "primary_domain"
	FieldOriginLink     = "origin_filelink"
	FieldParserMetadata = "parser_metadata"
)

// SaveRequest is everything needed to create one paper record.
type SaveRequest struct {
	OriginPath   string
	MarkdownPath string
	Metadata     types.PaperMetadata
	Domain       types.DomainTag
	SourceURL    string
	Parser       types.ParserMetadata
}

// Client talks to the storage API.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// New creates a storage client from cfg.
func New(cfg types.StorageConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		userAgent: cfg.UserAgent,
		client:    httputil.NewClient(cfg.Timeout, defaultTimeout),
	}
}

// Save creates a paper record and returns the record the server stored.
func (c *Client) Save(ctx context.Context, sr SaveRequest) (*types.PaperRecord, error) {
	body, contentType, err := buildForm(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/papers", body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrPersistence, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var rec types.PaperRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decoding record: %w", ErrPersistence, err)
	}
	return &rec, nil
}

// MetadataFields flattens metadata into form fields. Empty values are
// omitted so the server keeps its defaults.
func MetadataFields(m types.PaperMetadata) map[string]string {
	fields := map[string]string{
		"title":    m.Title,
		"authors":  m.Authors,
		"abstract": m.Abstract,
		"doi":      m.DOI,
		"journal":  m.Journal,
		"keywords": m.Keywords,
		"url":      m.URL,
		"arxiv_id": m.ArxivID,
	}
	if m.Year != 0 {
		fields["year"] = strconv.Itoa(m.Year)
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}

func buildForm(sr SaveRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := MetadataFields(sr.Metadata)
	fields[FieldDomain] = string(sr.Domain)
	if sr.SourceURL != "" {
		fields[FieldOriginLink] = sr.SourceURL
	}
	if !sr.Parser.IsZero() {
		b, err := json.Marshal(sr.Parser)
		if err != nil {
			return nil, "", fmt.Errorf("encoding parser metadata: %w", err)
		}
		fields[FieldParserMetadata] = string(b)
	}
	for _, k := range sortedKeys(fields) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	if err := attachFile(mw, FieldOriginFile, sr.OriginPath); err != nil {
		return nil, "", err
	}
	// For Markdown sources both parts carry the same file.
	if err := attachFile(mw, FieldMarkdownFile, sr.MarkdownPath); err != nil {
		return nil, "", err
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func attachFile(mw *multipart.Writer, field, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating form file %s: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying %s: %w", path, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
