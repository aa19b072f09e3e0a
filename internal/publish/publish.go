// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package publish uploads Markdown documents into a FastGPT dataset so they
// become searchable by retrieval-augmented chat. A failed upload never
// invalidates the stored paper record.
package publish

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
	"strings"
	"time"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

// ErrPublish marks an upload that failed after all retries.
var ErrPublish = errors.New("dataset publish failed")

// DefaultPolicy is three retries ten minutes apart. Dataset ingestion
// outages tend to last minutes, not seconds.
var DefaultPolicy = httputil.Policy{MaxRetries: 3, Delay: 600 * time.Second}

const (
	defaultTimeout = 120 * time.Second
	uploadPath     = "/api/core/dataset/collection/create/localFile"
)

// Publisher uploads one file per call. Retries are applied by Publish.
type Publisher interface {
	Upload(ctx context.Context, path string) (*types.PublishResult, error)
}

// Publish uploads path through p until it succeeds or policy is exhausted.
// It returns the confirmation and the number of attempts made.
func Publish(ctx context.Context, p Publisher, path string, policy httputil.Policy) (*types.PublishResult, int, error) {
	var res *types.PublishResult
	attempts, err := httputil.Retry(ctx, policy, func(ctx context.Context, _ int) error {
		r, err := p.Upload(ctx, path)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, attempts, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return res, attempts, nil
}

// DatasetClient uploads files to a FastGPT dataset collection.
type DatasetClient struct {
	baseURL   string
	apiKey    string
	datasetID string
	userAgent string
	client    *http.Client
}

// NewDatasetClient creates a client from cfg.
func NewDatasetClient(cfg types.DatasetConfig) *DatasetClient {
	return &DatasetClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		datasetID: cfg.DatasetID,
		userAgent: cfg.UserAgent,
		client:    httputil.NewClient(cfg.Timeout, defaultTimeout),
	}
}

// uploadData is the JSON "data" part of the upload form.
type uploadData struct {
	DatasetID        string         `json:"datasetId"`
	TrainingType     string         `json:"trainingType"`
	ChunkSettingMode string         `json:"chunkSettingMode"`
	Metadata         map[string]any `json:"metadata"`
}

// Upload sends the file at path as a new collection in the dataset.
func (c *DatasetClient) Upload(ctx context.Context, path string) (*types.PublishResult, error) {
	body, contentType, err := c.buildForm(path)
	if err != nil {
		return nil, httputil.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return nil, httputil.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading to dataset: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp); err != nil {
		return nil, err
	}

	var res types.PublishResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	// FastGPT reports application errors with HTTP 200 and a non-200 code.
	if res.Code != 0 && res.Code != http.StatusOK {
		msg := res.Message
		if msg == "" {
			msg = res.StatusText
		}
		return nil, fmt.Errorf("dataset rejected upload: code %d: %s", res.Code, msg)
	}
	return &res, nil
}

func (c *DatasetClient) buildForm(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := json.Marshal(uploadData{
		DatasetID:        c.datasetID,
		TrainingType:     "chunk",
		ChunkSettingMode: "auto",
		Metadata:         map[string]any{},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshaling upload data: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copying %s: %w", path, err)
	}
	if err := mw.WriteField("data", string(data)); err != nil {
		return nil, "", fmt.Errorf("writing data field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
