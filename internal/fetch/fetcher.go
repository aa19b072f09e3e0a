// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads source objects into a per-run scratch workspace.
// http(s) URLs are fetched directly; s3://bucket/key URLs go through an
// S3-compatible client. Failures are never retried here.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

// ErrFetch marks every download failure.
var ErrFetch = errors.New("fetch failed")

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "paperflow/1.0"
)

// ObjectGetter reads one object from an S3-compatible store.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Fetcher downloads source objects.
type Fetcher struct {
	client    *http.Client
	userAgent string
	objects   ObjectGetter
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithObjectGetter replaces the S3 client used for s3:// URLs.
func WithObjectGetter(g ObjectGetter) Option {
	return func(f *Fetcher) { f.objects = g }
}

// New creates a Fetcher from cfg. An S3 client is configured only when an
// object-store endpoint is set.
func New(cfg types.FetchConfig, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:    httputil.NewClient(cfg.Timeout, defaultTimeout),
		userAgent: cfg.UserAgent,
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if cfg.ObjectStore.Endpoint != "" {
		store, err := NewMinioGetter(cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		f.objects = store
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch downloads rawURL into ws and returns the resulting SourceObject with
// its MD5 computed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, ws *Workspace) (*types.SourceObject, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrFetch, rawURL, err)
	}

	filename, err := Filename(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = f.openHTTP(ctx, rawURL)
	case "s3":
		body, err = f.openObject(ctx, u)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	defer body.Close()

	src := &types.SourceObject{
		URL:      rawURL,
		Filename: filename,
		Ext:      strings.ToLower(path.Ext(filename)),
		Path:     ws.Path(filename),
	}
	if err := writeFile(src, body); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	return src, nil
}

// Filename derives the local filename from the URL path's basename.
func Filename(u *url.URL) (string, error) {
	p := strings.TrimRight(u.Path, "/")
	name := path.Base(p)
	if p == "" || name == "/" || name == "." || name == ".." {
		return "", fmt.Errorf("no filename in %q", u.String())
	}
	return name, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if err := httputil.CheckResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (f *Fetcher) openObject(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if f.objects == nil {
		return nil, errors.New("no object store configured for s3:// URLs")
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("s3 URL needs bucket and key: %q", u.String())
	}
	return f.objects.GetObject(ctx, u.Host, key)
}

// writeFile streams body to src.Path through a temp file, hashing as it goes.
// The file only appears under its final name once fully written.
func writeFile(src *types.SourceObject, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(src.Path), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	h := md5.New()
	n, copyErr := io.Copy(io.MultiWriter(tmp, h), body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, src.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	src.Size = n
	src.MD5 = hex.EncodeToString(h.Sum(nil))
	return nil
}

// MinioGetter reads objects through minio-go.
type MinioGetter struct {
	client *minio.Client
}

// NewMinioGetter builds an S3 client for the configured endpoint.
func NewMinioGetter(cfg types.ObjectStoreConfig) (*MinioGetter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &MinioGetter{client: client}, nil
}

// GetObject opens bucket/key. The object is stat'ed first so a missing key
// fails here instead of on the first read.
func (m *MinioGetter) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}
