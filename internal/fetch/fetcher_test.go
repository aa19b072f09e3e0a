// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

const fakePDFContent = "%PDF-1.4 fake pdf content for testing"

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func newFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	f, err := New(types.FetchConfig{}, opts...)
	require.NoError(t, err)
	return f
}

func TestFetch_HTTP(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	ws := newWorkspace(t)
	f := newFetcher(t, WithHTTPClient(ts.Client()))

	src, err := f.Fetch(context.Background(), ts.URL+"/deepmd/Some%20Paper.PDF", ws)
	require.NoError(t, err)

	assert.Equal(t, "Some Paper.PDF", src.Filename)
	assert.Equal(t, ".pdf", src.Ext)
	assert.Equal(t, filepath.Join(ws.Dir(), "Some Paper.PDF"), src.Path)
	assert.Equal(t, int64(len(fakePDFContent)), src.Size)
	assert.Equal(t, md5hex(fakePDFContent), src.MD5)
	assert.Equal(t, defaultUserAgent, gotUA)

	data, err := os.ReadFile(src.Path)
	require.NoError(t, err)
	assert.Equal(t, fakePDFContent, string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetch_HTTPNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such object", http.StatusNotFound)
	}))
	defer ts.Close()

	f := newFetcher(t, WithHTTPClient(ts.Client()))
	_, err := f.Fetch(context.Background(), ts.URL+"/test/missing.pdf", newWorkspace(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "no such object")
}

func TestFetch_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := ts.URL
	ts.Close()

	f := newFetcher(t)
	_, err := f.Fetch(context.Background(), addr+"/test/a.pdf", newWorkspace(t))
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := newFetcher(t)
	_, err := f.Fetch(context.Background(), "ftp://host/test/a.pdf", newWorkspace(t))
	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetch_NoFilename(t *testing.T) {
	f := newFetcher(t)
	for _, u := range []string{"https://host", "https://host/", "https://host/a/.."} {
		_, err := f.Fetch(context.Background(), u, newWorkspace(t))
		assert.ErrorIs(t, err, ErrFetch, u)
	}
}

type fakeObjects struct {
	objects map[string]string
	calls   []string
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.calls = append(f.calls, bucket+"/"+key)
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestFetch_S3(t *testing.T) {
	objects := &fakeObjects{objects: map[string]string{"papers/unimol/notes.md": "# Notes"}}
	f := newFetcher(t, WithObjectGetter(objects))

	src, err := f.Fetch(context.Background(), "s3://papers/unimol/notes.md", newWorkspace(t))
	require.NoError(t, err)
	assert.Equal(t, "notes.md", src.Filename)
	assert.Equal(t, ".md", src.Ext)
	assert.Equal(t, md5hex("# Notes"), src.MD5)
	assert.Equal(t, []string{"papers/unimol/notes.md"}, objects.calls)

	_, err = f.Fetch(context.Background(), "s3://papers/unimol/missing.md", newWorkspace(t))
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetch_S3WithoutStore(t *testing.T) {
	f := newFetcher(t)
	_, err := f.Fetch(context.Background(), "s3://papers/a.pdf", newWorkspace(t))
	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "no object store")
}

func TestNew_ConfiguresObjectStore(t *testing.T) {
	f, err := New(types.FetchConfig{ObjectStore: types.ObjectStoreConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Region:    "us-east-1",
	}})
	require.NoError(t, err)
	assert.IsType(t, &MinioGetter{}, f.objects)
	assert.Equal(t, defaultTimeout, f.client.Timeout)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://h/test/test_dpgen.pdf", "test_dpgen.pdf", true},
		{"https://h/a/b/c.md?x=1", "c.md", true},
		{"https://h/dir/", "dir", true},
		{"https://h/", "", false},
		{"https://h", "", false},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		got, err := Filename(u)
		if !tt.ok {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestWorkspace_CloseRemovesEverything(t *testing.T) {
	base := t.TempDir()
	ws, err := NewWorkspace(base)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir()), WorkspacePrefix))

	require.NoError(t, os.WriteFile(ws.Path("a.pdf"), []byte("x"), 0o644))
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspace_CreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "scratch")
	ws, err := NewWorkspace(base)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, base, filepath.Dir(ws.Dir()))
}
