// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

var noDelay = httputil.Policy{MaxRetries: 3}

func markdownFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "paper.pdf.md")
	require.NoError(t, os.WriteFile(p, []byte("# Paper\n\nBody"), 0o644))
	return p
}

func testConfig(url string) types.DatasetConfig {
	return types.DatasetConfig{BaseURL: url + "/", APIKey: "fastgpt-key", DatasetID: "684897a43609eeebb2bc7391"}
}

func TestUpload_SendsFileAndData(t *testing.T) {
	var (
		gotPath, gotAuth, gotFilename, gotFile string
		gotData                                uploadData
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("data")), &gotData))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		f.Close()
		gotFilename, gotFile = hdr.Filename, string(b)

		json.NewEncoder(w).Encode(map[string]any{
			"code": 200, "statusText": "", "message": "",
			"data": map[string]any{"collectionId": "c1"},
		})
	}))
	defer ts.Close()

	res, err := NewDatasetClient(testConfig(ts.URL)).Upload(context.Background(), markdownFile(t))
	require.NoError(t, err)

	assert.Equal(t, uploadPath, gotPath)
	assert.Equal(t, "Bearer fastgpt-key", gotAuth)
	assert.Equal(t, "paper.pdf.md", gotFilename)
	assert.Equal(t, "# Paper\n\nBody", gotFile)
	assert.Equal(t, uploadData{
		DatasetID:        "684897a43609eeebb2bc7391",
		TrainingType:     "chunk",
		ChunkSettingMode: "auto",
		Metadata:         map[string]any{},
	}, gotData)
	assert.Equal(t, 200, res.Code)
	assert.Equal(t, "c1", res.Data["collectionId"])
}

func TestUpload_ApplicationError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 514, "statusText": "unAuthApiKey", "message": "Api key invalid"})
	}))
	defer ts.Close()

	_, err := NewDatasetClient(testConfig(ts.URL)).Upload(context.Background(), markdownFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Api key invalid")
}

func TestPublish_RetriesThenFails(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "dataset busy", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, attempts, err := Publish(context.Background(), NewDatasetClient(testConfig(ts.URL)), markdownFile(t), noDelay)

	assert.ErrorIs(t, err, ErrPublish)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestPublish_RecoversOnRetry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 200})
	}))
	defer ts.Close()

	res, attempts, err := Publish(context.Background(), NewDatasetClient(testConfig(ts.URL)), markdownFile(t), noDelay)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 200, res.Code)
}

func TestPublish_MissingFileIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	_, attempts, err := Publish(context.Background(), NewDatasetClient(testConfig(ts.URL)),
		filepath.Join(t.TempDir(), "gone.md"), noDelay)
	assert.ErrorIs(t, err, ErrPublish)
	assert.Equal(t, 1, attempts)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, 4, DefaultPolicy.Attempts())
	assert.Equal(t, 10*time.Minute, DefaultPolicy.Delay)
}
