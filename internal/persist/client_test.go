// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestSave_SendsMultipart(t *testing.T) {
	var (
		gotPath   string
		gotFields map[string]string
		gotFiles  = map[string]string{}
		gotNames  = map[string]string{}
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		for k, hs := range r.MultipartForm.File {
			f, err := hs[0].Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			f.Close()
			gotFiles[k] = string(data)
			gotNames[k] = hs[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.PaperRecord{
			ID:            7,
			PaperMetadata: types.PaperMetadata{Title: gotFields["title"]},
			OriginFileMD5: "d41d8cd98f00b204e9800998ecf8427e",
			PrimaryDomain: types.DomainTag(gotFields["primary_domain"]),
			IsActive:      true,
		})
	}))
	defer ts.Close()

	dir := t.TempDir()
	sr := SaveRequest{
		OriginPath:   writeFile(t, dir, "paper.pdf", "%PDF"),
		MarkdownPath: writeFile(t, dir, "paper.pdf.md", "# Paper"),
		Metadata: types.PaperMetadata{
			Title: "Paper", Authors: "A, B", Year: 2023, DOI: "10.1/x",
		},
		Domain:    "deepmd",
		SourceURL: "https://bucket.example/deepmd/paper.pdf",
		Parser:    types.ParserMetadata{Service: "marker", FileSize: 4, PageCount: 1},
	}

	rec, err := New(types.StorageConfig{APIURL: ts.URL + "/api/"}).Save(context.Background(), sr)
	require.NoError(t, err)

	assert.Equal(t, "/api/papers", gotPath)
	assert.JSONEq(t, `{"service":"marker","file_size":4,"page_count":1}`, gotFields[FieldParserMetadata])
	delete(gotFields, FieldParserMetadata)
	assert.Equal(t, map[string]string{
		"title":           "Paper",
		"authors":         "A, B",
		"year":            "2023",
		"doi":             "10.1/x",
		"primary_domain":  "deepmd",
		"origin_filelink": "https://bucket.example/deepmd/paper.pdf",
	}, gotFields)
	assert.Equal(t, "%PDF", gotFiles[FieldOriginFile])
	assert.Equal(t, "# Paper", gotFiles[FieldMarkdownFile])
	assert.Equal(t, "paper.pdf", gotNames[FieldOriginFile])
	assert.Equal(t, "paper.pdf.md", gotNames[FieldMarkdownFile])

	assert.Equal(t, uint(7), rec.ID)
	assert.Equal(t, "Paper", rec.Title)
	assert.Equal(t, types.DomainTag("deepmd"), rec.PrimaryDomain)
	assert.True(t, rec.IsActive)
}

func TestSave_MarkdownSourceSendsBothParts(t *testing.T) {
	var (
		parts     []string
		hasParser bool
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for k := range r.MultipartForm.File {
			parts = append(parts, k)
		}
		_, hasParser = r.MultipartForm.Value[FieldParserMetadata]
		json.NewEncoder(w).Encode(types.PaperRecord{ID: 1})
	}))
	defer ts.Close()

	md := writeFile(t, t.TempDir(), "notes.md", "# Notes")
	_, err := New(types.StorageConfig{APIURL: ts.URL}).Save(context.Background(), SaveRequest{
		OriginPath: md, MarkdownPath: md, Domain: "unimol",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{FieldOriginFile, FieldMarkdownFile}, parts)
	assert.False(t, hasParser, "pass-through sources have no parser metadata")
}

func TestSave_ServerError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"detail":"title is required"}`, http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	_, err := New(types.StorageConfig{APIURL: ts.URL}).Save(context.Background(), SaveRequest{Domain: "test"})

	assert.ErrorIs(t, err, ErrPersistence)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Contains(t, se.Body, "title is required")
	assert.Equal(t, 1, calls, "persistence is never retried")
}

func TestSave_MissingFile(t *testing.T) {
	_, err := New(types.StorageConfig{APIURL: "http://unused"}).Save(context.Background(), SaveRequest{
		OriginPath: filepath.Join(t.TempDir(), "gone.pdf"),
	})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestMetadataFields_OmitsEmpty(t *testing.T) {
	assert.Empty(t, MetadataFields(types.PaperMetadata{}))
	assert.Equal(t, map[string]string{"year": "1999", "arxiv_id": "2101.00001"},
		MetadataFields(types.PaperMetadata{Year: 1999, ArxivID: "2101.00001"}))
}
