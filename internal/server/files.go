// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/paperflow/internal/classify"
	"github.com/pdiddy/paperflow/internal/papers"
	"github.com/pdiddy/paperflow/pkg/types"
)

// fileDomains returns the folders shown at the root of the file tree: every
// canonical domain except test.
func fileDomains() []types.DomainTag {
	known := classify.Known()
	out := make([]types.DomainTag, 0, len(known))
	for _, d := range known {
		if d != classify.DomainTest {
			out = append(out, d)
		}
	}
	return out
}

const paperIDPrefix = "paper_"

// envelope is the response shape the dataset service expects from an
// external file library.
type envelope struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type fileListRequest struct {
	ParentID  *string `json:"parentId"`
	SearchKey *string `json:"searchKey"`
}

type fileItem struct {
	ID         string  `json:"id"`
	ParentID   *string `json:"parentId"`
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Year       int     `json:"year,omitempty"`
	Authors    string  `json:"authors,omitempty"`
	UpdateTime string  `json:"updateTime,omitempty"`
	CreateTime string  `json:"createTime,omitempty"`
}

type fileContent struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	PreviewURL *string `json:"previewUrl"`
}

type fileDetail struct {
	types.PaperRecord
	ParentID string `json:"parentId"`
	Type     string `json:"type"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Code: http.StatusOK, Success: true, Data: data})
}

func respondFail(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Code: status, Success: false, Message: msg})
}

// listFiles returns the domain folders when no parent is given, otherwise
// the active papers in the parent domain.
func (s *Server) listFiles(c *gin.Context) {
	var req fileListRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondFail(c, http.StatusBadRequest, "invalid body")
			return
		}
	}

	parent := ""
	if req.ParentID != nil {
		parent = strings.TrimSpace(*req.ParentID)
	}
	if parent == "" || parent == "/" {
		now := s.now().Format(time.RFC3339)
		domains := fileDomains()
		files := make([]fileItem, 0, len(domains))
		for _, d := range domains {
			files = append(files, fileItem{
				ID: string(d), Type: "folder", Name: string(d),
				UpdateTime: now, CreateTime: now,
			})
		}
		respondOK(c, gin.H{"files": files})
		return
	}

	search := ""
	if req.SearchKey != nil {
		search = *req.SearchKey
	}
	list, err := s.store.ListByDomain(c.Request.Context(), parent, search)
	if err != nil {
		s.log.WithError(err).Error("listing files")
		respondFail(c, http.StatusInternalServerError, "listing files failed")
		return
	}
	files := make([]fileItem, 0, len(list))
	for _, p := range list {
		files = append(files, fileItem{
			ID:       paperIDPrefix + strconv.FormatUint(uint64(p.ID), 10),
			ParentID: &parent,
			Type:     "file",
			Name:     fmt.Sprintf("%d %s", p.Year, p.Title),
			Year:     p.Year,
			Authors:  p.Authors,
		})
	}
	respondOK(c, gin.H{"files": files})
}

// fileContent returns a paper's Markdown, or its abstract when no Markdown
// was stored.
func (s *Server) fileContent(c *gin.Context) {
	p, found := s.paperByFileID(c, c.Query("id"))
	if !found {
		return
	}

	content := string(p.MarkdownContent)
	if content == "" {
		content = "Abstract " + p.Abstract
	}
	var preview *string
	if len(p.OriginContent) > 0 {
		u := fmt.Sprintf("/api/fastgpt/pdf/%d", p.ID)
		preview = &u
	}
	respondOK(c, fileContent{Title: p.Title, Content: content, PreviewURL: preview})
}

// fileDetail describes a paper ("paper_<id>") or a domain folder.
func (s *Server) fileDetail(c *gin.Context) {
	id := c.Query("id")
	if strings.HasPrefix(id, paperIDPrefix) {
		p, found := s.paperByFileID(c, id)
		if !found {
			return
		}
		respondOK(c, fileDetail{PaperRecord: p.Record(), ParentID: p.PrimaryDomain, Type: "file"})
		return
	}
	if id == "" {
		respondFail(c, http.StatusBadRequest, "missing id")
		return
	}

	n, err := s.store.CountByDomain(c.Request.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("counting papers")
		respondFail(c, http.StatusInternalServerError, "counting papers failed")
		return
	}
	respondOK(c, fileItem{ID: id, Type: "folder", Name: fmt.Sprintf("%s (%d papers)", id, n)})
}

// serveOrigin streams the stored origin file inline.
func (s *Server) serveOrigin(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid paper id")
		return
	}
	p, err := s.store.Get(c.Request.Context(), uint(id))
	if errors.Is(err, papers.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("getting paper")
		errorJSON(c, http.StatusInternalServerError, "getting paper failed")
		return
	}
	if len(p.OriginContent) == 0 {
		errorJSON(c, http.StatusNotFound, "paper has no origin file")
		return
	}

	name := p.OriginFilename
	if name == "" {
		name = "paper.pdf"
	}
	contentType := "application/pdf"
	if strings.HasSuffix(strings.ToLower(name), ".md") {
		contentType = "text/markdown; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, contentType, p.OriginContent)
}

// paperByFileID resolves "paper_<id>" and writes the error response itself
// when it cannot.
func (s *Server) paperByFileID(c *gin.Context, fileID string) (*papers.Paper, bool) {
	raw, found := strings.CutPrefix(fileID, paperIDPrefix)
	if !found {
		respondFail(c, http.StatusBadRequest, fmt.Sprintf("invalid file id %q", fileID))
		return nil, false
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		respondFail(c, http.StatusBadRequest, fmt.Sprintf("invalid file id %q", fileID))
		return nil, false
	}

	p, err := s.store.Get(c.Request.Context(), uint(id))
	if errors.Is(err, papers.ErrNotFound) {
		respondFail(c, http.StatusNotFound, "file not found")
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).Error("getting paper")
		respondFail(c, http.StatusInternalServerError, "getting file failed")
		return nil, false
	}
	return p, true
}
