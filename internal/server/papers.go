// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paperflow/internal/papers"
	"github.com/pdiddy/paperflow/internal/persist"
	"github.com/pdiddy/paperflow/pkg/types"
)

// paperInput is the JSON body of a metadata-only create.
type paperInput struct {
	types.PaperMetadata
	PrimaryDomain  types.DomainTag      `json:"primary_domain"`
	OriginFileLink string               `json:"origin_filelink"`
	Tags           string               `json:"tags"`
	ParserMetadata types.ParserMetadata `json:"parser_metadata"`
}

func (s *Server) listPapers(c *gin.Context) {
	list, err := s.store.ListActive(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("listing papers")
		errorJSON(c, http.StatusInternalServerError, "listing papers failed")
		return
	}
	out := make([]types.PaperRecord, 0, len(list))
	for i := range list {
		out = append(out, list[i].Record())
	}
	c.JSON(http.StatusOK, out)
}

// createPaper accepts either a multipart upload or a JSON metadata body.
func (s *Server) createPaper(c *gin.Context) {
	var (
		p   *papers.Paper
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		p, err = paperFromForm(c)
	} else {
		p, err = paperFromJSON(c)
	}
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Create(c.Request.Context(), p); err != nil {
		s.log.WithError(err).WithField("request_id", GetRequestID(c)).Error("creating paper")
		errorJSON(c, http.StatusInternalServerError, "creating paper failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"id":             p.ID,
		"primary_domain": p.PrimaryDomain,
		"origin_filemd5": p.OriginFileMD5,
	}).Info("paper created")
	c.JSON(http.StatusOK, p.Record())
}

func paperFromJSON(c *gin.Context) (*papers.Paper, error) {
	var in paperInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	p := &papers.Paper{
		PrimaryDomain:  domainOrDefault(string(in.PrimaryDomain)),
		OriginFileLink: in.OriginFileLink,
		Tags:           in.Tags,
	}
	p.SetMetadata(in.PaperMetadata)
	if err := p.SetParserMetadata(in.ParserMetadata); err != nil {
		return nil, fmt.Errorf("invalid parser metadata: %w", err)
	}
	return p, nil
}

func paperFromForm(c *gin.Context) (*papers.Paper, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	value := func(k string) string {
		if v := form.Value[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	m := types.PaperMetadata{
		Title:    value("title"),
		Authors:  value("authors"),
		Abstract: value("abstract"),
		DOI:      value("doi"),
		Journal:  value("journal"),
		Keywords: value("keywords"),
		URL:      value("url"),
		ArxivID:  value("arxiv_id"),
	}
	if y := value("year"); y != "" {
		if m.Year, err = strconv.Atoi(y); err != nil {
			return nil, fmt.Errorf("invalid year %q", y)
		}
	}

	p := &papers.Paper{
		PrimaryDomain:  domainOrDefault(value(persist.FieldDomain)),
		OriginFileLink: value(persist.FieldOriginLink),
		Tags:           value("tags"),
	}
	p.SetMetadata(m)

	if raw := value(persist.FieldParserMetadata); raw != "" {
		var pm types.ParserMetadata
		if err := json.Unmarshal([]byte(raw), &pm); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", persist.FieldParserMetadata, err)
		}
		if err := p.SetParserMetadata(pm); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", persist.FieldParserMetadata, err)
		}
	}

	origin := firstFile(form, persist.FieldOriginFile, persist.FieldLegacyPDF)
	if origin != nil {
		if p.OriginContent, err = readPart(origin); err != nil {
			return nil, err
		}
		p.OriginFilename = origin.Filename
	}
	if md := firstFile(form, persist.FieldMarkdownFile); md != nil {
		if p.MarkdownContent, err = readPart(md); err != nil {
			return nil, err
		}
		p.MarkdownFilename = md.Filename
	}
	return p, nil
}

func firstFile(form *multipart.Form, fields ...string) *multipart.FileHeader {
	for _, f := range fields {
		if fh := form.File[f]; len(fh) > 0 {
			return fh[0]
		}
	}
	return nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return data, nil
}

func domainOrDefault(d string) string {
	if d == "" {
		return string(types.DomainUnclassified)
	}
	return d
}
