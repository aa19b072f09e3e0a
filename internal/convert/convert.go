// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns downloaded source objects into Markdown. PDFs go
// through a remote parsing service; Markdown sources pass through untouched.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/paperflow/internal/fetch"
	"github.com/pdiddy/paperflow/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for any extension other than .pdf
	// and .md. No network call is made.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParseService marks failures of the remote parsing service.
	ErrParseService = errors.New("parse service failed")
)

// Parser converts a PDF file into Markdown. The HTTP client in this package
// is the production implementation; tests supply fakes.
type Parser interface {
	Parse(ctx context.Context, pdfPath string) (*ParseResult, error)
}

// ParseResult is what a Parser returns for one PDF.
type ParseResult struct {
	Markdown string
	Engine   string
	Metadata types.ParserMetadata
}

// Converter dispatches source objects on their extension.
type Converter struct {
	parser Parser
}

// New creates a Converter that sends PDFs to p.
func New(p Parser) *Converter {
	return &Converter{parser: p}
}

// Convert produces the Markdown document for src. For PDFs the parser is
// called exactly once and the result is written to <ws>/<filename>.md.
func (c *Converter) Convert(ctx context.Context, src *types.SourceObject, ws *fetch.Workspace) (*types.ParsedDocument, error) {
	switch strings.ToLower(src.Ext) {
	case ".pdf":
		return c.convertPDF(ctx, src, ws)
	case ".md":
		return passThrough(src)
	default:
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, src.Ext, src.Filename)
	}
}

func (c *Converter) convertPDF(ctx context.Context, src *types.SourceObject, ws *fetch.Workspace) (*types.ParsedDocument, error) {
	if c.parser == nil {
		return nil, fmt.Errorf("%w: no parser configured", ErrParseService)
	}

	res, err := c.parser.Parse(ctx, src.Path)
	if err != nil {
		if errors.Is(err, ErrParseService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrParseService, src.Filename, err)
	}

	mdPath := ws.Path(MarkdownFilename(src.Filename))
	if err := os.WriteFile(mdPath, []byte(res.Markdown), 0o644); err != nil {
		return nil, fmt.Errorf("writing markdown %s: %w", mdPath, err)
	}

	return &types.ParsedDocument{
		Path:   mdPath,
		Text:   res.Markdown,
		Engine: res.Engine,
		Parser: res.Metadata,
	}, nil
}

func passThrough(src *types.SourceObject) (*types.ParsedDocument, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown source %s: %w", src.Path, err)
	}
	return &types.ParsedDocument{Path: src.Path, Text: string(data)}, nil
}

// Supported reports whether files with extension ext can be converted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".md":
		return true
	}
	return false
}

// MarkdownFilename names the Markdown artifact for a PDF: the full source
// filename with ".md" appended, so "a.pdf" becomes "a.pdf.md".
func MarkdownFilename(filename string) string {
	return filename + ".md"
}
