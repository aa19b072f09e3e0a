// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data structures shared by the paperflow
// pipeline, its storage API and its CLI.
package types

import "time"

// DomainTag is a coarse research-domain label derived from a source URL.
type DomainTag string

const (
	DomainUnclassified DomainTag = "unclassified"
	DomainUnknown      DomainTag = "unknown"
)

// SourceObject is an origin file downloaded into a run's scratch workspace.
// It exists only for the duration of one run.
type SourceObject struct {
	// URL is the storage URL the object was fetched from.
	URL string `json:"url" yaml:"url"`

	// Filename is the basename of the URL path.
	Filename string `json:"filename" yaml:"filename"`

	// Ext is the lower-cased extension of Filename, including the dot.
	Ext string `json:"ext" yaml:"ext"`

	// Path is the local path of the downloaded bytes.
	Path string `json:"path" yaml:"path"`

	Size int64  `json:"size" yaml:"size"`
	MD5  string `json:"md5" yaml:"md5"`
}

// ParserMetadata is what the parsing service reports about a conversion.
type ParserMetadata struct {
	Service        string  `json:"service,omitempty" yaml:"service,omitempty"`
	FileSize       int64   `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty" yaml:"processing_time,omitempty"`
	PageCount      int     `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	ImageCount     int     `json:"image_count,omitempty" yaml:"image_count,omitempty"`
}

// IsZero reports whether no metadata was supplied.
func (m ParserMetadata) IsZero() bool {
	return m == ParserMetadata{}
}

// ParsedDocument is the Markdown produced from a SourceObject.
type ParsedDocument struct {
	// Path is the Markdown artifact on disk. For Markdown sources it is the
	// source path itself.
	Path string `json:"path" yaml:"path"`

	Text string `json:"-" yaml:"-"`

	// Engine is the parsing engine used, empty for pass-through.
	Engine string         `json:"engine,omitempty" yaml:"engine,omitempty"`
	Parser ParserMetadata `json:"parser" yaml:"parser"`
}

// PaperMetadata holds bibliographic fields extracted by the metadata agent.
// Every field is optional.
type PaperMetadata struct {
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Authors  string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year     int    `json:"year,omitempty" yaml:"year,omitempty"`
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	DOI      string `json:"doi,omitempty" yaml:"doi,omitempty"`
	Journal  string `json:"journal,omitempty" yaml:"journal,omitempty"`
	Keywords string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	ArxivID  string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`
}

// PaperRecord is the wire form of a stored paper. File contents never travel
// in this form; only their names and MD5 hashes do.
type PaperRecord struct {
	ID uint `json:"id" yaml:"id"`

	PaperMetadata `yaml:",inline"`

	OriginFilename   string    `json:"origin_filename,omitempty" yaml:"origin_filename,omitempty"`
	OriginFileMD5    string    `json:"origin_filemd5,omitempty" yaml:"origin_filemd5,omitempty"`
	OriginFileLink   string    `json:"origin_filelink,omitempty" yaml:"origin_filelink,omitempty"`
	MarkdownFilename string    `json:"markdown_filename,omitempty" yaml:"markdown_filename,omitempty"`
	MarkdownFileMD5  string    `json:"markdown_filemd5,omitempty" yaml:"markdown_filemd5,omitempty"`
	PrimaryDomain    DomainTag `json:"primary_domain" yaml:"primary_domain"`
	Tags             string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	IsActive         bool      `json:"is_active" yaml:"is_active"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}
