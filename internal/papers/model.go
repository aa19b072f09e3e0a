// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package papers is the relational store behind the storage API. It keeps
// file contents as blobs next to the bibliographic metadata and enforces
// that at most one active record exists per origin file hash.
package papers

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pdiddy/paperflow/pkg/types"
)

// Paper is one stored paper. Column names follow the storage API's field
// names so records round-trip without mapping tables.
type Paper struct {
	ID uint `gorm:"primaryKey"`

	Title    string `gorm:"size:500"`
	Authors  string
	DOI      string `gorm:"column:doi;size:100;index"`
	Year     int    `gorm:"index"`
	Journal  string `gorm:"size:200"`
	Abstract string
	Keywords string
	URL      string `gorm:"column:url"`
	ArxivID  string `gorm:"column:arxiv_id;size:50"`

	OriginFilename string `gorm:"size:255"`
	OriginFileMD5  string `gorm:"column:origin_filemd5;size:32;index;index:idx_papers_md5_active,priority:1"`
	OriginContent  []byte
	OriginFileLink string `gorm:"column:origin_filelink"`

	MarkdownFilename string `gorm:"size:255"`
	MarkdownFileMD5  string `gorm:"column:markdown_filemd5;size:32"`
	MarkdownContent  []byte

	// ParserMetadata is what the parsing service reported, as JSON.
	ParserMetadata datatypes.JSON

	IsActive      bool   `gorm:"not null;index;index:idx_papers_md5_active,priority:2"`
	PrimaryDomain string `gorm:"size:100;not null;index"`
	Tags          string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Paper) TableName() string { return "papers" }

// BeforeSave recomputes both content hashes so they always describe the
// stored bytes, whatever the caller supplied.
func (p *Paper) BeforeSave(*gorm.DB) error {
	p.computeHashes()
	return nil
}

func (p *Paper) computeHashes() {
	if len(p.OriginContent) > 0 {
		p.OriginFileMD5 = md5Hex(p.OriginContent)
	}
	if len(p.MarkdownContent) > 0 {
		p.MarkdownFileMD5 = md5Hex(p.MarkdownContent)
	}
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// SetMetadata copies bibliographic fields onto p.
func (p *Paper) SetMetadata(m types.PaperMetadata) {
	p.Title = m.Title
	p.Authors = m.Authors
	p.Year = m.Year
	p.Abstract = m.Abstract
	p.DOI = m.DOI
	p.Journal = m.Journal
	p.Keywords = m.Keywords
	p.URL = m.URL
	p.ArxivID = m.ArxivID
}

// Metadata returns the bibliographic fields of p.
func (p *Paper) Metadata() types.PaperMetadata {
	return types.PaperMetadata{
		Title:    p.Title,
		Authors:  p.Authors,
		Year:     p.Year,
		Abstract: p.Abstract,
		DOI:      p.DOI,
		Journal:  p.Journal,
		Keywords: p.Keywords,
		URL:      p.URL,
		ArxivID:  p.ArxivID,
	}
}

// SetParserMetadata stores m as the JSON parser metadata. Zero metadata
// clears the column.
func (p *Paper) SetParserMetadata(m types.ParserMetadata) error {
	if m.IsZero() {
		p.ParserMetadata = nil
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.ParserMetadata = datatypes.JSON(b)
	return nil
}

// Record converts p to its wire form. Contents are left out.
func (p *Paper) Record() types.PaperRecord {
	return types.PaperRecord{
		ID:               p.ID,
		PaperMetadata:    p.Metadata(),
		OriginFilename:   p.OriginFilename,
		OriginFileMD5:    p.OriginFileMD5,
		OriginFileLink:   p.OriginFileLink,
		MarkdownFilename: p.MarkdownFilename,
		MarkdownFileMD5:  p.MarkdownFileMD5,
		PrimaryDomain:    types.DomainTag(p.PrimaryDomain),
		Tags:             p.Tags,
		IsActive:         p.IsActive,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
