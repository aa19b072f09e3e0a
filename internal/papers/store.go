// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package papers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no paper has the requested id.
var ErrNotFound = errors.New("paper not found")

// maxCreateAttempts bounds retries of a Create that lost a race on the
// active-hash index.
const maxCreateAttempts = 5

// activeHashIndex keeps a single active row per non-empty origin hash,
// whatever the number of concurrent writers.
const activeHashIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_papers_active_md5
ON papers (origin_filemd5) WHERE is_active AND origin_filemd5 <> ''`

// Open connects to dsn. Supported forms are sqlite://<path> (or a bare
// path) and postgres:// / postgresql:// URLs.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, errors.New("empty database path")
		}
		db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), cfg)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// SQLite has a single writer; one connection avoids lock errors.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// Migrate creates or upgrades the papers schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Paper{}); err != nil {
		return fmt.Errorf("migrating papers: %w", err)
	}
	if err := db.Exec(activeHashIndex).Error; err != nil {
		return fmt.Errorf("creating active hash index: %w", err)
	}
	return nil
}

// Store reads and writes papers.
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewStore wraps db. A nil log uses the standard logger.
func NewStore(db *gorm.DB, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, log: log.WithField("component", "papers")}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Create stores p as the active record for its origin hash. Within one
// transaction every active record with the same hash is deactivated and p is
// inserted. A transaction that loses a race against a concurrent Create
// fails on the unique index and is retried.
func (s *Store) Create(ctx context.Context, p *Paper) error {
	p.computeHashes()
	p.IsActive = true

	var err error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		p.ID = 0
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if p.OriginFileMD5 != "" {
				res := tx.Model(&Paper{}).
					Where("origin_filemd5 = ? AND is_active = ?", p.OriginFileMD5, true).
					UpdateColumns(map[string]any{"is_active": false, "updated_at": time.Now()})
				if res.Error != nil {
					return fmt.Errorf("deactivating duplicates: %w", res.Error)
				}
				if res.RowsAffected > 0 {
					s.log.WithFields(logrus.Fields{
						"origin_filemd5": p.OriginFileMD5,
						"deactivated":    res.RowsAffected,
					}).Info("superseded earlier records")
				}
			}
			return tx.Create(p).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("creating paper: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"origin_filemd5": p.OriginFileMD5,
			"attempt":        attempt,
		}).Warn("concurrent create for the same file, retrying")
	}
	return fmt.Errorf("creating paper after %d attempts: %w", maxCreateAttempts, err)
}

// listColumns leaves the blobs out of listings.
var listColumns = []string{
	"id", "title", "authors", "doi", "year", "journal", "abstract", "keywords", "url", "arxiv_id",
	"origin_filename", "origin_filemd5", "origin_filelink", "markdown_filename", "markdown_filemd5",
	"parser_metadata", "is_active", "primary_domain", "tags", "created_at", "updated_at",
}

// ListActive returns every active record, newest year first.
func (s *Store) ListActive(ctx context.Context) ([]Paper, error) {
	var out []Paper
	err := s.db.WithContext(ctx).Select(listColumns).
		Where("is_active = ?", true).
		Order("year DESC").Order("title").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	return out, nil
}

// Get returns the record with id, contents included.
func (s *Store) Get(ctx context.Context, id uint) (*Paper, error) {
	var p Paper
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting paper %d: %w", id, err)
	}
	return &p, nil
}

// ListByDomain returns active records in domain whose title, authors or
// keywords contain search (case-insensitive). An empty search matches all.
func (s *Store) ListByDomain(ctx context.Context, domain, search string) ([]Paper, error) {
	q := s.db.WithContext(ctx).Select(listColumns).
		Where("primary_domain = ? AND is_active = ?", domain, true)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(authors) LIKE ? OR LOWER(keywords) LIKE ?)", like, like, like)
	}

	var out []Paper
	if err := q.Order("year DESC").Order("title").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing papers in %s: %w", domain, err)
	}
	return out, nil
}

// CountByDomain counts active records in domain.
func (s *Store) CountByDomain(ctx context.Context, domain string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Paper{}).
		Where("primary_domain = ? AND is_active = ?", domain, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting papers in %s: %w", domain, err)
	}
	return n, nil
}

// CountActiveByHash counts active records for an origin hash.
func (s *Store) CountActiveByHash(ctx context.Context, md5 string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Paper{}).
		Where("origin_filemd5 = ? AND is_active = ?", md5, true).
		Count(&n).Error
	return n, err
}
