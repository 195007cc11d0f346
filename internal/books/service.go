// Package books persists and serves the book records produced by the
// backfill pipeline.
package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/openshelf/openshelf/internal/storage"
	"github.com/rs/zerolog/log"
)

// Book is the domain aggregate a provider document maps into
type Book struct {
	Source        string
	SourceID      string
	Title         string
	Authors       []string
	ISBN          string
	Description   string
	CoverURL      string
	PublishedYear int
}

// UpsertResult reports the identity of a persisted book and whether the
// write created a new row
type UpsertResult struct {
	ID    string
	Slug  string
	IsNew bool
}

// Record is a stored book as served by the read API
type Record struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	SourceID      string `json:"source_id"`
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	Authors       string `json:"authors,omitempty"`
	ISBN          string `json:"isbn,omitempty"`
	Description   string `json:"description,omitempty"`
	CoverURL      string `json:"cover_url,omitempty"`
	PublishedYear int    `json:"published_year,omitempty"`
	Links         []Link `json:"links,omitempty"`
}

// Service persists book aggregates and optionally mirrors cover images to
// blob storage
type Service struct {
	db          *sql.DB
	covers      *storage.Client // nil disables cover mirroring
	coverBucket string
	amazonTag   string
}

// NewService creates a book service. The storage client may be nil.
func NewService(database *sql.DB, covers *storage.Client, amazonTag string) *Service {
	return &Service{
		db:          database,
		covers:      covers,
		coverBucket: "covers",
		amazonTag:   amazonTag,
	}
}

// Upsert idempotently persists a book keyed on (source, source_id). Existing
// rows are refreshed with the latest provider data but keep their identity
// and slug. Returns the row's id, slug, and whether it was newly created.
func (s *Service) Upsert(ctx context.Context, book *Book) (*UpsertResult, error) {
	span := sentry.StartSpan(ctx, "books.upsert")
	defer span.Finish()

	if book == nil {
		return nil, fmt.Errorf("cannot upsert nil book")
	}
	if book.Source == "" || book.SourceID == "" {
		return nil, fmt.Errorf("book is missing source identity")
	}
	if strings.TrimSpace(book.Title) == "" {
		return nil, fmt.Errorf("book is missing a title")
	}

	result := &UpsertResult{}
	// xmax = 0 distinguishes a fresh insert from a conflict-update
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO books (
			id, source, source_id, slug, title, authors, isbn,
			description, cover_url, published_year, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, 0), NOW(), NOW())
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			isbn = EXCLUDED.isbn,
			description = EXCLUDED.description,
			cover_url = EXCLUDED.cover_url,
			published_year = EXCLUDED.published_year,
			updated_at = NOW()
		RETURNING id, slug, (xmax = 0) AS is_new
	`, uuid.New().String(), book.Source, book.SourceID,
		Slugify(book.Title, book.Source+"|"+book.SourceID),
		strings.TrimSpace(book.Title), strings.Join(book.Authors, ", "),
		book.ISBN, book.Description, book.CoverURL, book.PublishedYear,
	).Scan(&result.ID, &result.Slug, &result.IsNew)

	if err != nil {
		span.SetTag("error", "true")
		return nil, fmt.Errorf("failed to upsert book: %w", err)
	}

	// Cover mirroring is best-effort and never fails the upsert
	if book.CoverURL != "" && s.covers != nil {
		if err := s.mirrorCover(ctx, result.ID, book.CoverURL); err != nil {
			log.Warn().
				Err(err).
				Str("book_id", result.ID).
				Str("cover_url", book.CoverURL).
				Msg("Failed to mirror cover image")
		}
	}

	return result, nil
}

// GetBySlug returns a stored book with its affiliate links
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Record, error) {
	var rec Record
	var authors, isbn, description, coverURL sql.NullString
	var year sql.NullInt32

	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, source_id, slug, title, authors, isbn,
			description, cover_url, published_year
		FROM books
		WHERE slug = $1
	`, slug).Scan(&rec.ID, &rec.Source, &rec.SourceID, &rec.Slug, &rec.Title,
		&authors, &isbn, &description, &coverURL, &year)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book: %w", err)
	}

	rec.Authors = authors.String
	rec.ISBN = isbn.String
	rec.Description = description.String
	rec.CoverURL = coverURL.String
	rec.PublishedYear = int(year.Int32)
	rec.Links = AffiliateLinks(rec.ISBN, s.amazonTag)

	return &rec, nil
}
