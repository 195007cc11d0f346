// Package provider contains the fetch clients and document mappers for the
// external book-metadata providers.
package provider

import (
	"strings"

	"github.com/openshelf/openshelf/internal/books"
)

// Source identifiers for the supported providers
const (
	SourceOpenLibrary = "openlibrary"
	SourceGoogleBooks = "googlebooks"
)

// Document is the parsed payload a provider fetch returns, normalised to the
// fields the mappers care about. Fetchers never return a Document for a
// missing record; they return nil instead.
type Document struct {
	Source        string
	SourceID      string
	Title         string
	Authors       []string
	ISBN          string
	Description   string
	CoverURL      string
	PublishedYear int
}

// MapDocument converts a provider document into a book aggregate. Returns nil
// when the document lacks the fields a book record requires; the caller
// treats that as a task failure, not an error.
func MapDocument(doc *Document) *books.Book {
	if doc == nil {
		return nil
	}

	title := strings.TrimSpace(doc.Title)
	if title == "" || doc.Source == "" || doc.SourceID == "" {
		return nil
	}

	authors := make([]string, 0, len(doc.Authors))
	for _, a := range doc.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	year := doc.PublishedYear
	if year < 0 || year > 3000 {
		year = 0
	}

	return &books.Book{
		Source:        doc.Source,
		SourceID:      doc.SourceID,
		Title:         title,
		Authors:       authors,
		ISBN:          strings.TrimSpace(doc.ISBN),
		Description:   strings.TrimSpace(doc.Description),
		CoverURL:      strings.TrimSpace(doc.CoverURL),
		PublishedYear: year,
	}
}
