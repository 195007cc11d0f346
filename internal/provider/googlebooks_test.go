package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleBooksFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes/zyTCAlFPjgYC", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"volumeInfo": {
				"title": "The Google Story",
				"authors": ["David A. Vise", "Mark Malseed"],
				"description": "The definitive account.",
				"publishedDate": "2005-11-15",
				"industryIdentifiers": [
					{"type": "ISBN_10", "identifier": "055380457X"},
					{"type": "ISBN_13", "identifier": "9780553804577"}
				],
				"imageLinks": {"thumbnail": "http://books.google.com/thumb.jpg"}
			}
		}`))
	}))
	defer server.Close()

	client := NewGoogleBooksClient(testConfig(), "")
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "zyTCAlFPjgYC")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, SourceGoogleBooks, doc.Source)
	assert.Equal(t, "The Google Story", doc.Title)
	assert.Equal(t, []string{"David A. Vise", "Mark Malseed"}, doc.Authors)
	// ISBN-13 wins even when listed after ISBN-10
	assert.Equal(t, "9780553804577", doc.ISBN)
	assert.Equal(t, "http://books.google.com/thumb.jpg", doc.CoverURL)
	assert.Equal(t, 2005, doc.PublishedYear)
}

func TestGoogleBooksFetchSendsAPIKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"volumeInfo": {"title": "Keyed"}}`))
	}))
	defer server.Close()

	client := NewGoogleBooksClient(testConfig(), "secret-key")
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Keyed", doc.Title)
}

func TestGoogleBooksFetchNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewGoogleBooksClient(testConfig(), "")
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGoogleBooksFetchISBN10Only(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"volumeInfo": {
				"title": "Older Volume",
				"industryIdentifiers": [{"type": "ISBN_10", "identifier": "055380457X"}]
			}
		}`))
	}))
	defer server.Close()

	client := NewGoogleBooksClient(testConfig(), "")
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "055380457X", doc.ISBN)
}

func TestYearFromPublishedDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2005, yearFromPublishedDate("2005-11-15"))
	assert.Equal(t, 1984, yearFromPublishedDate("1984"))
	assert.Equal(t, 0, yearFromPublishedDate("n.d."))
	assert.Equal(t, 0, yearFromPublishedDate(""))
}
