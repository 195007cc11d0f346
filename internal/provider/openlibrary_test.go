package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Timeout:       5 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		UserAgent:     "openshelf-test",
	}
}

func TestOpenLibraryFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/OL7353617M.json", r.URL.Path)
		assert.Equal(t, "openshelf-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"title": "The Wind in the Willows",
			"by_statement": "Kenneth Grahame.",
			"description": {"type": "/type/text", "value": "A classic of children's literature."},
			"covers": [8739161],
			"isbn_13": ["9780143039099"],
			"isbn_10": ["0143039091"],
			"publish_date": "May 12, 2009"
		}`))
	}))
	defer server.Close()

	client := NewOpenLibraryClient(testConfig())
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "OL7353617M")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, SourceOpenLibrary, doc.Source)
	assert.Equal(t, "OL7353617M", doc.SourceID)
	assert.Equal(t, "The Wind in the Willows", doc.Title)
	assert.Equal(t, []string{"Kenneth Grahame"}, doc.Authors)
	assert.Equal(t, "A classic of children's literature.", doc.Description)
	assert.Equal(t, "9780143039099", doc.ISBN)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/8739161-L.jpg", doc.CoverURL)
	assert.Equal(t, 2009, doc.PublishedYear)
}

func TestOpenLibraryFetchNotFound(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOpenLibraryClient(testConfig())
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "OL0M")
	assert.NoError(t, err)
	assert.Nil(t, doc)

	// 404 is a definitive answer; it must not be retried
	assert.Equal(t, int32(1), requests.Load())
}

func TestOpenLibraryFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"title": "Recovered"}`))
	}))
	defer server.Close()

	client := NewOpenLibraryClient(testConfig())
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "OL1M")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Recovered", doc.Title)
	assert.Equal(t, int32(3), requests.Load())
}

func TestOpenLibraryFetchExhaustsRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenLibraryClient(testConfig())
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "OL1M")
	assert.Error(t, err)
	assert.Nil(t, doc)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenLibraryFetchISBN10Fallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": "Old Edition", "isbn_10": ["0143039091"]}`))
	}))
	defer server.Close()

	client := NewOpenLibraryClient(testConfig())
	client.SetBaseURL(server.URL)

	doc, err := client.Fetch(context.Background(), "OL2M")
	require.NoError(t, err)
	assert.Equal(t, "0143039091", doc.ISBN)
}

func TestDecodeOpenLibraryText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", decodeOpenLibraryText([]byte(`"plain"`)))
	assert.Equal(t, "wrapped", decodeOpenLibraryText([]byte(`{"type": "/type/text", "value": "wrapped"}`)))
	assert.Equal(t, "", decodeOpenLibraryText(nil))
	assert.Equal(t, "", decodeOpenLibraryText([]byte(`12`)))
}

func TestYearFromPublishDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		date string
		want int
	}{
		{"May 12, 2009", 2009},
		{"1999", 1999},
		{"2001-07-15", 2001},
		{"unknown", 0},
		{"", 0},
		{"12 May", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, yearFromPublishDate(tt.date), "date %q", tt.date)
	}
}
