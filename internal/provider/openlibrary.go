package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const openLibraryBaseURL = "https://openlibrary.org"

// OpenLibraryClient fetches edition records from the Open Library books API
type OpenLibraryClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	retries    int
	retryDelay time.Duration
}

// NewOpenLibraryClient creates an Open Library fetch client
func NewOpenLibraryClient(config *Config) *OpenLibraryClient {
	if config == nil {
		config = DefaultConfig()
	}
	return &OpenLibraryClient{
		baseURL:    openLibraryBaseURL,
		httpClient: config.httpClient(),
		userAgent:  config.UserAgent,
		retries:    config.RetryAttempts,
		retryDelay: config.RetryDelay,
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *OpenLibraryClient) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}

// openLibraryEdition mirrors the subset of /books/{olid}.json we consume
type openLibraryEdition struct {
	Title       string          `json:"title"`
	ByStatement string          `json:"by_statement"`
	Description json.RawMessage `json:"description"`
	Covers      []int64         `json:"covers"`
	ISBN13      []string        `json:"isbn_13"`
	ISBN10      []string        `json:"isbn_10"`
	PublishDate string          `json:"publish_date"`
}

// Fetch retrieves the edition identified by an Open Library OLID (e.g.
// OL7353617M). A 404 returns (nil, nil); transport and service errors are
// retried a bounded number of times before surfacing.
func (c *OpenLibraryClient) Fetch(ctx context.Context, sourceID string) (*Document, error) {
	url := fmt.Sprintf("%s/books/%s.json", c.baseURL, sourceID)

	body, notFound, err := fetchJSON(ctx, c.httpClient, url, c.userAgent, c.retries, c.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("openlibrary fetch %s: %w", sourceID, err)
	}
	if notFound {
		log.Debug().Str("source_id", sourceID).Msg("Open Library edition not found")
		return nil, nil
	}

	var edition openLibraryEdition
	if err := json.Unmarshal(body, &edition); err != nil {
		return nil, fmt.Errorf("openlibrary parse %s: %w", sourceID, err)
	}

	doc := &Document{
		Source:        SourceOpenLibrary,
		SourceID:      sourceID,
		Title:         edition.Title,
		Description:   decodeOpenLibraryText(edition.Description),
		PublishedYear: yearFromPublishDate(edition.PublishDate),
	}

	if edition.ByStatement != "" {
		doc.Authors = []string{strings.TrimSuffix(strings.TrimSpace(edition.ByStatement), ".")}
	}
	if len(edition.ISBN13) > 0 {
		doc.ISBN = edition.ISBN13[0]
	} else if len(edition.ISBN10) > 0 {
		doc.ISBN = edition.ISBN10[0]
	}
	if len(edition.Covers) > 0 && edition.Covers[0] > 0 {
		doc.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", edition.Covers[0])
	}

	return doc, nil
}

// decodeOpenLibraryText handles Open Library's habit of returning either a
// bare string or a {"type": ..., "value": ...} object for text fields
func decodeOpenLibraryText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	return ""
}

// yearFromPublishDate extracts a four-digit year from free-form publish dates
// like "May 12, 2009" or "1999"
func yearFromPublishDate(date string) int {
	fields := strings.FieldsFunc(date, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		if len(f) == 4 {
			if year, err := strconv.Atoi(f); err == nil {
				return year
			}
		}
	}
	return 0
}

// fetchJSON performs a GET with bounded retries on transport and 5xx
// failures. Returns notFound=true for a 404 without consuming retries.
func fetchJSON(ctx context.Context, client *http.Client, url, userAgent string, retries int, retryDelay time.Duration) ([]byte, bool, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Accept", "application/json")
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, true, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("provider returned status %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, false, fmt.Errorf("provider returned status %d", resp.StatusCode)
		case readErr != nil:
			lastErr = readErr
			continue
		default:
			return body, false, nil
		}
	}

	return nil, false, lastErr
}
