package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const googleBooksBaseURL = "https://www.googleapis.com/books/v1"

// GoogleBooksClient fetches volume records from the Google Books API
type GoogleBooksClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
	retries    int
	retryDelay time.Duration
}

// NewGoogleBooksClient creates a Google Books fetch client. The API key is
// optional; unauthenticated requests carry a lower quota.
func NewGoogleBooksClient(config *Config, apiKey string) *GoogleBooksClient {
	if config == nil {
		config = DefaultConfig()
	}
	return &GoogleBooksClient{
		baseURL:    googleBooksBaseURL,
		apiKey:     apiKey,
		httpClient: config.httpClient(),
		userAgent:  config.UserAgent,
		retries:    config.RetryAttempts,
		retryDelay: config.RetryDelay,
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *GoogleBooksClient) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}

// googleBooksVolume mirrors the subset of the volumes API we consume
type googleBooksVolume struct {
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		Description         string   `json:"description"`
		PublishedDate       string   `json:"publishedDate"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

// Fetch retrieves the volume identified by a Google Books volume ID. A 404
// returns (nil, nil); transport and service errors are retried a bounded
// number of times before surfacing.
func (c *GoogleBooksClient) Fetch(ctx context.Context, sourceID string) (*Document, error) {
	endpoint := fmt.Sprintf("%s/volumes/%s", c.baseURL, url.PathEscape(sourceID))
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	body, notFound, err := fetchJSON(ctx, c.httpClient, endpoint, c.userAgent, c.retries, c.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("googlebooks fetch %s: %w", sourceID, err)
	}
	if notFound {
		log.Debug().Str("source_id", sourceID).Msg("Google Books volume not found")
		return nil, nil
	}

	var volume googleBooksVolume
	if err := json.Unmarshal(body, &volume); err != nil {
		return nil, fmt.Errorf("googlebooks parse %s: %w", sourceID, err)
	}

	info := volume.VolumeInfo
	doc := &Document{
		Source:        SourceGoogleBooks,
		SourceID:      sourceID,
		Title:         info.Title,
		Authors:       info.Authors,
		Description:   info.Description,
		CoverURL:      info.ImageLinks.Thumbnail,
		PublishedYear: yearFromPublishedDate(info.PublishedDate),
	}

	// Prefer ISBN-13, fall back to ISBN-10
	for _, id := range info.IndustryIdentifiers {
		if id.Type == "ISBN_13" {
			doc.ISBN = id.Identifier
			break
		}
		if id.Type == "ISBN_10" && doc.ISBN == "" {
			doc.ISBN = id.Identifier
		}
	}

	return doc, nil
}

// yearFromPublishedDate parses the leading year of dates like "2009-05-12"
func yearFromPublishedDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
