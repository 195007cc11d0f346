package books

import (
	"fmt"
	"net/url"
	"strings"
)

// Link is an outbound retailer link for a book
type Link struct {
	Retailer string `json:"retailer"`
	URL      string `json:"url"`
}

// AffiliateLinks formats the retailer links for a book. Books without an
// ISBN get no links; the Amazon link only carries a tag when one is
// configured.
func AffiliateLinks(isbn, amazonTag string) []Link {
	isbn = strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if isbn == "" {
		return nil
	}

	links := []Link{
		{Retailer: "amazon", URL: AmazonLink(isbn, amazonTag)},
	}
	if len(isbn) == 13 {
		links = append(links, Link{
			Retailer: "bookshop",
			URL:      fmt.Sprintf("https://bookshop.org/book/%s", isbn),
		})
	}
	return links
}

// AmazonLink formats an Amazon search link for an ISBN, with the affiliate
// tag appended when present
func AmazonLink(isbn, tag string) string {
	link := "https://www.amazon.com/s?k=" + url.QueryEscape(isbn)
	if tag != "" {
		link += "&tag=" + url.QueryEscape(tag)
	}
	return link
}
