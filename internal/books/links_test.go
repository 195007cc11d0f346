package books

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffiliateLinks(t *testing.T) {
	t.Parallel()

	t.Run("isbn-13 gets amazon and bookshop", func(t *testing.T) {
		links := AffiliateLinks("9780441478125", "openshelf-20")
		require.Len(t, links, 2)

		assert.Equal(t, "amazon", links[0].Retailer)
		assert.Contains(t, links[0].URL, "k=9780441478125")
		assert.Contains(t, links[0].URL, "tag=openshelf-20")

		assert.Equal(t, "bookshop", links[1].Retailer)
		assert.Equal(t, "https://bookshop.org/book/9780441478125", links[1].URL)
	})

	t.Run("isbn-10 gets amazon only", func(t *testing.T) {
		links := AffiliateLinks("0441478123", "")
		require.Len(t, links, 1)
		assert.Equal(t, "amazon", links[0].Retailer)
		assert.NotContains(t, links[0].URL, "tag=")
	})

	t.Run("hyphenated isbn is normalised", func(t *testing.T) {
		links := AffiliateLinks("978-0-441-47812-5", "")
		require.Len(t, links, 2)
		assert.Contains(t, links[0].URL, "9780441478125")
	})

	t.Run("no isbn means no links", func(t *testing.T) {
		assert.Nil(t, AffiliateLinks("", "openshelf-20"))
		assert.Nil(t, AffiliateLinks("   ", "openshelf-20"))
	})
}

func TestAmazonLink(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.amazon.com/s?k=9780441478125", AmazonLink("9780441478125", ""))
	assert.Equal(t, "https://www.amazon.com/s?k=9780441478125&tag=openshelf-20", AmazonLink("9780441478125", "openshelf-20"))
}
