package books

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var slugSuffix = regexp.MustCompile(`-[0-9a-f]{4}$`)

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		title      string
		wantPrefix string
	}{
		{"simple title", "The Go Programming Language", "the-go-programming-language"},
		{"punctuation stripped", "What If? Serious Scientific Answers", "what-if-serious-scientific-answers"},
		{"unicode letters kept", "Café des Rêves", "café-des-rêves"},
		{"leading and trailing junk", "  ---Hello, World!---  ", "hello-world"},
		{"empty title falls back", "", "book"},
		{"symbols only falls back", "!!! ???", "book"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug := Slugify(tt.title, "openlibrary|OL1M")
			assert.True(t, strings.HasPrefix(slug, tt.wantPrefix+"-"), "slug %q", slug)
			assert.Regexp(t, slugSuffix, slug)
		})
	}
}

func TestSlugifyDeterministic(t *testing.T) {
	t.Parallel()

	a := Slugify("Dune", "openlibrary|OL1M")
	b := Slugify("Dune", "openlibrary|OL1M")
	assert.Equal(t, a, b)
}

func TestSlugifyDistinguishesEditions(t *testing.T) {
	t.Parallel()

	// Same title from different sources must not collide
	a := Slugify("Dune", "openlibrary|OL1M")
	b := Slugify("Dune", "googlebooks|xyz")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "dune-"))
	assert.True(t, strings.HasPrefix(b, "dune-"))
}

func TestSlugifyBoundsLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("verylongword ", 30)
	slug := Slugify(long, "openlibrary|OL1M")

	// Title portion is capped; the suffix adds a dash and four hex chars
	assert.LessOrEqual(t, len(slug), maxSlugTitleLength+6)
}

func TestSlugifyFallback(t *testing.T) {
	t.Parallel()

	slug := Slugify("", "openlibrary|OL1M")
	assert.True(t, strings.HasPrefix(slug, "book-"))
}
