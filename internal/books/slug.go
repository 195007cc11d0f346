package books

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const maxSlugTitleLength = 60

// Slugify derives a URL slug from a book title, suffixed with a short hash of
// the dedupe key so distinct editions of identically titled books never
// collide on the slug's unique index.
func Slugify(title, dedupeKey string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash

	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxSlugTitleLength {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "book"
	}

	h := fnv.New32a()
	h.Write([]byte(dedupeKey))
	return fmt.Sprintf("%s-%04x", slug, h.Sum32()&0xffff)
}
