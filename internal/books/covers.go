package books

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// coverClient bounds cover downloads independently of the provider clients
var coverClient = &http.Client{Timeout: 20 * time.Second}

// maxCoverBytes caps how large a cover image we are willing to mirror
const maxCoverBytes = 5 << 20

// mirrorCover downloads a provider-hosted cover image, stores it in blob
// storage, and repoints the book's cover_url at our copy. Covers are stored
// under the book id, so a re-upsert of the same book finds the existing
// object and skips the provider round trip.
func (s *Service) mirrorCover(ctx context.Context, bookID, coverURL string) error {
	path := bookID

	if _, err := s.covers.Download(ctx, s.coverBucket, path); err == nil {
		log.Debug().
			Str("book_id", bookID).
			Msg("Cover already mirrored, skipping download")
		return s.pointCoverAt(ctx, bookID, path)
	}

	data, contentType, err := downloadCover(ctx, coverURL)
	if err != nil {
		return err
	}

	if _, err := s.covers.Upload(ctx, s.coverBucket, path, data, contentType); err != nil {
		return err
	}

	return s.pointCoverAt(ctx, bookID, path)
}

// pointCoverAt repoints the book row's cover_url at our mirrored object
func (s *Service) pointCoverAt(ctx context.Context, bookID, path string) error {
	publicURL := s.covers.PublicURL(s.coverBucket, path)
	if _, err := s.db.ExecContext(ctx, `
		UPDATE books SET cover_url = $1, updated_at = NOW() WHERE id = $2
	`, publicURL, bookID); err != nil {
		return fmt.Errorf("failed to update cover url: %w", err)
	}

	log.Debug().
		Str("book_id", bookID).
		Str("cover_url", publicURL).
		Msg("Mirrored cover image")
	return nil
}

func downloadCover(ctx context.Context, coverURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := coverClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("cover download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read cover body: %w", err)
	}
	if len(data) > maxCoverBytes {
		return nil, "", fmt.Errorf("cover image exceeds %d bytes", maxCoverBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
