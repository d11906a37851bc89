// Package media manages the two temporary-file lifecycles around messaging:
// outgoing attachments staged by the upload layer, deleted unconditionally
// once their send attempt finishes, and inbound attachments extracted from
// conversation history, published under generated names and retained for a
// fixed window.
package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rfakhoury/wagate/driver"
)

// DefaultRetention is how long extracted inbound media stays retrievable.
const DefaultRetention = time.Hour

// Store owns the public media directory.
type Store struct {
	publicDir string
	publicURL string
	retention time.Duration
	log       *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetention overrides the inbound-media retention window.
func WithRetention(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore builds a Store writing extracted media into publicDir and shaping
// returned URLs under publicURL (e.g. "/media"). The directory is created up
// front; failure is fatal to startup.
func NewStore(publicDir, publicURL string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(publicDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %s: %w", publicDir, err)
	}
	s := &Store{
		publicDir: publicDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		retention: DefaultRetention,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CleanupOutgoing deletes a staged outgoing attachment. It is called after
// the send attempt regardless of outcome; a deletion failure is logged and
// swallowed, because the send it was staged for has already concluded.
func (s *Store) CleanupOutgoing(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("staged attachment cleanup failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Saved describes one published inbound attachment.
type Saved struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	// ExpiresAt is when the retention window closes; the URL is not
	// guaranteed valid past it.
	ExpiresAt time.Time `json:"expiresAt"`
}

// SaveInbound publishes an extracted attachment under a generated unique
// filename and returns its public location.
func (s *Store) SaveInbound(m driver.Media) (*Saved, error) {
	name := uuid.NewString() + extensionFor(m)
	path := filepath.Join(s.publicDir, name)
	if err := os.WriteFile(path, m.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write inbound media: %w", err)
	}
	return &Saved{
		Filename:  name,
		URL:       s.publicURL + "/" + name,
		MimeType:  m.MimeType,
		ExpiresAt: time.Now().Add(s.retention),
	}, nil
}

// PurgeExpired removes published files older than the retention window and
// reports how many were removed. The scheduled sweep that calls it lives
// outside this module; tests call it directly.
func (s *Store) PurgeExpired() (int, error) {
	entries, err := os.ReadDir(s.publicDir)
	if err != nil {
		return 0, fmt.Errorf("read media dir: %w", err)
	}
	cutoff := time.Now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.publicDir, e.Name())); err != nil {
				s.log.Warn("expired media removal failed",
					slog.String("file", e.Name()), slog.String("error", err.Error()))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// extensionFor picks a filename extension from the media's declared type,
// falling back to the original filename's extension.
func extensionFor(m driver.Media) string {
	switch m.MimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	}
	if ext := filepath.Ext(m.Filename); ext != "" {
		return ext
	}
	return ".bin"
}
