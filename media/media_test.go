package media

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rfakhoury/wagate/driver"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	s, err := NewStore(t.TempDir(), "/media", opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveInboundPublishesUniqueFiles(t *testing.T) {
	s := newTestStore(t)

	a, err := s.SaveInbound(driver.Media{MimeType: "image/jpeg", Data: []byte("jpeg-bytes")})
	if err != nil {
		t.Fatalf("SaveInbound: %v", err)
	}
	b, err := s.SaveInbound(driver.Media{MimeType: "image/jpeg", Data: []byte("other")})
	if err != nil {
		t.Fatalf("SaveInbound: %v", err)
	}
	if a.Filename == b.Filename {
		t.Fatal("generated filenames collide")
	}
	if !strings.HasSuffix(a.Filename, ".jpg") {
		t.Fatalf("filename %q lacks mime-derived extension", a.Filename)
	}
	if !strings.HasPrefix(a.URL, "/media/") {
		t.Fatalf("URL %q not under public prefix", a.URL)
	}
	data, err := os.ReadFile(filepath.Join(s.publicDir, a.Filename))
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("published file unreadable: %v", err)
	}
	if time.Until(a.ExpiresAt) > DefaultRetention || time.Until(a.ExpiresAt) < DefaultRetention-time.Minute {
		t.Fatalf("expiry %v not ~one retention window out", a.ExpiresAt)
	}
}

func TestPurgeExpiredRemovesOnlyOldFiles(t *testing.T) {
	s := newTestStore(t, WithRetention(time.Hour))

	fresh, _ := s.SaveInbound(driver.Media{MimeType: "image/png", Data: []byte("fresh")})
	stale, _ := s.SaveInbound(driver.Media{MimeType: "image/png", Data: []byte("stale")})
	stalePath := filepath.Join(s.publicDir, stale.Filename)
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("age file: %v", err)
	}

	removed, err := s.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatal("stale file survived purge")
	}
	if _, err := os.Stat(filepath.Join(s.publicDir, fresh.Filename)); err != nil {
		t.Fatal("fresh file removed by purge")
	}
}

func TestCleanupOutgoingSwallowsFailures(t *testing.T) {
	s := newTestStore(t)

	staged := filepath.Join(t.TempDir(), "upload.bin")
	if err := os.WriteFile(staged, []byte("payload"), 0o600); err != nil {
		t.Fatalf("stage file: %v", err)
	}
	s.CleanupOutgoing(staged)
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged attachment not deleted")
	}

	// Missing file and empty path must both be harmless.
	s.CleanupOutgoing(staged)
	s.CleanupOutgoing("")
}

func TestExtensionFallbacks(t *testing.T) {
	if ext := extensionFor(driver.Media{Filename: "report.xlsx"}); ext != ".xlsx" {
		t.Fatalf("filename fallback = %q, want .xlsx", ext)
	}
	if ext := extensionFor(driver.Media{}); ext != ".bin" {
		t.Fatalf("default fallback = %q, want .bin", ext)
	}
}
