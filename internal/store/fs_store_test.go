package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func writeTemp(t *testing.T, data string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upstream-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp: %v", err)
	}
	return f.Name()
}

func TestPublishThenFindRoundTrip(t *testing.T) {
	s := newTestStore(t)
	modTime := time.Now().Add(-time.Hour).Round(time.Second)

	entry, err := s.Publish("a/b/c.jar", writeTemp(t, "payload"), modTime)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if entry.SizeBytes != int64(len("payload")) {
		t.Fatalf("size mismatch: %d", entry.SizeBytes)
	}
	if !entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: got %v want %v", entry.ModTime, modTime)
	}

	result, err := s.Find("a/b/c.jar")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestFindMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Find("nope/here"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPublishWithoutLastModifiedUsesNow(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().Add(-time.Second)

	entry, err := s.Publish("p/q", writeTemp(t, "x"), time.Time{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if entry.ModTime.Before(before) {
		t.Fatalf("expected modtime near now, got %v", entry.ModTime)
	}
}

func TestPublishBytesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	modTime := time.Now().Add(-time.Minute).Round(time.Second)

	entry, err := s.PublishBytes("in-memory/body", []byte("hello"), modTime)
	if err != nil {
		t.Fatalf("publish bytes: %v", err)
	}
	if entry.SizeBytes != 5 {
		t.Fatalf("size mismatch: %d", entry.SizeBytes)
	}

	result, err := s.Find("in-memory/body")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	if string(body) != "hello" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Publish("x/y", writeTemp(t, "z"), time.Time{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Remove("x/y"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Find("x/y"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestFindIgnoresDirectories(t *testing.T) {
	s := newTestStore(t).(*fsStore)
	filePath, err := s.resolve("some/dir")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := s.Find("some/dir"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestResolveRejectsDotDot(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Find("../escape"); err != ErrInvalidPath {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestPublishAcrossSimulatedFilesystems(t *testing.T) {
	// Exercise the copy+remove fallback path directly, since forcing a
	// real EXDEV in a unit test requires two distinct mounted devices.
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.WriteFile(src, []byte("cross-device"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	dst := filepath.Join(dir, "nested", "dst")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := publishInto(src, dst); err != nil {
		t.Fatalf("publishInto: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "cross-device" {
		t.Fatalf("data mismatch: %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected src removed, stat err=%v", err)
	}
}
