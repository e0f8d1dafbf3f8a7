package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/pkg/config"
)

func TestLocalSink_StoreAndRemove(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir, "http://localhost:8080/")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	url, err := sink.Store(context.Background(), ports.Upload{
		Filename:    "Ann.PNG",
		ContentType: "image/png",
		Body:        strings.NewReader("fake-png"),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}

	name := filepath.Base(url)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "fake-png" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := sink.Remove(context.Background(), url); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Fatalf("file should be gone, stat err=%v", err)
	}

	// Removing twice is harmless.
	if err := sink.Remove(context.Background(), url); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestLocalSink_RetriesProduceDistinctObjects(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	a, _ := sink.Store(context.Background(), ports.Upload{Filename: "a.jpg", Body: strings.NewReader("1")})
	b, _ := sink.Store(context.Background(), ports.Upload{Filename: "a.jpg", Body: strings.NewReader("1")})
	if a == "" || a == b {
		t.Fatalf("expected two distinct urls, got %q and %q", a, b)
	}
}

func TestLocalSink_ExtensionFromContentType(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	url, err := sink.Store(context.Background(), ports.Upload{
		Filename:    "photo.with spaces and a very long extension",
		ContentType: "image/jpeg",
		Body:        strings.NewReader("x"),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasSuffix(url, ".jpg") {
		t.Fatalf("expected .jpg extension, got %q", url)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalSink_StoreFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir, "http://localhost")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	_, err = sink.Store(context.Background(), ports.Upload{Filename: "a.png", Body: failingReader{}})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("failed store must not leave files behind, found %d", len(entries))
	}
}

func TestLocalSink_RemoveIgnoresForeignURLs(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.png")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink, _ := NewLocalSink(dir, "http://localhost")

	for _, url := range []string{
		"https://cdn.example.com/keep.png",
		"http://localhost/uploads/../keep.png",
		"http://localhost/uploads/",
	} {
		if err := sink.Remove(context.Background(), url); err != nil {
			t.Errorf("Remove(%q): %v", url, err)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("foreign url removal touched local file: %v", err)
	}
}

func TestNew_SelectsLocalByDefault(t *testing.T) {
	sink, err := New(context.Background(), config.StorageConfig{
		UploadDir:     t.TempDir(),
		PublicBaseURL: "http://localhost",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if sink.Backend() != BackendLocal {
		t.Fatalf("expected local backend, got %s", sink.Backend())
	}
}
