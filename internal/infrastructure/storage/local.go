package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/phonebook/contacts-api/internal/core/ports"
)

// UploadsRoute is the path prefix the router serves the upload directory on.
const UploadsRoute = "/uploads"

// LocalSink writes photos into a directory served by the API itself.
type LocalSink struct {
	dir     string
	baseURL string
}

// NewLocalSink creates dir if needed. Stored files are addressed as
// <publicBaseURL>/uploads/<name>.
func NewLocalSink(dir, publicBaseURL string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalSink{
		dir:     dir,
		baseURL: joinURL(publicBaseURL, UploadsRoute),
	}, nil
}

// Dir is the directory photos are written to.
func (s *LocalSink) Dir() string { return s.dir }

func (s *LocalSink) Backend() string { return BackendLocal }

// Store writes to a temporary file first and renames it into place, so a
// failed write never leaves a partial photo under its final name.
func (s *LocalSink) Store(ctx context.Context, file ports.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageErr("local store", err)
	}

	name := objectName(file)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", storageErr("local store", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, file.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", storageErr("local store", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", storageErr("local store", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return "", storageErr("local store", err)
	}

	return joinURL(s.baseURL, name), nil
}

// Remove deletes a file previously returned by Store. URLs that do not
// point into this sink, and files that are already gone, are ignored.
func (s *LocalSink) Remove(_ context.Context, url string) error {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local remove: %w", err)
	}
	return nil
}
