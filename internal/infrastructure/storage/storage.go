// Package storage implements ports.BlobSink on the local filesystem and on
// S3-compatible object storage. The backend is chosen once, at startup.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/phonebook/contacts-api/internal/core/domain"
	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/pkg/config"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// New returns the sink selected by cfg.Remote.
func New(ctx context.Context, cfg config.StorageConfig) (ports.BlobSink, error) {
	if cfg.Remote {
		return NewS3Sink(ctx, cfg.S3)
	}
	return NewLocalSink(cfg.UploadDir, cfg.PublicBaseURL)
}

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// objectName returns a fresh random name that keeps a sane extension, taken
// from the original filename or, failing that, from the content type.
// Names never repeat, so retrying a failed store only leaves a duplicate.
func objectName(file ports.Upload) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(file.Filename)))
	if !safeExt.MatchString(ext) {
		ext = ""
		if m := mimetype.Lookup(file.ContentType); m != nil {
			ext = m.Extension()
		}
	}
	return uuid.NewString() + ext
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/")
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
