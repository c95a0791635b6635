// Package storage downloads submitted leaf images from object storage.
//
// Images are addressed by "<container>/<object-name>" paths. The container is a
// GCS or S3 bucket, or a directory below the local root.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
)

// Backend names accepted by New.
const (
	BackendGCS   = "gcs"
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Locator identifies one object in a container.
type Locator struct {
	Container string
	Object    string
}

// String returns the "<container>/<object>" form.
func (l Locator) String() string {
	return l.Container + "/" + l.Object
}

// ParseLocator splits an image path at its first slash.
func ParseLocator(imagePath string) (Locator, error) {
	parts := strings.SplitN(strings.TrimPrefix(imagePath, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, errors.Newf("invalid image path %q: want <container>/<object-name>", imagePath).
			Component("storage").
			Category(errors.CategoryValidation).
			Context("image_path", imagePath).
			Build()
	}
	return Locator{Container: parts[0], Object: parts[1]}, nil
}

// Downloader copies an object into w and returns the bytes written.
type Downloader interface {
	Download(ctx context.Context, loc Locator, w io.Writer) (int64, error)
	Name() string
	Close() error
}

// New builds the downloader selected by settings.Backend.
func New(ctx context.Context, settings *conf.StorageSettings) (Downloader, error) {
	switch settings.Backend {
	case BackendGCS:
		return NewGCSDownloader(ctx, &settings.GCS)
	case BackendS3:
		return NewS3Downloader(ctx, &settings.S3)
	case BackendLocal, "":
		return NewLocalDownloader(settings.Local.Root)
	default:
		return nil, errors.Newf("unsupported storage backend %q", settings.Backend).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Backend).
			Build()
	}
}

// downloadError wraps a backend failure as an image-download error.
func downloadError(err error, backend string, loc Locator, notFound bool) error {
	builder := errors.New(fmt.Errorf("download %s: %w", loc, err)).
		Component("storage").
		Category(errors.CategoryDownload).
		Context("backend", backend).
		Context("container", loc.Container).
		Context("object", loc.Object)
	if notFound {
		builder = builder.Context("reason", "not_found")
	}
	return builder.Build()
}

// IsNotFound reports whether err is a download error for a missing object.
func IsNotFound(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) || ee.Category != errors.CategoryDownload {
		return false
	}
	return ee.GetContext()["reason"] == "not_found"
}
