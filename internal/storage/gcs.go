package storage

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"google.golang.org/api/option"
)

// GCSDownloader reads objects from Google Cloud Storage buckets.
type GCSDownloader struct {
	client *storage.Client
}

// NewGCSDownloader creates a GCS client. An empty credentials file uses
// application default credentials.
func NewGCSDownloader(ctx context.Context, settings *conf.GCSSettings) (*GCSDownloader, error) {
	var opts []option.ClientOption
	if settings.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(settings.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Context("backend", BackendGCS).
			Context("operation", "create_client").
			Build()
	}

	GetLogger().Info("gcs client created", logger.String("project_id", settings.ProjectID))
	return &GCSDownloader{client: client}, nil
}

// Name implements Downloader.
func (d *GCSDownloader) Name() string { return BackendGCS }

// Close releases the client.
func (d *GCSDownloader) Close() error { return d.client.Close() }

// Download streams the object into w.
func (d *GCSDownloader) Download(ctx context.Context, loc Locator, w io.Writer) (int64, error) {
	r, err := d.client.Bucket(loc.Container).Object(loc.Object).NewReader(ctx)
	if err != nil {
		notFound := errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist)
		return 0, downloadError(err, BackendGCS, loc, notFound)
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, downloadError(err, BackendGCS, loc, false)
	}
	return n, nil
}
