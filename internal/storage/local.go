package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/leafnet/leafnet-go/internal/errors"
)

// LocalDownloader reads objects from <root>/<container>/<object>.
type LocalDownloader struct {
	root string
}

// NewLocalDownloader returns a downloader rooted at root.
func NewLocalDownloader(root string) (*LocalDownloader, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Context("root", root).
			Build()
	}
	return &LocalDownloader{root: abs}, nil
}

// Name implements Downloader.
func (d *LocalDownloader) Name() string { return BackendLocal }

// Close implements Downloader.
func (d *LocalDownloader) Close() error { return nil }

// Download copies the object file into w.
func (d *LocalDownloader) Download(ctx context.Context, loc Locator, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, downloadError(err, BackendLocal, loc, false)
	}

	path, err := d.resolve(loc)
	if err != nil {
		return 0, downloadError(err, BackendLocal, loc, false)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, downloadError(err, BackendLocal, loc, errors.Is(err, fs.ErrNotExist))
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, downloadError(err, BackendLocal, loc, false)
	}
	return n, nil
}

// resolve maps loc below root and refuses paths escaping it.
func (d *LocalDownloader) resolve(loc Locator) (string, error) {
	path := filepath.Join(d.root, loc.Container, filepath.FromSlash(loc.Object))
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.NewStd("object path escapes storage root")
	}
	return path, nil
}
