package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// DiskBlobs keeps uploaded PDFs in a local directory. It plays the object
// store role when Quill runs as a single process.
type DiskBlobs struct {
	dir string
}

// NewDiskBlobs creates dir if needed.
func NewDiskBlobs(dir string) (*DiskBlobs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskBlobs{dir: dir}, nil
}

func (d *DiskBlobs) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q: %w", key, model.ErrValidation)
	}
	return filepath.Join(d.dir, clean), nil
}

func (d *DiskBlobs) UploadRaw(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// PresignURL returns a file URL. Only DiskBlobs.Fetch can read it.
func (d *DiskBlobs) PresignURL(_ context.Context, key string) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

// Fetch reads the blob stored under file.Key. A key this store never saw
// returns model.ErrNotFound so a fallback fetcher can take over.
func (d *DiskBlobs) Fetch(_ context.Context, file model.File) ([]byte, error) {
	p, err := d.path(file.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetch, err)
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s: %w", file.Key, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w: %w", file.Key, model.ErrFetch, err)
	}
	return data, nil
}
