package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// BlobDir serves payload bytes from a filesystem root. Blob references are
// content hashes assigned at release time; anything resembling a path is
// rejected.
type BlobDir struct {
	root string
}

// NewBlobDir returns a blob store rooted at dir.
func NewBlobDir(dir string) BlobDir {
	return BlobDir{root: dir}
}

func (b BlobDir) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", ErrNotFound
	}
	return filepath.Join(b.root, ref), nil
}

// GetBlob reads the payload for a blob reference.
func (b BlobDir) GetBlob(_ context.Context, ref string) ([]byte, error) {
	path, err := b.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// BlobExists reports whether the reference resolves to a readable object.
func (b BlobDir) BlobExists(_ context.Context, ref string) (bool, error) {
	path, err := b.path(ref)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
