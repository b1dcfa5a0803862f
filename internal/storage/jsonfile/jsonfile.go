// Package jsonfile provides a file-backed storage driver for single-node
// and development installs. Release metadata is read from one JSON document
// published by the management tooling; this process treats it as read-only
// and reloads it on demand.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
)

type document struct {
	Deployments map[string]deploymentEntry `json:"deployments"`
}

type deploymentEntry struct {
	History []domain.Package `json:"history"`
}

// Store implements storage.Storage from a JSON metadata file plus a
// filesystem blob root.
type Store struct {
	path  string
	blobs storage.BlobDir

	mu          sync.RWMutex
	deployments map[string]deploymentEntry
}

// New loads the metadata file and returns a Store.
func New(path, blobDir string) (*Store, error) {
	s := &Store{path: path, blobs: storage.NewBlobDir(blobDir)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

var _ storage.Storage = (*Store)(nil)

// Reload re-reads the metadata file and swaps the in-memory view whole.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode store file %s: %w", s.path, err)
	}
	if doc.Deployments == nil {
		doc.Deployments = make(map[string]deploymentEntry)
	}
	// The Postgres driver enforces rollout in [1,100] with a schema check;
	// hand-edited JSON gets the same normalization here so the two drivers
	// agree. Missing or out-of-range means fully rolled out.
	for key, entry := range doc.Deployments {
		for i := range entry.History {
			if r := entry.History[i].Rollout; r <= 0 || r > 100 {
				entry.History[i].Rollout = 100
			}
		}
		doc.Deployments[key] = entry
	}
	s.mu.Lock()
	s.deployments = doc.Deployments
	s.mu.Unlock()
	return nil
}

// GetCurrentPackage returns the latest release for a deployment key.
func (s *Store) GetCurrentPackage(_ context.Context, deploymentKey string) (*domain.Package, error) {
	s.mu.RLock()
	entry, ok := s.deployments[deploymentKey]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if len(entry.History) == 0 {
		return nil, nil
	}
	pkg := entry.History[len(entry.History)-1]
	return &pkg, nil
}

// GetPackageHistory returns all releases for a key, oldest first.
func (s *Store) GetPackageHistory(_ context.Context, deploymentKey string) ([]domain.Package, error) {
	s.mu.RLock()
	entry, ok := s.deployments[deploymentKey]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	history := make([]domain.Package, len(entry.History))
	copy(history, entry.History)
	return history, nil
}

// GetBlob reads payload bytes by reference.
func (s *Store) GetBlob(ctx context.Context, ref string) ([]byte, error) {
	return s.blobs.GetBlob(ctx, ref)
}

// BlobExists reports whether a blob reference resolves.
func (s *Store) BlobExists(ctx context.Context, ref string) (bool, error) {
	return s.blobs.BlobExists(ctx, ref)
}

// Ping verifies the metadata file is still readable.
func (s *Store) Ping(_ context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", storage.ErrConnectionFailed, err)
		}
		return err
	}
	return nil
}
