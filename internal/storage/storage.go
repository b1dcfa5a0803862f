package storage

import (
	"context"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

// Storage is the durable source of truth for deployment keys, package
// history and payload blobs. Callers depend only on this interface; the
// backing driver (postgres or jsonfile) is selected at startup.
type Storage interface {
	// GetCurrentPackage resolves a deployment key to its current release.
	// Unknown keys return ErrNotFound; a known key with no releases yet
	// returns (nil, nil).
	GetCurrentPackage(ctx context.Context, deploymentKey string) (*domain.Package, error)

	// GetPackageHistory returns the append-only release log for a key,
	// oldest first. Unknown keys return ErrNotFound.
	GetPackageHistory(ctx context.Context, deploymentKey string) ([]domain.Package, error)

	// GetBlob reads payload bytes by blob reference.
	GetBlob(ctx context.Context, ref string) ([]byte, error)

	// BlobExists reports whether a blob reference resolves to a readable
	// object.
	BlobExists(ctx context.Context, ref string) (bool, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
