package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
)

// Store implements storage.Storage on PostgreSQL with payload bytes served
// from a filesystem blob root.
type Store struct {
	pool  *pgxpool.Pool
	blobs storage.BlobDir
}

// New constructs a Store.
func New(pool *pgxpool.Pool, blobDir string) *Store {
	return &Store{pool: pool, blobs: storage.NewBlobDir(blobDir)}
}

var _ storage.Storage = (*Store)(nil)

const packageColumns = `label, package_hash, app_version, description,
		is_disabled, is_mandatory, rollout, blob_url, blob_ref, size,
		release_method, upload_time, diff_against`

// GetCurrentPackage returns the latest release for a deployment key.
func (s *Store) GetCurrentPackage(ctx context.Context, deploymentKey string) (*domain.Package, error) {
	const query = `SELECT ` + packageColumns + `
		FROM packages WHERE deployment_key = $1
		ORDER BY id DESC LIMIT 1`
	row := s.pool.QueryRow(ctx, query, deploymentKey)
	pkg, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := s.keyExists(ctx, deploymentKey); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, translate(err)
	}
	return pkg, nil
}

// GetPackageHistory returns all releases for a key, oldest first.
func (s *Store) GetPackageHistory(ctx context.Context, deploymentKey string) ([]domain.Package, error) {
	if err := s.keyExists(ctx, deploymentKey); err != nil {
		return nil, err
	}
	const query = `SELECT ` + packageColumns + `
		FROM packages WHERE deployment_key = $1
		ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, deploymentKey)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	history := make([]domain.Package, 0)
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, translate(err)
		}
		history = append(history, *pkg)
	}
	return history, translate(rows.Err())
}

// GetBlob reads payload bytes by reference.
func (s *Store) GetBlob(ctx context.Context, ref string) ([]byte, error) {
	return s.blobs.GetBlob(ctx, ref)
}

// BlobExists reports whether a blob reference resolves.
func (s *Store) BlobExists(ctx context.Context, ref string) (bool, error) {
	return s.blobs.BlobExists(ctx, ref)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return translate(s.pool.Ping(ctx))
}

func (s *Store) keyExists(ctx context.Context, deploymentKey string) error {
	const query = `SELECT 1 FROM deployments WHERE key = $1`
	var one int
	if err := s.pool.QueryRow(ctx, query, deploymentKey).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return translate(err)
	}
	return nil
}

func scanPackage(row pgx.Row) (*domain.Package, error) {
	var pkg domain.Package
	var description, releaseMethod *string
	var diffAgainst []byte
	if err := row.Scan(&pkg.Label, &pkg.Hash, &pkg.AppVersion, &description,
		&pkg.IsDisabled, &pkg.IsMandatory, &pkg.Rollout, &pkg.BlobURL,
		&pkg.BlobRef, &pkg.Size, &releaseMethod, &pkg.UploadTime,
		&diffAgainst); err != nil {
		return nil, err
	}
	if description != nil {
		pkg.Description = *description
	}
	if releaseMethod != nil {
		pkg.ReleaseMethod = *releaseMethod
	}
	if len(diffAgainst) > 0 {
		if err := json.Unmarshal(diffAgainst, &pkg.DiffAgainst); err != nil {
			return nil, fmt.Errorf("decode diff map for %s: %w", pkg.Label, err)
		}
	}
	return &pkg, nil
}

// translate maps driver-level connectivity failures onto the storage
// taxonomy so callers never inspect pgx error shapes.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", storage.ErrConnectionFailed, err)
	}
	return err
}
