package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

// retrying wraps a Storage with a single bounded retry on connection
// failures for the idempotent read operations. Writes never happen through
// this interface, so every operation is safe to repeat.
type retrying struct {
	inner   Storage
	backoff time.Duration
}

// WithRetry decorates a Storage with one retry on ErrConnectionFailed.
func WithRetry(inner Storage, backoff time.Duration) Storage {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &retrying{inner: inner, backoff: backoff}
}

func (r *retrying) do(ctx context.Context, op func(context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(r.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, ErrConnectionFailed) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *retrying) GetCurrentPackage(ctx context.Context, deploymentKey string) (*domain.Package, error) {
	var pkg *domain.Package
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		pkg, opErr = r.inner.GetCurrentPackage(ctx, deploymentKey)
		return opErr
	})
	return pkg, err
}

func (r *retrying) GetPackageHistory(ctx context.Context, deploymentKey string) ([]domain.Package, error) {
	var history []domain.Package
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		history, opErr = r.inner.GetPackageHistory(ctx, deploymentKey)
		return opErr
	})
	return history, err
}

func (r *retrying) GetBlob(ctx context.Context, ref string) ([]byte, error) {
	var blob []byte
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		blob, opErr = r.inner.GetBlob(ctx, ref)
		return opErr
	})
	return blob, err
}

func (r *retrying) BlobExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		exists, opErr = r.inner.BlobExists(ctx, ref)
		return opErr
	})
	return exists, err
}

func (r *retrying) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}
