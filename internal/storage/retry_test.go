package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

type flakyStorage struct {
	failures int
	calls    int
	err      error
}

func (f *flakyStorage) GetCurrentPackage(ctx context.Context, key string) (*domain.Package, error) {
	history, err := f.GetPackageHistory(ctx, key)
	if err != nil {
		return nil, err
	}
	pkg := history[len(history)-1]
	return &pkg, nil
}

func (f *flakyStorage) GetPackageHistory(context.Context, string) ([]domain.Package, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []domain.Package{{Label: "v1"}}, nil
}

func (f *flakyStorage) GetBlob(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (f *flakyStorage) BlobExists(context.Context, string) (bool, error) { return false, nil }

func (f *flakyStorage) Ping(context.Context) error { return nil }

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStorage{failures: 1, err: ErrConnectionFailed}
	store := WithRetry(inner, time.Millisecond)

	history, err := store.GetPackageHistory(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(history) != 1 || history[0].Label != "v1" {
		t.Fatalf("unexpected history %+v", history)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", inner.calls)
	}
}

func TestWithRetrySingleRetryOnly(t *testing.T) {
	inner := &flakyStorage{failures: 5, err: ErrConnectionFailed}
	store := WithRetry(inner, time.Millisecond)

	_, err := store.GetPackageHistory(context.Background(), "key-1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", inner.calls)
	}
}

func TestWithRetryDoesNotRetryNotFound(t *testing.T) {
	inner := &flakyStorage{failures: 5, err: ErrNotFound}
	store := WithRetry(inner, time.Millisecond)

	_, err := store.GetPackageHistory(context.Background(), "key-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single attempt for a non-retryable error, got %d", inner.calls)
	}
}
