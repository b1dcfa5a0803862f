// Package cache adapts one Redis instance for two distinct uses: a
// fail-open read-through cache for deployment snapshots, and fail-closed
// atomic adoption counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

// ErrUnavailable indicates the metrics store could not apply a write. The
// batch either applied fully or not at all; callers surface this as a
// retryable server error.
var ErrUnavailable = errors.New("cache: store unavailable")

// Outcome names one status-report event.
type Outcome string

const (
	OutcomeDownloaded      Outcome = "downloaded"
	OutcomeDeploySucceeded Outcome = "deploy_succeeded"
	OutcomeDeployFailed    Outcome = "deploy_failed"
	OutcomeActive          Outcome = "active"
)

const (
	fieldActive     = "active"
	fieldDownloaded = "downloaded"
	fieldInstalled  = "installed"
	fieldFailed     = "failed"
)

// Store wraps a Redis client with the deployment cache and counter schema.
type Store struct {
	client      *redis.Client
	logger      *slog.Logger
	opTimeout   time.Duration
	cacheTTL    time.Duration
	lastSeenTTL time.Duration
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int, cacheTTL, opTimeout, lastSeenTTL time.Duration, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Store{
		client:      client,
		logger:      logger,
		opTimeout:   opTimeout,
		cacheTTL:    cacheTTL,
		lastSeenTTL: lastSeenTTL,
	}, nil
}

func snapshotKey(deploymentKey string) string {
	return "updrift:pkg:" + deploymentKey
}

func countersKey(deploymentKey, label string) string {
	return "updrift:metrics:" + deploymentKey + ":" + label
}

func lastReportKey(deploymentKey string) string {
	return "updrift:metrics:" + deploymentKey + ":last-report"
}

// fieldsFor maps an outcome to the counter fields it increments. A deploy
// success bumps both active and installed inside one atomic batch.
func fieldsFor(outcome Outcome) []string {
	switch outcome {
	case OutcomeDownloaded:
		return []string{fieldDownloaded}
	case OutcomeDeploySucceeded:
		return []string{fieldActive, fieldInstalled}
	case OutcomeDeployFailed:
		return []string{fieldFailed}
	case OutcomeActive:
		return []string{fieldActive}
	}
	return nil
}

// GetSnapshot returns the cached deployment snapshot if present. Any Redis
// failure is logged and reported as a miss; reads fail open.
func (s *Store) GetSnapshot(ctx context.Context, deploymentKey string) (*domain.DeploymentSnapshot, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, snapshotKey(deploymentKey)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("snapshot cache read failed", "deployment_key", deploymentKey, "error", err)
		}
		return nil, false
	}
	var snap domain.DeploymentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("snapshot cache entry corrupt", "deployment_key", deploymentKey, "error", err)
		return nil, false
	}
	return &snap, true
}

// PutSnapshot caches a deployment snapshot with the configured TTL.
// Population failure never fails the request.
func (s *Store) PutSnapshot(ctx context.Context, deploymentKey string, snap *domain.DeploymentSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("snapshot encode failed", "deployment_key", deploymentKey, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, snapshotKey(deploymentKey), data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("snapshot cache write failed", "deployment_key", deploymentKey, "error", err)
	}
}

// Invalidate drops the cached snapshot for a key. Used when management
// tooling changes release metadata.
func (s *Store) Invalidate(ctx context.Context, deploymentKey string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, snapshotKey(deploymentKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ReportOutcome applies all counter increments for one status report plus a
// last-report marker refresh as a single MULTI/EXEC batch. Increments use
// HINCRBY, so concurrent reporters for the same label remain correct.
func (s *Store) ReportOutcome(ctx context.Context, deploymentKey, label string, outcome Outcome) error {
	fields := fieldsFor(outcome)
	if len(fields) == 0 {
		return fmt.Errorf("cache: unknown outcome %q", outcome)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	key := countersKey(deploymentKey, label)
	for _, field := range fields {
		pipe.HIncrBy(ctx, key, field, 1)
	}
	pipe.Set(ctx, lastReportKey(deploymentKey), time.Now().UTC().Format(time.RFC3339), s.lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetCounters reads the counter hash for one label.
func (s *Store) GetCounters(ctx context.Context, deploymentKey, label string) (domain.LabelCounters, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	values, err := s.client.HGetAll(ctx, countersKey(deploymentKey, label)).Result()
	if err != nil {
		return domain.LabelCounters{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return countersFromHash(values), nil
}

// HasCounters reports whether any counters exist for a label.
func (s *Store) HasCounters(ctx context.Context, deploymentKey, label string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	n, err := s.client.Exists(ctx, countersKey(deploymentKey, label)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping verifies the store is reachable. Health checks only, never the hot
// path.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func countersFromHash(values map[string]string) domain.LabelCounters {
	var c domain.LabelCounters
	c.Active = parseCounter(values[fieldActive])
	c.Downloaded = parseCounter(values[fieldDownloaded])
	c.Installed = parseCounter(values[fieldInstalled])
	c.Failed = parseCounter(values[fieldFailed])
	return c
}

func parseCounter(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
