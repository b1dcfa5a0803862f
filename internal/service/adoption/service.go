// Package adoption exposes the counter read model consumed by management
// tooling: per-label adoption summaries on demand and a periodic stream to
// websocket subscribers.
package adoption

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/ws"
)

// CounterReader reads accumulated adoption counters.
type CounterReader interface {
	GetCounters(ctx context.Context, deploymentKey, label string) (domain.LabelCounters, error)
}

// Service builds adoption summaries from package history and counters.
type Service struct {
	store      storage.Storage
	counters   CounterReader
	hub        *ws.Hub
	logger     *slog.Logger
	flushEvery time.Duration
}

// New returns an adoption service. hub may be nil when streaming is not
// wired.
func New(store storage.Storage, counters CounterReader, hub *ws.Hub, logger *slog.Logger, flushEvery time.Duration) *Service {
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	return &Service{
		store:      store,
		counters:   counters,
		hub:        hub,
		logger:     logger,
		flushEvery: flushEvery,
	}
}

// Summary returns counters for every label in a deployment's history, plus
// app-version slots with recorded activity.
func (s *Service) Summary(ctx context.Context, deploymentKey string) (*domain.AdoptionSummary, error) {
	history, err := s.store.GetPackageHistory(ctx, deploymentKey)
	if err != nil {
		return nil, err
	}

	summary := &domain.AdoptionSummary{
		DeploymentKey: deploymentKey,
		Labels:        make(map[string]domain.LabelCounters),
	}
	appVersions := make(map[string]struct{})
	for _, pkg := range history {
		counters, err := s.counters.GetCounters(ctx, deploymentKey, pkg.Label)
		if err != nil {
			return nil, err
		}
		summary.Labels[pkg.Label] = counters
		appVersions[pkg.AppVersion] = struct{}{}
	}
	for version := range appVersions {
		counters, err := s.counters.GetCounters(ctx, deploymentKey, version)
		if err != nil {
			return nil, err
		}
		if counters != (domain.LabelCounters{}) {
			summary.Labels[version] = counters
		}
	}
	return summary, nil
}

// Hub exposes the stream hub for the HTTP layer.
func (s *Service) Hub() *ws.Hub {
	return s.hub
}

// Run periodically pushes summaries to every deployment key with live
// subscribers until the context ends.
func (s *Service) Run(ctx context.Context) {
	if s.hub == nil {
		return
	}
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	for _, key := range s.hub.Keys() {
		summary, err := s.Summary(ctx, key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("adoption summary failed", "deployment_key", key, "error", err)
			}
			continue
		}
		payload, err := json.Marshal(summary)
		if err != nil {
			s.logger.Warn("adoption summary encode failed", "deployment_key", key, "error", err)
			continue
		}
		s.hub.Broadcast(key, payload)
	}
}
