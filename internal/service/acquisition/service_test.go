package acquisition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/cache"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/config"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
)

type fakeStorage struct {
	history      map[string][]domain.Package
	blobs        map[string]struct{}
	historyCalls int
	historyErr   error
	blobErr      error
}

func (f *fakeStorage) GetCurrentPackage(_ context.Context, key string) (*domain.Package, error) {
	history, ok := f.history[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if len(history) == 0 {
		return nil, nil
	}
	pkg := history[len(history)-1]
	return &pkg, nil
}

func (f *fakeStorage) GetPackageHistory(_ context.Context, key string) ([]domain.Package, error) {
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	history, ok := f.history[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return history, nil
}

func (f *fakeStorage) GetBlob(_ context.Context, ref string) ([]byte, error) {
	if _, ok := f.blobs[ref]; !ok {
		return nil, storage.ErrNotFound
	}
	return []byte("payload"), nil
}

func (f *fakeStorage) BlobExists(_ context.Context, ref string) (bool, error) {
	if f.blobErr != nil {
		return false, f.blobErr
	}
	_, ok := f.blobs[ref]
	return ok, nil
}

func (f *fakeStorage) Ping(context.Context) error { return nil }

type fakeCache struct {
	snapshots map[string]*domain.DeploymentSnapshot
	puts      int
}

func (f *fakeCache) GetSnapshot(_ context.Context, key string) (*domain.DeploymentSnapshot, bool) {
	snap, ok := f.snapshots[key]
	return snap, ok
}

func (f *fakeCache) PutSnapshot(_ context.Context, key string, snap *domain.DeploymentSnapshot) {
	f.puts++
	if f.snapshots == nil {
		f.snapshots = make(map[string]*domain.DeploymentSnapshot)
	}
	f.snapshots[key] = snap
}

type reportedOutcome struct {
	deploymentKey string
	label         string
	outcome       cache.Outcome
}

type fakeMetrics struct {
	reports []reportedOutcome
	err     error
}

func (f *fakeMetrics) ReportOutcome(_ context.Context, key, label string, outcome cache.Outcome) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, reportedOutcome{deploymentKey: key, label: label, outcome: outcome})
	return nil
}

func releasedPackage() domain.Package {
	return domain.Package{
		Hash:       "hash-v2",
		Label:      "v2",
		AppVersion: "1.0.0",
		Rollout:    100,
		BlobURL:    "https://cdn.example.com/hash-v2",
		BlobRef:    "hash-v2",
		Size:       2048,
		DiffAgainst: map[string]domain.DiffInfo{
			"hash-v1": {BlobURL: "https://cdn.example.com/diff-v1-v2", BlobRef: "diff-v1-v2", Size: 96},
		},
	}
}

func newTestService(store *fakeStorage, packageCache *fakeCache, metrics *fakeMetrics) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfgStore := config.NewStore(func() config.Snapshot {
		return config.Snapshot{EnableDiffPackages: true, MaxFieldLength: 128}
	})
	return New(store, packageCache, metrics, log, cfgStore)
}

func validQuery() UpdateQuery {
	return UpdateQuery{
		DeploymentKey: "key-1",
		AppVersion:    "1.0.0",
		ClientID:      "device-1",
		PackageHash:   "hash-v1",
	}
}

func TestCheckUpdateRequiresFields(t *testing.T) {
	svc := newTestService(&fakeStorage{}, &fakeCache{}, &fakeMetrics{})
	for _, mutate := range []func(*UpdateQuery){
		func(q *UpdateQuery) { q.DeploymentKey = "" },
		func(q *UpdateQuery) { q.AppVersion = "" },
		func(q *UpdateQuery) { q.ClientID = "" },
	} {
		query := validQuery()
		mutate(&query)
		_, err := svc.CheckUpdate(context.Background(), query)
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInputError, got %v", err)
		}
	}
}

func TestCheckUpdateRejectsOversizedField(t *testing.T) {
	svc := newTestService(&fakeStorage{}, &fakeCache{}, &fakeMetrics{})
	query := validQuery()
	query.ClientID = strings.Repeat("x", 129)
	_, err := svc.CheckUpdate(context.Background(), query)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for oversized field, got %v", err)
	}
}

func TestCheckUpdateUnknownDeployment(t *testing.T) {
	svc := newTestService(&fakeStorage{history: map[string][]domain.Package{}}, &fakeCache{}, &fakeMetrics{})
	_, err := svc.CheckUpdate(context.Background(), validQuery())
	if !errors.Is(err, ErrUnknownDeployment) {
		t.Fatalf("expected ErrUnknownDeployment, got %v", err)
	}
}

func TestCheckUpdateServesDiffForKnownHash(t *testing.T) {
	store := &fakeStorage{
		history: map[string][]domain.Package{"key-1": {releasedPackage()}},
		blobs:   map[string]struct{}{"hash-v2": {}, "diff-v1-v2": {}},
	}
	packageCache := &fakeCache{}
	svc := newTestService(store, packageCache, &fakeMetrics{})

	info, err := svc.CheckUpdate(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("CheckUpdate returned error: %v", err)
	}
	if !info.IsAvailable {
		t.Fatal("expected update to be available")
	}
	if info.DownloadURL != "https://cdn.example.com/diff-v1-v2" {
		t.Fatalf("expected diff download URL, got %q", info.DownloadURL)
	}
	if info.PackageSize != 96 {
		t.Fatalf("expected diff size 96, got %d", info.PackageSize)
	}
	if packageCache.puts != 1 {
		t.Fatalf("expected snapshot to be cached once, got %d puts", packageCache.puts)
	}
}

func TestCheckUpdateFullPackageForFreshInstall(t *testing.T) {
	store := &fakeStorage{
		history: map[string][]domain.Package{"key-1": {releasedPackage()}},
		blobs:   map[string]struct{}{"hash-v2": {}, "diff-v1-v2": {}},
	}
	svc := newTestService(store, &fakeCache{}, &fakeMetrics{})

	query := validQuery()
	query.PackageHash = ""
	info, err := svc.CheckUpdate(context.Background(), query)
	if err != nil {
		t.Fatalf("CheckUpdate returned error: %v", err)
	}
	if info.DownloadURL != "https://cdn.example.com/hash-v2" {
		t.Fatalf("expected full package URL for fresh install, got %q", info.DownloadURL)
	}
	if info.PackageSize != 2048 {
		t.Fatalf("expected full package size, got %d", info.PackageSize)
	}
}

func TestCheckUpdateUsesCachedSnapshot(t *testing.T) {
	pkg := releasedPackage()
	store := &fakeStorage{blobs: map[string]struct{}{"hash-v2": {}, "diff-v1-v2": {}}}
	packageCache := &fakeCache{snapshots: map[string]*domain.DeploymentSnapshot{
		"key-1": {Current: &pkg, History: []domain.Package{pkg}},
	}}
	svc := newTestService(store, packageCache, &fakeMetrics{})

	info, err := svc.CheckUpdate(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("CheckUpdate returned error: %v", err)
	}
	if !info.IsAvailable {
		t.Fatal("expected update from cached snapshot")
	}
	if store.historyCalls != 0 {
		t.Fatalf("expected no storage reads on cache hit, got %d", store.historyCalls)
	}
}

func TestCheckUpdateFailsOpenOnCacheMiss(t *testing.T) {
	// A broken cache backend surfaces as a permanent miss; requests must
	// still be served from storage.
	store := &fakeStorage{
		history: map[string][]domain.Package{"key-1": {releasedPackage()}},
		blobs:   map[string]struct{}{"hash-v2": {}, "diff-v1-v2": {}},
	}
	svc := newTestService(store, &fakeCache{}, &fakeMetrics{})

	for i := 0; i < 3; i++ {
		info, err := svc.CheckUpdate(context.Background(), validQuery())
		if err != nil {
			t.Fatalf("CheckUpdate returned error: %v", err)
		}
		if !info.IsAvailable {
			t.Fatal("expected update despite cache misses")
		}
	}
	if store.historyCalls == 0 {
		t.Fatal("expected storage reads when cache never hits")
	}
}

func TestCheckUpdateAdvertisedDiffMissingBlob(t *testing.T) {
	store := &fakeStorage{
		history: map[string][]domain.Package{"key-1": {releasedPackage()}},
		blobs:   map[string]struct{}{"hash-v2": {}},
	}
	svc := newTestService(store, &fakeCache{}, &fakeMetrics{})

	_, err := svc.CheckUpdate(context.Background(), validQuery())
	if !errors.Is(err, ErrArtifactUnresolvable) {
		t.Fatalf("expected ErrArtifactUnresolvable, got %v", err)
	}
}

func TestCheckUpdateNoReleasesYet(t *testing.T) {
	store := &fakeStorage{history: map[string][]domain.Package{"key-1": {}}}
	svc := newTestService(store, &fakeCache{}, &fakeMetrics{})

	info, err := svc.CheckUpdate(context.Background(), validQuery())
	if err != nil {
		t.Fatalf("CheckUpdate returned error: %v", err)
	}
	if info.IsAvailable {
		t.Fatal("expected no update for key without releases")
	}
}

func TestReportDownloadValidation(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(&fakeStorage{}, &fakeCache{}, metrics)

	err := svc.ReportDownload(context.Background(), DownloadReport{})
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if invalid.Message != "A download status report must contain a valid deploymentKey and package label." {
		t.Fatalf("unexpected message %q", invalid.Message)
	}
	if len(metrics.reports) != 0 {
		t.Fatal("expected no counter writes on validation failure")
	}
}

func TestReportDownloadIncrementsCounter(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(&fakeStorage{}, &fakeCache{}, metrics)

	report := DownloadReport{DeploymentKey: "key-1", Label: "v2", ClientID: "device-1"}
	if err := svc.ReportDownload(context.Background(), report); err != nil {
		t.Fatalf("ReportDownload returned error: %v", err)
	}
	if len(metrics.reports) != 1 {
		t.Fatalf("expected one counter write, got %d", len(metrics.reports))
	}
	got := metrics.reports[0]
	if got.deploymentKey != "key-1" || got.label != "v2" || got.outcome != cache.OutcomeDownloaded {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestReportDeployValidation(t *testing.T) {
	svc := newTestService(&fakeStorage{}, &fakeCache{}, &fakeMetrics{})

	cases := []struct {
		report  DeployReport
		message string
	}{
		{
			report:  DeployReport{AppVersion: "1.0.0"},
			message: "A deploy status report must contain a valid appVersion and deploymentKey.",
		},
		{
			report:  DeployReport{DeploymentKey: "key-1"},
			message: "A deploy status report must contain a valid appVersion and deploymentKey.",
		},
		{
			report:  DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0", Label: "v4"},
			message: "A deploy status report for a labelled package must contain a valid status.",
		},
		{
			report:  DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0", Label: "v4", Status: "InvalidStatus"},
			message: "Invalid status: InvalidStatus",
		},
	}
	for _, tc := range cases {
		err := svc.ReportDeploy(context.Background(), tc.report)
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInputError for %+v, got %v", tc.report, err)
		}
		if invalid.Message != tc.message {
			t.Fatalf("expected message %q, got %q", tc.message, invalid.Message)
		}
	}
}

func TestReportDeployOutcomes(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(&fakeStorage{}, &fakeCache{}, metrics)

	succeeded := DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0", Label: "v2", Status: StatusDeploySucceeded}
	if err := svc.ReportDeploy(context.Background(), succeeded); err != nil {
		t.Fatalf("ReportDeploy returned error: %v", err)
	}
	failed := DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0", Label: "v2", Status: StatusDeployFailed}
	if err := svc.ReportDeploy(context.Background(), failed); err != nil {
		t.Fatalf("ReportDeploy returned error: %v", err)
	}
	unlabelled := DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0"}
	if err := svc.ReportDeploy(context.Background(), unlabelled); err != nil {
		t.Fatalf("ReportDeploy returned error: %v", err)
	}

	want := []reportedOutcome{
		{deploymentKey: "key-1", label: "v2", outcome: cache.OutcomeDeploySucceeded},
		{deploymentKey: "key-1", label: "v2", outcome: cache.OutcomeDeployFailed},
		{deploymentKey: "key-1", label: "1.0.0", outcome: cache.OutcomeActive},
	}
	if len(metrics.reports) != len(want) {
		t.Fatalf("expected %d counter writes, got %d", len(want), len(metrics.reports))
	}
	for i, expected := range want {
		if metrics.reports[i] != expected {
			t.Fatalf("report %d: expected %+v, got %+v", i, expected, metrics.reports[i])
		}
	}
}

func TestReportDeployFailsClosedOnMetricsError(t *testing.T) {
	metrics := &fakeMetrics{err: cache.ErrUnavailable}
	svc := newTestService(&fakeStorage{}, &fakeCache{}, metrics)

	report := DeployReport{DeploymentKey: "key-1", AppVersion: "1.0.0", Label: "v2", Status: StatusDeploySucceeded}
	err := svc.ReportDeploy(context.Background(), report)
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected metrics failure to propagate, got %v", err)
	}
}
