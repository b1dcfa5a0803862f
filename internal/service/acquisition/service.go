// Package acquisition implements the update-check decision pipeline and
// status-report ingestion over the storage, cache and rollout components.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/cache"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/config"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/rollout"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
)

// Recognized deploy-report status values. Anything else is a validation
// error, never a default.
const (
	StatusDeploySucceeded = "DeploymentSucceeded"
	StatusDeployFailed    = "DeploymentFailed"
)

const (
	msgUpdateCheck    = "An update check must contain a valid deploymentKey, appVersion, and clientUniqueId."
	msgDownloadReport = "A download status report must contain a valid deploymentKey and package label."
	msgDeployReport   = "A deploy status report must contain a valid appVersion and deploymentKey."
	msgLabelledStatus = "A deploy status report for a labelled package must contain a valid status."
	msgFieldTooLong   = "A status report field exceeded the maximum allowed length."
)

// InvalidInputError carries the exact client-facing validation message.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func invalid(message string) error {
	return &InvalidInputError{Message: message}
}

// ErrUnknownDeployment reports an update check or status report against a
// deployment key that does not exist. Client input error, not a server
// fault.
var ErrUnknownDeployment = errors.New("acquisition: no such deployment")

// ErrArtifactUnresolvable reports a release whose advertised payload blob
// does not resolve in storage. An advertised diff that 404s is worse than
// refusing the update, so this is never downgraded to the full package.
var ErrArtifactUnresolvable = errors.New("acquisition: release artifact unresolvable")

// PackageCache is the read-through snapshot cache. Reads fail open: a miss
// and a backend failure look identical to the service.
type PackageCache interface {
	GetSnapshot(ctx context.Context, deploymentKey string) (*domain.DeploymentSnapshot, bool)
	PutSnapshot(ctx context.Context, deploymentKey string, snap *domain.DeploymentSnapshot)
}

// MetricsStore applies adoption counter batches. Writes fail closed.
type MetricsStore interface {
	ReportOutcome(ctx context.Context, deploymentKey, label string, outcome cache.Outcome) error
}

// Service answers update checks and ingests status reports. Configuration
// is read through the store so a reload takes effect without restart.
type Service struct {
	store   storage.Storage
	cache   PackageCache
	metrics MetricsStore
	logger  *slog.Logger
	config  *config.Store
}

// New returns an acquisition service.
func New(store storage.Storage, packageCache PackageCache, metrics MetricsStore, logger *slog.Logger, cfgStore *config.Store) Service {
	return Service{
		store:   store,
		cache:   packageCache,
		metrics: metrics,
		logger:  logger,
		config:  cfgStore,
	}
}

// UpdateQuery is a validated-at-the-boundary update check request.
type UpdateQuery struct {
	DeploymentKey string
	AppVersion    string
	ClientID      string
	PackageHash   string
	IsCompanion   bool
}

// DownloadReport acknowledges that a client fetched a package.
type DownloadReport struct {
	DeploymentKey string
	Label         string
	ClientID      string
}

// DeployReport acknowledges an install attempt outcome.
type DeployReport struct {
	DeploymentKey             string
	AppVersion                string
	ClientID                  string
	Label                     string
	Status                    string
	PreviousDeploymentKey     string
	PreviousLabelOrAppVersion string
}

// CheckUpdate runs the full decision pipeline: validate, resolve the
// current release through the cache, evaluate rollout eligibility, select
// and verify the artifact.
func (s Service) CheckUpdate(ctx context.Context, query UpdateQuery) (*domain.UpdateInfo, error) {
	if query.DeploymentKey == "" || query.AppVersion == "" || query.ClientID == "" {
		return nil, invalid(msgUpdateCheck)
	}
	if s.tooLong(query.DeploymentKey, query.AppVersion, query.ClientID, query.PackageHash) {
		return nil, invalid(msgFieldTooLong)
	}

	snap, err := s.resolve(ctx, query.DeploymentKey)
	if err != nil {
		return nil, err
	}

	client := domain.ClientIdentity{
		ClientID:    query.ClientID,
		AppVersion:  query.AppVersion,
		PackageHash: query.PackageHash,
		IsCompanion: query.IsCompanion,
	}
	decision := rollout.Evaluate(snap.Current, client)
	if !decision.UpdateAvailable {
		info := &domain.UpdateInfo{IsAvailable: false}
		if snap.Current != nil && snap.Current.IsDisabled {
			info.IsDisabled = true
		}
		return info, nil
	}

	pkg := decision.Package
	artifact := rollout.SelectArtifact(pkg, client.PackageHash, s.config.Current().EnableDiffPackages)
	exists, err := s.store.BlobExists(ctx, artifact.BlobRef)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.logger.Error("release artifact missing from storage",
			"deployment_key", query.DeploymentKey,
			"label", pkg.Label,
			"blob_ref", artifact.BlobRef,
			"is_diff", artifact.IsDiff)
		return nil, fmt.Errorf("%w: label %s", ErrArtifactUnresolvable, pkg.Label)
	}

	return &domain.UpdateInfo{
		IsAvailable: true,
		IsMandatory: decision.Mandatory,
		AppVersion:  pkg.AppVersion,
		Label:       pkg.Label,
		PackageHash: pkg.Hash,
		DownloadURL: s.downloadURL(artifact),
		Description: pkg.Description,
		PackageSize: artifact.Size,
	}, nil
}

// ReportDownload counts a completed package download.
func (s Service) ReportDownload(ctx context.Context, report DownloadReport) error {
	if report.DeploymentKey == "" || report.Label == "" {
		return invalid(msgDownloadReport)
	}
	if s.tooLong(report.DeploymentKey, report.Label, report.ClientID) {
		return invalid(msgFieldTooLong)
	}
	return s.metrics.ReportOutcome(ctx, report.DeploymentKey, report.Label, cache.OutcomeDownloaded)
}

// ReportDeploy counts an install outcome. Labelled reports require a
// recognized status; unlabelled reports record binary-level activity
// against the reported app version.
func (s Service) ReportDeploy(ctx context.Context, report DeployReport) error {
	if report.DeploymentKey == "" || report.AppVersion == "" {
		return invalid(msgDeployReport)
	}
	if s.tooLong(report.DeploymentKey, report.AppVersion, report.ClientID, report.Label,
		report.Status, report.PreviousDeploymentKey, report.PreviousLabelOrAppVersion) {
		return invalid(msgFieldTooLong)
	}

	if report.Label == "" {
		return s.metrics.ReportOutcome(ctx, report.DeploymentKey, report.AppVersion, cache.OutcomeActive)
	}

	switch report.Status {
	case StatusDeploySucceeded:
		return s.metrics.ReportOutcome(ctx, report.DeploymentKey, report.Label, cache.OutcomeDeploySucceeded)
	case StatusDeployFailed:
		return s.metrics.ReportOutcome(ctx, report.DeploymentKey, report.Label, cache.OutcomeDeployFailed)
	case "":
		return invalid(msgLabelledStatus)
	default:
		return invalid("Invalid status: " + report.Status)
	}
}

// resolve loads the deployment snapshot through the cache. Cache failures
// fall through to storage; a failed repopulation only costs latency.
func (s Service) resolve(ctx context.Context, deploymentKey string) (*domain.DeploymentSnapshot, error) {
	if snap, ok := s.cache.GetSnapshot(ctx, deploymentKey); ok {
		return snap, nil
	}
	history, err := s.store.GetPackageHistory(ctx, deploymentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownDeployment
		}
		return nil, err
	}
	snap := &domain.DeploymentSnapshot{History: history}
	if len(history) > 0 {
		current := history[len(history)-1]
		snap.Current = &current
	}
	s.cache.PutSnapshot(ctx, deploymentKey, snap)
	return snap, nil
}

func (s Service) downloadURL(artifact rollout.Artifact) string {
	if artifact.BlobURL != "" {
		return artifact.BlobURL
	}
	base := strings.TrimSuffix(s.config.Current().DownloadURLBase, "/")
	return base + "/" + artifact.BlobRef
}

func (s Service) tooLong(values ...string) bool {
	limit := s.config.Current().MaxFieldLength
	if limit <= 0 {
		limit = 128
	}
	for _, v := range values {
		if len(v) > limit {
			return true
		}
	}
	return false
}
