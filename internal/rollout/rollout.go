// Package rollout decides whether one client sees one release. Everything
// in this package is pure computation: no I/O, no clock, no process state.
package rollout

import (
	"github.com/Masterminds/semver/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

// Decision is the outcome of evaluating a release against a client.
type Decision struct {
	UpdateAvailable bool
	Mandatory       bool
	Package         *domain.Package
}

// noUpdate is the zero Decision.
var noUpdate = Decision{}

// Evaluate maps (current release, client identity) to a decision. The same
// inputs always produce the same decision, across requests and across
// server processes.
func Evaluate(current *domain.Package, client domain.ClientIdentity) Decision {
	if current == nil || current.IsDisabled {
		return noUpdate
	}
	if client.PackageHash != "" && client.PackageHash == current.Hash {
		return noUpdate
	}
	if !client.IsCompanion && !versionSatisfies(current.AppVersion, client.AppVersion) {
		return noUpdate
	}
	if current.Rollout > 0 && current.Rollout < 100 {
		if Bucket(client.ClientID, current.Label) >= current.Rollout {
			return noUpdate
		}
	}
	return Decision{
		UpdateAvailable: true,
		Mandatory:       current.IsMandatory,
		Package:         current,
	}
}

// Bucket assigns a client to a stable slot in [0, 100) for one release
// label. The hash is keyed by both client id and label so that exclusion
// from one rollout says nothing about the next one, and it carries no
// per-process seed so every worker agrees.
func Bucket(clientID, label string) int {
	return int(xxhash.Sum64String(clientID+":"+label) % 100)
}

// versionSatisfies reports whether a client binary version is targeted by a
// release. The release side may be an exact version or a range expression
// ("1.2.x", ">=1.2.0 <2.0.0", "*"); unparseable inputs fall back to exact
// string comparison so a malformed release never matches everything.
func versionSatisfies(target, clientVersion string) bool {
	constraint, err := semver.NewConstraint(target)
	if err != nil {
		return target == clientVersion
	}
	version, err := semver.NewVersion(clientVersion)
	if err != nil {
		return false
	}
	return constraint.Check(version)
}
