package rollout

import "github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"

// Artifact is the payload chosen for one update response.
type Artifact struct {
	BlobURL string
	BlobRef string
	Size    int64
	IsDiff  bool
}

// SelectArtifact picks the smallest artifact the client can apply: a diff
// keyed by the client's current package hash when one was produced at
// release time, otherwise the full package. Fresh installs (no known source
// hash) always get the full package.
func SelectArtifact(pkg *domain.Package, clientHash string, diffsEnabled bool) Artifact {
	if diffsEnabled && clientHash != "" {
		if diff, ok := pkg.DiffAgainst[clientHash]; ok {
			return Artifact{
				BlobURL: diff.BlobURL,
				BlobRef: diff.BlobRef,
				Size:    diff.Size,
				IsDiff:  true,
			}
		}
	}
	return Artifact{
		BlobURL: pkg.BlobURL,
		BlobRef: pkg.BlobRef,
		Size:    pkg.Size,
	}
}
