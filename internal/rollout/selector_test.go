package rollout

import (
	"testing"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/domain"
)

func diffPackage() *domain.Package {
	return testPackage(func(p *domain.Package) {
		p.DiffAgainst = map[string]domain.DiffInfo{
			"hash-v1": {BlobURL: "https://cdn.example.com/diff-v1-v2", BlobRef: "diff-v1-v2", Size: 64},
		}
	})
}

func TestSelectArtifactPrefersDiff(t *testing.T) {
	artifact := SelectArtifact(diffPackage(), "hash-v1", true)
	if !artifact.IsDiff {
		t.Fatal("expected diff artifact for known source hash")
	}
	if artifact.BlobRef != "diff-v1-v2" || artifact.Size != 64 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
}

func TestSelectArtifactFullWhenNoDiffForHash(t *testing.T) {
	artifact := SelectArtifact(diffPackage(), "hash-v0", true)
	if artifact.IsDiff {
		t.Fatal("expected full package when no diff matches the source hash")
	}
	if artifact.BlobRef != "hash-v2" {
		t.Fatalf("unexpected blob ref %q", artifact.BlobRef)
	}
}

func TestSelectArtifactFreshInstallAlwaysFull(t *testing.T) {
	artifact := SelectArtifact(diffPackage(), "", true)
	if artifact.IsDiff {
		t.Fatal("fresh installs must never receive a diff")
	}
}

func TestSelectArtifactDiffingDisabled(t *testing.T) {
	artifact := SelectArtifact(diffPackage(), "hash-v1", false)
	if artifact.IsDiff {
		t.Fatal("expected full package when diffing is disabled")
	}
}
