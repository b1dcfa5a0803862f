package domain

import "time"

// DiffInfo references a delta artifact applicable against one specific
// source package hash.
type DiffInfo struct {
	BlobURL string `json:"blobUrl"`
	BlobRef string `json:"blobRef"`
	Size    int64  `json:"size"`
}

// Package is one immutable release published under a deployment key. Label
// and Hash never change after publish; metadata patches (rollout, disabled,
// mandatory) replace the current history entry but keep its identity.
type Package struct {
	Hash          string              `json:"packageHash"`
	Label         string              `json:"label"`
	AppVersion    string              `json:"appVersion"`
	Description   string              `json:"description"`
	IsDisabled    bool                `json:"isDisabled"`
	IsMandatory   bool                `json:"isMandatory"`
	Rollout       int                 `json:"rollout"`
	BlobURL       string              `json:"blobUrl"`
	BlobRef       string              `json:"blobRef"`
	Size          int64               `json:"size"`
	ReleaseMethod string              `json:"releaseMethod"`
	UploadTime    time.Time           `json:"uploadTime"`
	DiffAgainst   map[string]DiffInfo `json:"diffAgainst,omitempty"`
}

// DeploymentSnapshot is the cached view of one deployment key: the current
// package plus its append-only history. Snapshots are immutable values,
// replaced whole on cache repopulation.
type DeploymentSnapshot struct {
	Current *Package  `json:"current"`
	History []Package `json:"history"`
}
