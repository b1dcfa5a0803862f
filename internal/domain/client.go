package domain

// ClientIdentity is the caller-supplied identity of a polling device. It is
// never persisted by this service; it only feeds the rollout bucket and the
// metrics dimensions.
type ClientIdentity struct {
	ClientID    string
	AppVersion  string
	PackageHash string
	IsCompanion bool
}

// UpdateInfo is the update-check answer returned to a client.
type UpdateInfo struct {
	IsAvailable bool   `json:"isAvailable"`
	IsMandatory bool   `json:"isMandatory,omitempty"`
	IsDisabled  bool   `json:"isDisabled,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
	Label       string `json:"label,omitempty"`
	PackageHash string `json:"packageHash,omitempty"`
	DownloadURL string `json:"downloadURL,omitempty"`
	Description string `json:"description,omitempty"`
	PackageSize int64  `json:"packageSize,omitempty"`
}
