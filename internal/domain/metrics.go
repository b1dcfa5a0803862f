package domain

// LabelCounters are the adoption counters accumulated for one
// (deployment key, label) pair. Counters are only ever incremented.
type LabelCounters struct {
	Active     int64 `json:"active"`
	Downloaded int64 `json:"downloaded"`
	Installed  int64 `json:"installed"`
	Failed     int64 `json:"failed"`
}

// AdoptionSummary maps labels (or app versions for unlabelled deploy
// reports) to their counters for one deployment key.
type AdoptionSummary struct {
	DeploymentKey string                   `json:"deploymentKey"`
	Labels        map[string]LabelCounters `json:"labels"`
}
