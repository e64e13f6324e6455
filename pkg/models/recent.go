package models

import "time"

// RecentDataset is a dataset remembered by the registry so it can be
// reopened without browsing for it.
type RecentDataset struct {
	Path         string    `json:"path"`
	ManifestPath string    `json:"manifestPath,omitempty"`
	Name         string    `json:"name"`
	NumSamples   int       `json:"numSamples"`
	Captioned    int       `json:"captioned"`
	LastOpened   time.Time `json:"lastOpened"`
}
