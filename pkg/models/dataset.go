package models

import (
	"strings"
	"time"
)

// DefaultDatasetName is used when a manifest carries no name.
const DefaultDatasetName = "Dataset"

// TagPosition is where the custom trigger tag is spliced relative to the caption.
type TagPosition string

const (
	TagPrepend TagPosition = "prepend"
	TagAppend  TagPosition = "append"
	TagReplace TagPosition = "replace"
)

// ParseTagPosition normalizes a raw tag position. "replace_caption" is an
// accepted synonym for "replace"; anything unrecognized becomes "prepend".
func ParseTagPosition(raw string) TagPosition {
	switch raw {
	case string(TagAppend):
		return TagAppend
	case string(TagReplace), "replace_caption":
		return TagReplace
	default:
		return TagPrepend
	}
}

// DatasetMetadata holds the dataset-wide settings stored in a manifest
type DatasetMetadata struct {
	Name            string      `json:"name"`
	CustomTag       string      `json:"customTag"`
	TagPosition     TagPosition `json:"tagPosition"`
	CreatedAt       time.Time   `json:"createdAt"`
	AllInstrumental bool        `json:"allInstrumental"`
	GenreRatio      int         `json:"genreRatio"` // percent, 0-100
}

// NewDatasetMetadata returns metadata with the documented defaults.
func NewDatasetMetadata() DatasetMetadata {
	return DatasetMetadata{
		Name:        DefaultDatasetName,
		TagPosition: TagPrepend,
		CreatedAt:   time.Now().UTC(),
	}
}

// ClampGenreRatio bounds a ratio to 0-100.
func ClampGenreRatio(ratio int) int {
	switch {
	case ratio < 0:
		return 0
	case ratio > 100:
		return 100
	default:
		return ratio
	}
}

// IsDifferentFrom compares the user-editable fields. CreatedAt is excluded
// because every save rewrites it; name and tag compare trimmed.
func (m DatasetMetadata) IsDifferentFrom(other DatasetMetadata) bool {
	return strings.TrimSpace(m.Name) != strings.TrimSpace(other.Name) ||
		strings.TrimSpace(m.CustomTag) != strings.TrimSpace(other.CustomTag) ||
		m.TagPosition != other.TagPosition ||
		m.GenreRatio != other.GenreRatio ||
		m.AllInstrumental != other.AllInstrumental
}
