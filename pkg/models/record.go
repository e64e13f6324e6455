package models

import (
	"crypto/md5"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultLanguage is assigned to records that carry no language.
const DefaultLanguage = "instrumental"

// idLength is the number of hex characters kept from the md5 digest.
const idLength = 8

// PromptOverride biases caption-vs-genre sampling for a single track.
type PromptOverride string

const (
	PromptOverrideNone    PromptOverride = ""
	PromptOverrideCaption PromptOverride = "caption"
	PromptOverrideGenre   PromptOverride = "genre"
)

// ParsePromptOverride trims and lowercases raw and accepts only "caption" or
// "genre". Anything else is treated as absent.
func ParsePromptOverride(raw string) PromptOverride {
	switch v := PromptOverride(strings.ToLower(strings.TrimSpace(raw))); v {
	case PromptOverrideCaption, PromptOverrideGenre:
		return v
	default:
		return PromptOverrideNone
	}
}

// Record represents one audio sample in a dataset
type Record struct {
	ID             string         `json:"id"`
	AudioPath      string         `json:"audioPath"`
	Filename       string         `json:"filename"`
	Caption        string         `json:"caption"`
	Genre          string         `json:"genre"`
	Lyrics         string         `json:"lyrics"`
	BPM            int            `json:"bpm"`
	Keyscale       string         `json:"keyscale"`
	TimeSignature  string         `json:"timesignature"`
	Duration       int            `json:"duration"` // in seconds
	Language       string         `json:"language"`
	IsInstrumental bool           `json:"isInstrumental"`
	CustomTag      string         `json:"customTag"`
	PromptOverride PromptOverride `json:"promptOverride,omitempty"`
}

// NewRecord returns a record with the documented defaults for audioPath.
// The id is derived from the path.
func NewRecord(audioPath string) Record {
	return Record{
		ID:        GenerateID(audioPath),
		AudioPath: audioPath,
		Filename:  BaseName(audioPath),
		Language:  DefaultLanguage,
	}
}

// Labeled reports whether the caption carries any non-space text.
func (r Record) Labeled() bool {
	return strings.TrimSpace(r.Caption) != ""
}

// Snapshot returns a copy of the current field values.
func (r Record) Snapshot() Record {
	return r
}

// IsDifferentFrom compares every field of r with other.
func (r Record) IsDifferentFrom(other Record) bool {
	return r != other || r.Labeled() != other.Labeled()
}

// GenerateID hashes source with md5 and keeps the first eight hex characters.
// Collisions are not checked.
func GenerateID(source string) string {
	hash := md5.Sum([]byte(source))
	return fmt.Sprintf("%x", hash)[:idLength]
}

// BaseName returns the last element of path, accepting either separator.
// An empty path yields an empty name.
func BaseName(path string) string {
	if path == "" {
		return ""
	}
	path = strings.ReplaceAll(path, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return filepath.Base(path)
}
