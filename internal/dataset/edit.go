package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

// DurationProber measures audio files in whole seconds. Files it cannot
// measure are left out of the result.
type DurationProber interface {
	ProbeDurations(ctx context.Context, paths []string) (map[string]int, error)
}

// MetadataUpdate carries a partial metadata edit. Nil fields are left as
// they are.
type MetadataUpdate struct {
	Name            *string `json:"name,omitempty"`
	CustomTag       *string `json:"customTag,omitempty"`
	TagPosition     *string `json:"tagPosition,omitempty"`
	GenreRatio      *int    `json:"genreRatio,omitempty"`
	AllInstrumental *bool   `json:"allInstrumental,omitempty"`
}

var newlineRuns = regexp.MustCompile(`\n+`)

// Track returns the record with id.
func (s *Session) Track(id string) (models.Record, error) {
	i := s.indexOf(id)
	if i < 0 {
		return models.Record{}, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return s.entries[i].current, nil
}

// UpdateTrack replaces the record that carries rec.ID.
func (s *Session) UpdateTrack(rec models.Record) error {
	i := s.indexOf(rec.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, rec.ID)
	}
	rec.PromptOverride = models.ParsePromptOverride(string(rec.PromptOverride))
	s.entries[i].current = rec
	return nil
}

// RemoveTrack drops the record with id from the dataset. The audio file is
// not touched.
func (s *Session) RemoveTrack(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	s.removeAt(i)
	return nil
}

func (s *Session) removeAt(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.removed = true
}

// AddAudioFile appends a fresh record for path unless one already points at
// it. The boolean reports whether a record was added.
func (s *Session) AddAudioFile(path string) (models.Record, bool, error) {
	if !s.IsOpen() {
		return models.Record{}, false, ErrNoDataset
	}
	if s.lister == nil || !s.lister.IsAudioFile(path) {
		return models.Record{}, false, fmt.Errorf("%w: %s", ErrNotAudio, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	for _, e := range s.entries {
		if samePath(e.current.AudioPath, abs) {
			return e.current, false, nil
		}
	}

	rec := models.NewRecord(abs)
	s.entries = append(s.entries, entry{current: rec})
	s.logger.WithFields(logrus.Fields{
		"id":   rec.ID,
		"path": abs,
	}).Info("Added audio file to dataset")
	return rec, true, nil
}

// RemoveAudioPath drops every record that points at path and returns how
// many were removed.
func (s *Session) RemoveAudioPath(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	removed := 0
	for i := len(s.entries) - 1; i >= 0; i-- {
		if samePath(s.entries[i].current.AudioPath, abs) {
			s.removeAt(i)
			removed++
		}
	}
	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"path":    abs,
			"records": removed,
		}).Info("Removed audio file from dataset")
	}
	return removed
}

func samePath(a, b string) bool {
	return filepath.Clean(filepath.FromSlash(a)) == filepath.Clean(filepath.FromSlash(b))
}

// ApplyField rewrites one field on every record.
func (s *Session) ApplyField(field models.Field, value string) error {
	updated, err := models.ApplyField(s.Records(), field, value)
	if err != nil {
		return err
	}
	s.setRecords(updated)
	return nil
}

// ApplyLanguage sets the language of every record. Only the known language
// codes are accepted.
func (s *Session) ApplyLanguage(lang string) error {
	return s.ApplyField(models.FieldLanguage, lang)
}

// SetAllInstrumental sets the dataset flag and fans it out to every record.
func (s *Session) SetAllInstrumental(instrumental bool) {
	s.meta.AllInstrumental = instrumental
	s.setRecords(models.SetInstrumental(s.Records(), instrumental))
}

// UpdateMetadata applies a partial metadata edit. The tag position is
// normalized and the genre ratio clamped to 0-100.
func (s *Session) UpdateMetadata(u MetadataUpdate) error {
	if !s.IsOpen() {
		return ErrNoDataset
	}
	if u.Name != nil {
		s.meta.Name = *u.Name
	}
	if u.CustomTag != nil {
		s.meta.CustomTag = *u.CustomTag
	}
	if u.TagPosition != nil {
		s.meta.TagPosition = models.ParseTagPosition(*u.TagPosition)
	}
	if u.GenreRatio != nil {
		s.meta.GenreRatio = models.ClampGenreRatio(*u.GenreRatio)
	}
	if u.AllInstrumental != nil && *u.AllInstrumental != s.meta.AllInstrumental {
		s.SetAllInstrumental(*u.AllInstrumental)
	}
	return nil
}

// MergeParagraphs joins multi-line captions into one line: newline runs
// become a space and whitespace is collapsed. It returns how many captions
// changed.
func (s *Session) MergeParagraphs() int {
	changed := 0
	for i := range s.entries {
		rec := &s.entries[i].current
		merged := simplify(newlineRuns.ReplaceAllString(rec.Caption, " "))
		if merged != rec.Caption {
			rec.Caption = merged
			changed++
		}
	}
	return changed
}

// simplify trims s and collapses every internal whitespace run to a space.
func simplify(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FillDurations probes the audio of every record whose duration is not set
// and fills in the result. Records stay unsaved until the next save.
func (s *Session) FillDurations(ctx context.Context, prober DurationProber) (int, error) {
	var paths []string
	for _, e := range s.entries {
		if e.current.Duration <= 0 && e.current.AudioPath != "" {
			paths = append(paths, e.current.AudioPath)
		}
	}
	if len(paths) == 0 {
		return 0, nil
	}

	durations, err := prober.ProbeDurations(ctx, paths)
	if err != nil {
		return 0, fmt.Errorf("failed to probe durations: %w", err)
	}

	filled := 0
	for i := range s.entries {
		rec := &s.entries[i].current
		if rec.Duration > 0 {
			continue
		}
		if secs, ok := durations[rec.AudioPath]; ok && secs > 0 {
			rec.Duration = secs
			filled++
		}
	}
	return filled, nil
}

func (s *Session) setRecords(records []models.Record) {
	for i := range s.entries {
		s.entries[i].current = records[i]
	}
}
