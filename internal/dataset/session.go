// Package dataset holds the editing session of one dataset: the records and
// metadata loaded from a manifest or a folder scan, their saved snapshots, and
// the operations the CLI and HTTP API perform on them.
//
// A Session is single-owner and not safe for concurrent use.
package dataset

import (
	"errors"
	"strings"

	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoDataset is returned by operations that need an open dataset.
	ErrNoDataset = errors.New("no dataset open")
	// ErrTrackNotFound is returned when no record carries the requested id.
	ErrTrackNotFound = errors.New("track not found")
	// ErrNotAudio is returned when adding a file with an unsupported extension.
	ErrNotAudio = errors.New("not a supported audio file")
)

// DefaultBackupDir is the folder, relative to the dataset, that backups go to.
const DefaultBackupDir = "_Backup"

// AudioLister finds audio files for folder scans.
type AudioLister interface {
	ListAudioFiles(dir string) ([]string, error)
	IsAudioFile(path string) bool
}

// entry pairs a record with the values it had at the last load or save.
// A record added since then has no snapshot and counts as unsaved.
type entry struct {
	current  models.Record
	saved    models.Record
	hasSaved bool
}

func (e entry) dirty() bool {
	return !e.hasSaved || e.current.IsDifferentFrom(e.saved)
}

// Session is an open dataset.
type Session struct {
	lister    AudioLister
	logger    *logrus.Logger
	backupDir string

	folder       string
	manifestPath string
	explicit     bool

	meta      models.DatasetMetadata
	savedMeta models.DatasetMetadata
	entries   []entry
	// removed is set when records were dropped since the last save. A
	// removed record leaves nothing behind to compare.
	removed bool
}

// NewSession creates an empty session.
func NewSession(lister AudioLister, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		lister:    lister,
		logger:    logger,
		backupDir: DefaultBackupDir,
	}
}

// SetBackupDir changes the backup folder name. Empty restores the default.
func (s *Session) SetBackupDir(dir string) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultBackupDir
	}
	s.backupDir = dir
}

// IsOpen reports whether a dataset has been loaded.
func (s *Session) IsOpen() bool {
	return s.folder != ""
}

// Folder returns the dataset folder.
func (s *Session) Folder() string {
	return s.folder
}

// ManifestPath returns the manifest the session was loaded from or last
// saved to, or "" when it has never touched one.
func (s *Session) ManifestPath() string {
	return s.manifestPath
}

// IsExplicitManifest reports whether the session follows a manifest file
// opened directly rather than one found in a folder.
func (s *Session) IsExplicitManifest() bool {
	return s.explicit
}

// Metadata returns the current dataset metadata.
func (s *Session) Metadata() models.DatasetMetadata {
	return s.meta
}

// Len returns the number of records.
func (s *Session) Len() int {
	return len(s.entries)
}

// Records returns a copy of the current records in order.
func (s *Session) Records() []models.Record {
	out := make([]models.Record, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.current
	}
	return out
}

// TrackDirty reports whether the record with id differs from its snapshot.
func (s *Session) TrackDirty(id string) bool {
	i := s.indexOf(id)
	return i >= 0 && s.entries[i].dirty()
}

func (s *Session) indexOf(id string) int {
	for i, e := range s.entries {
		if e.current.ID == id {
			return i
		}
	}
	return -1
}

// reset replaces the whole dataset state and marks everything saved.
func (s *Session) reset(folder, manifestPath string, explicit bool, meta models.DatasetMetadata, records []models.Record) {
	s.folder = folder
	s.manifestPath = manifestPath
	s.explicit = explicit
	s.meta = meta
	s.entries = make([]entry, len(records))
	for i, rec := range records {
		s.entries[i] = entry{current: rec}
	}
	s.markSaved()
}

func (s *Session) markSaved() {
	for i := range s.entries {
		s.entries[i].saved = s.entries[i].current.Snapshot()
		s.entries[i].hasSaved = true
	}
	s.savedMeta = s.meta
	s.removed = false
}
