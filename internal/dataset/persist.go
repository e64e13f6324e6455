package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"curator/internal/manifest"

	"github.com/sirupsen/logrus"
)

// BackupTimestampLayout names backup files, e.g. 20250301_140211.
const BackupTimestampLayout = "20060102_150405"

// DefaultManifestPath is <folder>/<name>.json, with "dataset" standing in
// for an empty name.
func (s *Session) DefaultManifestPath() string {
	name := strings.TrimSpace(s.meta.Name)
	if name == "" {
		name = "dataset"
	}
	return filepath.Join(s.folder, name+".json")
}

// BackupTimestamp formats t for a backup file name in local time.
func BackupTimestamp(t time.Time) string {
	return t.Local().Format(BackupTimestampLayout)
}

// Save writes the dataset to its manifest path, or to DefaultManifestPath
// when it has none. created_at is set to now and every record's custom tag
// is taken from the metadata. On failure nothing in the session changes.
func (s *Session) Save() error {
	if !s.IsOpen() {
		return ErrNoDataset
	}

	path := s.manifestPath
	if path == "" {
		path = s.DefaultManifestPath()
	}
	return s.saveTo(path)
}

// SaveAs writes the dataset to path, appending .json when missing, and
// follows that file from then on.
func (s *Session) SaveAs(path string) error {
	if !s.IsOpen() {
		return ErrNoDataset
	}

	if !strings.EqualFold(filepath.Ext(path), ".json") {
		path += ".json"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	if err := s.saveTo(abs); err != nil {
		return err
	}
	s.folder = filepath.Dir(abs)
	s.explicit = true
	return nil
}

func (s *Session) saveTo(path string) error {
	meta := s.meta
	meta.Name = strings.TrimSpace(meta.Name)
	meta.CustomTag = strings.TrimSpace(meta.CustomTag)
	meta.CreatedAt = time.Now()

	records := s.Records()
	if err := manifest.WriteFile(path, meta, records); err != nil {
		return err
	}

	s.meta = meta
	for i := range s.entries {
		s.entries[i].current.CustomTag = meta.CustomTag
	}
	s.manifestPath = path
	s.markSaved()

	s.logger.WithFields(logrus.Fields{
		"manifest": path,
		"samples":  len(records),
	}).Info("Saved dataset")
	return nil
}

// Backup copies the manifest to <folder>/<backup dir>/<base>_<timestamp>.json
// and returns the copy's path. When no manifest exists on disk yet the
// dataset is saved first.
func (s *Session) Backup() (string, error) {
	return s.backupAt(time.Now())
}

func (s *Session) backupAt(now time.Time) (string, error) {
	if !s.IsOpen() {
		return "", ErrNoDataset
	}

	source := s.manifestPath
	if source == "" {
		source = s.DefaultManifestPath()
	}
	if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
		if err := s.saveTo(source); err != nil {
			return "", fmt.Errorf("failed to save before backup: %w", err)
		}
	}

	dir := filepath.Join(s.folder, s.backupDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dst := filepath.Join(dir, backupBase(source)+"_"+BackupTimestamp(now)+".json")
	if err := copyFile(source, dst); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source": source,
		"backup": dst,
	}).Info("Created dataset backup")
	return dst, nil
}

// backupBase is the source file name up to its first dot.
func backupBase(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// HasUnsavedMetaChanges reports whether the editable metadata differs from
// the last load or save.
func (s *Session) HasUnsavedMetaChanges() bool {
	if !s.IsOpen() {
		return false
	}
	return s.meta.IsDifferentFrom(s.savedMeta)
}

// UnsavedCount is the number of records that differ from their snapshot.
func (s *Session) UnsavedCount() int {
	count := 0
	for _, e := range s.entries {
		if e.dirty() {
			count++
		}
	}
	return count
}

// HasUnsavedChanges reports whether saving would change the manifest's
// content beyond created_at.
func (s *Session) HasUnsavedChanges() bool {
	return s.HasUnsavedMetaChanges() || s.removed || s.UnsavedCount() > 0
}
