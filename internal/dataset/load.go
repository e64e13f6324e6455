package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"curator/internal/manifest"
	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

// OpenFolder loads the dataset in dir. The first *.json file by name is
// tried as the manifest; when there is none, or it fails to load, the
// folder's audio files are scanned instead. On error the session is left
// as it was.
func (s *Session) OpenFolder(dir string) error {
	folder, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("failed to open dataset folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to open dataset folder: %s is not a directory", folder)
	}

	if err := s.loadFolder(folder); err != nil {
		return err
	}
	s.explicit = false
	return nil
}

// OpenManifest loads an explicitly chosen manifest file. Its directory
// becomes the dataset folder. On error the session is left as it was.
func (s *Session) OpenManifest(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	m, err := manifest.ReadFile(abs)
	if err != nil {
		return err
	}

	s.logSkips(abs, m.Skips)
	s.reset(filepath.Dir(abs), abs, true, m.Metadata, m.Records)
	s.logger.WithFields(logrus.Fields{
		"manifest": abs,
		"samples":  len(m.Records),
	}).Info("Opened dataset manifest")
	return nil
}

// Refresh reloads the explicit manifest when there is one, otherwise the
// folder is loaded again. Unsaved edits are discarded.
func (s *Session) Refresh() error {
	if !s.IsOpen() {
		return ErrNoDataset
	}

	if s.explicit && s.manifestPath != "" {
		if _, err := os.Stat(s.manifestPath); err == nil {
			return s.OpenManifest(s.manifestPath)
		}
	}
	return s.loadFolder(s.folder)
}

func (s *Session) loadFolder(folder string) error {
	if candidates, err := manifestCandidates(folder); err != nil {
		return err
	} else if len(candidates) > 0 {
		path := candidates[0]
		m, err := manifest.ReadFile(path)
		if err == nil {
			s.logSkips(path, m.Skips)
			s.reset(folder, path, s.explicit, m.Metadata, m.Records)
			s.logger.WithFields(logrus.Fields{
				"folder":   folder,
				"manifest": path,
				"samples":  len(m.Records),
			}).Info("Loaded dataset manifest from folder")
			return nil
		}
		s.logger.WithError(err).WithField("manifest", path).Warn("Failed to load manifest, scanning audio files instead")
	}

	records, err := s.scan(folder)
	if err != nil {
		return err
	}

	meta := models.NewDatasetMetadata()
	meta.Name = folderName(folder)
	s.reset(folder, "", s.explicit, meta, records)
	s.logger.WithFields(logrus.Fields{
		"folder":  folder,
		"samples": len(records),
	}).Info("Scanned dataset folder")
	return nil
}

// scan builds one record per audio file directly in folder.
func (s *Session) scan(folder string) ([]models.Record, error) {
	if s.lister == nil {
		return nil, fmt.Errorf("failed to scan %s: no audio lister configured", folder)
	}
	paths, err := s.lister.ListAudioFiles(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset folder: %w", err)
	}

	records := make([]models.Record, len(paths))
	for i, p := range paths {
		records[i] = models.NewRecord(p)
	}
	return records, nil
}

// manifestCandidates lists the readable *.json files in folder by name.
func manifestCandidates(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(folder, n)
	}
	return paths, nil
}

// folderName is the folder's base name up to its first dot.
func folderName(folder string) string {
	name := filepath.Base(folder)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

func (s *Session) logSkips(path string, skips []manifest.ValidationSkip) {
	for _, skip := range skips {
		s.logger.WithFields(logrus.Fields{
			"manifest": path,
			"sample":   skip.Sample,
			"field":    skip.Field,
			"raw":      skip.Raw,
			"used":     skip.Used,
		}).Debug("Normalized manifest value")
	}
}
