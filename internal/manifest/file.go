package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"curator/pkg/models"
)

// ReadFile loads and decodes the manifest at path. Samples without an
// audio_path are resolved against the manifest's directory.
func ReadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Manifest{}, fmt.Errorf("%w: failed to read %s: %w", ErrIO, path, err)
	}

	m, err := Decode(data, filepath.Dir(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteFile encodes meta and records and replaces the file at path wholesale.
func WriteFile(path string, meta models.DatasetMetadata, records []models.Record) error {
	if err := os.WriteFile(path, Encode(meta, records), 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrIO, path, err)
	}
	return nil
}
