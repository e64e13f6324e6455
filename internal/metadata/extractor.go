package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"curator/internal/cache"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

// DefaultFormats are the audio extensions a dataset folder scan picks up.
var DefaultFormats = []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".aac"}

// TagHints is the embedded tag data of an audio file. It is shown next to a
// record as a starting point for captioning and is never written back.
type TagHints struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Genre      string `json:"genre"`
	Year       int    `json:"year,omitempty"`
	Lyrics     string `json:"lyrics,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Format     string `json:"format"`
	FileType   string `json:"fileType"`
	HasPicture bool   `json:"hasPicture"`
	Duration   int    `json:"duration"` // in seconds, 0 when unknown
	FileSize   int64  `json:"fileSize"`
}

// Extractor probes audio files for durations and embedded tags.
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
	durations        *cache.DurationCache
	workers          int
}

// NewExtractor creates an extractor for the given extensions. durations may
// be nil to disable caching.
func NewExtractor(supportedFormats []string, logger *logrus.Logger, durations *cache.DurationCache) *Extractor {
	if len(supportedFormats) == 0 {
		supportedFormats = DefaultFormats
	}
	if logger == nil {
		logger = logrus.New()
	}

	formats := make([]string, 0, len(supportedFormats))
	for _, f := range supportedFormats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		formats = append(formats, f)
	}

	return &Extractor{
		supportedFormats: formats,
		logger:           logger,
		durations:        durations,
		workers:          4,
	}
}

// SetWorkers bounds how many files ProbeDurations opens at once.
func (e *Extractor) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	e.workers = n
}

// IsAudioFile checks if a file is a supported audio format. The extension
// match is case-insensitive.
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ContentType returns the MIME type for an audio file
func (e *Extractor) ContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}

// ListAudioFiles returns the absolute paths of the supported audio files
// directly inside dir, sorted by file name. Subdirectories are not entered.
func (e *Extractor) ListAudioFiles(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", abs, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !e.IsAudioFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(abs, name)
	}

	e.logger.WithFields(logrus.Fields{
		"dir":   abs,
		"files": len(paths),
	}).Debug("Scanned folder for audio files")

	return paths, nil
}

// ReadTags extracts embedded tags from an audio file. Files without readable
// tags still return the duration and size.
func (e *Extractor) ReadTags(filePath string) (TagHints, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return TagHints{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return TagHints{}, fmt.Errorf("failed to get file stats: %w", err)
	}

	hints := TagHints{FileSize: stat.Size()}

	if d, err := e.Duration(filePath); err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("Failed to calculate duration")
	} else {
		hints.Duration = d
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("No readable tags, using filename")
		hints.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
		return hints, nil
	}

	hints.Title = metadata.Title()
	if hints.Title == "" {
		hints.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	hints.Artist = metadata.Artist()
	hints.Album = metadata.Album()
	hints.Genre = metadata.Genre()
	hints.Year = metadata.Year()
	hints.Lyrics = metadata.Lyrics()
	hints.Comment = metadata.Comment()
	hints.Format = string(metadata.Format())
	hints.FileType = string(metadata.FileType())
	hints.HasPicture = metadata.Picture() != nil

	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          hints.Title,
		"genre":          hints.Genre,
		"duration":       hints.Duration,
		"processingTime": time.Since(startTime),
	}).Debug("Read tag hints")

	return hints, nil
}
