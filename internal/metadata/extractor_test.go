package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/cache"

	"github.com/sirupsen/logrus"
)

func newTestExtractor(durations *cache.DurationCache) *Extractor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewExtractor(nil, logger, durations)
}

// writeWAV writes a mono 16-bit PCM file of the given length.
func writeWAV(t *testing.T, path string, sampleRate, seconds int) {
	t.Helper()

	dataSize := sampleRate * 2 * seconds
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	// PCM, mono
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write wav: %v", err)
	}
}

// writeM4A writes the atoms the mvhd scan needs: ftyp, then moov holding a
// free atom and a version 0 mvhd.
func writeM4A(t *testing.T, path string, timescale, units uint32) {
	t.Helper()

	var buf bytes.Buffer
	atom := func(size uint32, name string) {
		binary.Write(&buf, binary.BigEndian, size)
		buf.WriteString(name)
	}

	atom(16, "ftyp")
	buf.WriteString("M4A ")
	binary.Write(&buf, binary.BigEndian, uint32(0))

	atom(8+8+28, "moov")
	atom(8, "free")
	atom(28, "mvhd")
	// version, flags, creation and modification times
	buf.Write(make([]byte, 12))
	binary.Write(&buf, binary.BigEndian, timescale)
	binary.Write(&buf, binary.BigEndian, units)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write m4a: %v", err)
	}
}

func TestIsAudioFile(t *testing.T) {
	e := newTestExtractor(nil)

	tests := []struct {
		path string
		want bool
	}{
		{"a.mp3", true},
		{"B.WAV", true},
		{"c.Flac", true},
		{"d.m4a", true},
		{"e.ogg", true},
		{"f.aac", true},
		{"g.json", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := e.IsAudioFile(tt.path); got != tt.want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	custom := NewExtractor([]string{"MP3", " .wav "}, nil, nil)
	if !custom.IsAudioFile("x.mp3") || !custom.IsAudioFile("x.wav") || custom.IsAudioFile("x.flac") {
		t.Error("expected custom extensions to be normalized")
	}
}

func TestContentType(t *testing.T) {
	e := newTestExtractor(nil)

	tests := map[string]string{
		"a.mp3":  "audio/mpeg",
		"a.FLAC": "audio/flac",
		"a.wav":  "audio/wav",
		"a.m4a":  "audio/mp4",
		"a.ogg":  "audio/ogg",
		"a.aac":  "audio/aac",
		"a.txt":  "application/octet-stream",
	}
	for path, want := range tests {
		if got := e.ContentType(path); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestListAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.wav", "a.MP3", "notes.txt", "set.json", "c.flac"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "d.wav"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := newTestExtractor(nil).ListAudioFiles(dir)
	if err != nil {
		t.Fatalf("ListAudioFiles failed: %v", err)
	}

	want := []string{"a.MP3", "b.wav", "c.flac"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), paths)
	}
	for i, name := range want {
		if paths[i] != filepath.Join(dir, name) {
			t.Errorf("expected %s at %d, got %s", name, i, paths[i])
		}
		if !filepath.IsAbs(paths[i]) {
			t.Errorf("expected absolute path, got %s", paths[i])
		}
	}

	if _, err := newTestExtractor(nil).ListAudioFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDuration(t *testing.T) {
	dir := t.TempDir()

	t.Run("WAV", func(t *testing.T) {
		path := filepath.Join(dir, "tone.wav")
		writeWAV(t, path, 8000, 3)

		secs, err := newTestExtractor(nil).Duration(path)
		if err != nil {
			t.Fatalf("Duration failed: %v", err)
		}
		if secs != 3 {
			t.Errorf("expected 3 seconds, got %d", secs)
		}
	})

	t.Run("M4A", func(t *testing.T) {
		path := filepath.Join(dir, "clip.m4a")
		writeM4A(t, path, 1000, 93400)

		secs, err := newTestExtractor(nil).Duration(path)
		if err != nil {
			t.Fatalf("Duration failed: %v", err)
		}
		if secs != 93 {
			t.Errorf("expected 93 seconds, got %d", secs)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		path := filepath.Join(dir, "clip.ogg")
		if err := os.WriteFile(path, []byte("OggS"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := newTestExtractor(nil).Duration(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("InvalidWAV", func(t *testing.T) {
		path := filepath.Join(dir, "broken.wav")
		if err := os.WriteFile(path, []byte("not a riff file"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := newTestExtractor(nil).Duration(path); err == nil {
			t.Error("expected error for invalid wav")
		}
	})

	t.Run("Cached", func(t *testing.T) {
		durations := cache.NewDurationCache()
		defer durations.Close()

		path := filepath.Join(dir, "cached.wav")
		writeWAV(t, path, 8000, 2)
		e := newTestExtractor(durations)

		if _, err := e.Duration(path); err != nil {
			t.Fatalf("Duration failed: %v", err)
		}
		if durations.Size() != 1 {
			t.Errorf("expected one cached duration, got %d", durations.Size())
		}
	})
}

func TestProbeDurations(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.wav")
	other := filepath.Join(dir, "b.wav")
	bad := filepath.Join(dir, "c.ogg")
	writeWAV(t, good, 8000, 1)
	writeWAV(t, other, 8000, 4)
	if err := os.WriteFile(bad, []byte("OggS"), 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(nil)
	e.SetWorkers(2)

	results, err := e.ProbeDurations(context.Background(), []string{good, other, bad})
	if err != nil {
		t.Fatalf("ProbeDurations failed: %v", err)
	}
	if results[good] != 1 || results[other] != 4 {
		t.Errorf("unexpected durations: %v", results)
	}
	if _, ok := results[bad]; ok {
		t.Error("expected unprobeable file to be left out")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.ProbeDurations(ctx, []string{good}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadTagsWithoutTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Morning Walk.wav")
	writeWAV(t, path, 8000, 2)

	hints, err := newTestExtractor(nil).ReadTags(path)
	if err != nil {
		t.Fatalf("ReadTags failed: %v", err)
	}
	if hints.Title != "Morning Walk" {
		t.Errorf("expected title from filename, got %q", hints.Title)
	}
	if hints.Duration != 2 {
		t.Errorf("expected duration 2, got %d", hints.Duration)
	}
	if hints.FileSize == 0 {
		t.Error("expected file size to be set")
	}

	if _, err := newTestExtractor(nil).ReadTags(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("expected error for missing file")
	}
}
