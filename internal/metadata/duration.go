package metadata

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"curator/internal/cache"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedFormat is returned for files whose duration cannot be probed.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Duration returns the length of an audio file in whole seconds. Results
// are cached per path, size and modification time.
func (e *Extractor) Duration(filePath string) (int, error) {
	st, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}

	key := cache.DurationKey(filePath, st.Size(), st.ModTime())
	if e.durations != nil {
		if secs, ok := e.durations.GetDuration(key); ok {
			return secs, nil
		}
	}

	secs, err := e.calculateDuration(filePath)
	if err != nil {
		return 0, err
	}

	if e.durations != nil {
		e.durations.SetDuration(key, secs)
	}
	return secs, nil
}

// ProbeDurations measures every path with at most SetWorkers files open at
// once. Files that cannot be probed are logged and left out of the result;
// only cancellation of ctx is reported as an error.
func (e *Extractor) ProbeDurations(ctx context.Context, paths []string) (map[string]int, error) {
	startTime := time.Now()

	var (
		mu      sync.Mutex
		results = make(map[string]int, len(paths))
		failed  int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			secs, err := e.Duration(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.logger.WithFields(logrus.Fields{
					"filePath": path,
					"error":    err.Error(),
				}).Warn("Failed to calculate duration")
				return nil
			}
			results[path] = secs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"files":          len(paths),
		"probed":         len(results),
		"failed":         failed,
		"processingTime": time.Since(startTime),
	}).Info("Probed audio durations")

	return results, nil
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(filePath string) (int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a":
		return e.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// durationMP3 sums decoded frame durations, estimating from the file size
// only when no frame decodes at all.
func (e *Extractor) durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		total   time.Duration
		skipped int
		frames  int
	)
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return e.estimateFromFileSize(path, 192000)
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds() + 0.5), nil
}

// durationFLAC reads the STREAMINFO block.
func (e *Extractor) durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// durationWAV reads the header and approximates the frame count from the
// file size.
func (e *Extractor) durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	const headerSize = 44
	pcmBytes := max(st.Size()-headerSize, 0)
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	secs := float64(pcmBytes/frameSize) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

// durationM4A scans top-level atoms for moov/mvhd and reads its timescale
// and duration.
func (e *Extractor) durationM4A(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, fmt.Errorf("mvhd atom not found: %w", err)
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) == "moov" {
			return readMVHD(f, int64(size)-8)
		}
		if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
}

func readMVHD(r io.ReadSeeker, limit int64) (int, error) {
	head := make([]byte, 8)
	for read := int64(0); read < limit; {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if string(head[4:8]) != "mvhd" {
			if size < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if _, err := r.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(size)
			continue
		}

		version := make([]byte, 1)
		if _, err := io.ReadFull(r, version); err != nil {
			return 0, err
		}
		// flags plus creation and modification times
		skip := int64(3 + 4 + 4)
		if version[0] == 1 {
			skip = 3 + 8 + 8
		}
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return 0, err
		}

		var timescale uint32
		if err := binary.Read(r, binary.BigEndian, &timescale); err != nil {
			return 0, err
		}
		var (
			units uint64
			err   error
		)
		if version[0] == 1 {
			err = binary.Read(r, binary.BigEndian, &units)
		} else {
			var u32 uint32
			err = binary.Read(r, binary.BigEndian, &u32)
			units = uint64(u32)
		}
		if err != nil {
			return 0, err
		}
		if timescale == 0 {
			return 0, fmt.Errorf("invalid timescale")
		}
		return int(float64(units)/float64(timescale) + 0.5), nil
	}
	return 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize is the last resort when no frame can be decoded.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (int, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int((st.Size() * 8) / int64(bitrate)), nil
}
