package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// Buffer size for streaming (64KB)
	streamBufferSize = 64 * 1024
)

// handleStreamTrack serves a record's audio for audition, with single-range
// support so the player can seek.
func (s *Server) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if verr := validateTrackID(id); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	s.mu.Lock()
	rec, err := s.session.Track(id)
	s.mu.Unlock()
	if err != nil {
		s.respondSessionError(w, r, err)
		return
	}

	if verr := s.validateContentType(rec.AudioPath); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := s.streamFile(w, r, rec.AudioPath, s.extractor.ContentType(rec.AudioPath)); err != nil {
		if os.IsNotExist(err) {
			s.respondWithError(w, r, http.StatusNotFound, "Audio file not found", err)
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"track_id":  id,
			"file_path": rec.AudioPath,
		}).Warn("Error streaming audio")
	}
}

// streamFile writes filePath with caching headers, honoring Range.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, filePath string, contentType string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error reading file info: %w", err)
	}

	fileSize := stat.Size()
	etag := fmt.Sprintf(`"%d-%d"`, stat.ModTime().Unix(), fileSize)

	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		return handleRangeRequest(w, file, fileSize, rangeHeader)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
	if r.Method == http.MethodHead {
		return nil
	}

	bufferedReader := bufio.NewReaderSize(file, streamBufferSize)
	buffer := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(w, bufferedReader, buffer); err != nil {
		return fmt.Errorf("error streaming file: %w", err)
	}
	return nil
}

// parseRange resolves a single "bytes=" range against size. Suffix ranges
// ("bytes=-500") address the last bytes of the file.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	rangeSpec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(rangeSpec, ",") {
		return 0, 0, false
	}
	first, last, found := strings.Cut(strings.TrimSpace(rangeSpec), "-")
	if !found {
		return 0, 0, false
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, size > 0
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}

// handleRangeRequest implements simple single-range byte serving for seeking.
func handleRangeRequest(w http.ResponseWriter, file io.ReadSeeker, fileSize int64, rangeHeader string) error {
	start, end, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking file: %w", err)
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.CopyN(w, file, contentLength); err != nil {
		return fmt.Errorf("error streaming range: %w", err)
	}
	return nil
}
