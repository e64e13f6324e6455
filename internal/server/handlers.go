package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"curator/internal/dataset"
	"curator/internal/manifest"
	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

// datasetResponse is the dataset overview shown above the track list.
type datasetResponse struct {
	Folder          string                 `json:"folder"`
	ManifestPath    string                 `json:"manifestPath"`
	Explicit        bool                   `json:"explicitManifest"`
	Metadata        models.DatasetMetadata `json:"metadata"`
	Stats           dataset.Stats          `json:"stats"`
	UnsavedMetadata bool                   `json:"unsavedMetadata"`
	UnsavedChanges  bool                   `json:"unsavedChanges"`
}

// trackResponse is a record plus its derived state.
type trackResponse struct {
	models.Record
	Labeled bool `json:"labeled"`
	Unsaved bool `json:"unsaved"`
}

type applyRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) datasetView() datasetResponse {
	return datasetResponse{
		Folder:          s.session.Folder(),
		ManifestPath:    s.session.ManifestPath(),
		Explicit:        s.session.IsExplicitManifest(),
		Metadata:        s.session.Metadata(),
		Stats:           s.session.Stats(),
		UnsavedMetadata: s.session.HasUnsavedMetaChanges(),
		UnsavedChanges:  s.session.HasUnsavedChanges(),
	}
}

func (s *Server) trackView(rec models.Record) trackResponse {
	return trackResponse{
		Record:  rec,
		Labeled: rec.Labeled(),
		Unsaved: s.session.TrackDirty(rec.ID),
	}
}

// handleGetDataset returns the metadata and captioning progress.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsOpen() {
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", dataset.ErrNoDataset)
		return
	}
	s.respondJSON(w, http.StatusOK, s.datasetView())
}

// handleUpdateDataset applies a partial metadata edit.
func (s *Server) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	var update dataset.MetadataUpdate
	if verr := decodeJSON(w, r, &update); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if errs := validateMetadataUpdate(update); len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.UpdateMetadata(update); err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.datasetView())
}

// handleGetTracks lists the records, optionally filtered by ?status= and a
// case-insensitive ?q= over file name, caption and genre.
func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("q"))
	status := r.URL.Query().Get("status")

	var errs []ValidationError
	if verr := validateSearchQuery(query); verr != nil {
		errs = append(errs, *verr)
	}
	if verr := validateTrackStatus(status); verr != nil {
		errs = append(errs, *verr)
	}
	if len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsOpen() {
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", dataset.ErrNoDataset)
		return
	}

	query = strings.ToLower(query)
	tracks := make([]trackResponse, 0, s.session.Len())
	for _, rec := range s.session.Records() {
		view := s.trackView(rec)
		if !matchesStatus(view, status) || !matchesQuery(rec, query) {
			continue
		}
		tracks = append(tracks, view)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"count":  len(tracks),
		"total":  s.session.Len(),
	})
}

func matchesStatus(t trackResponse, status string) bool {
	switch status {
	case "captioned":
		return t.Labeled
	case "uncaptioned":
		return !t.Labeled
	case "unsaved":
		return t.Unsaved
	default:
		return true
	}
}

func matchesQuery(rec models.Record, query string) bool {
	if query == "" {
		return true
	}
	for _, v := range []string{rec.Filename, rec.Caption, rec.Genre} {
		if strings.Contains(strings.ToLower(v), query) {
			return true
		}
	}
	return false
}

// handleGetTrack returns a single record.
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if verr := validateTrackID(id); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.session.Track(id)
	if err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.trackView(rec))
}

// handleUpdateTrack replaces the editable fields of a record. The id, audio
// path, file name and custom tag stay as the session has them.
func (s *Server) handleUpdateTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if verr := validateTrackID(id); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	var rec models.Record
	if verr := decodeJSON(w, r, &rec); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	if errs := validateRecord(rec); len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.session.Track(id)
	if err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	rec.ID = current.ID
	rec.AudioPath = current.AudioPath
	rec.Filename = current.Filename
	rec.CustomTag = current.CustomTag

	if err := s.session.UpdateTrack(rec); err != nil {
		s.respondSessionError(w, r, err)
		return
	}

	updated, _ := s.session.Track(id)
	s.respondJSON(w, http.StatusOK, s.trackView(updated))
}

// handleDeleteTrack drops a record from the dataset. The audio file stays.
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if verr := validateTrackID(id); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.RemoveTrack(id); err != nil {
		s.respondSessionError(w, r, err)
		return
	}

	s.logger.WithField("track_id", id).Info("Removed track from dataset")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

// handleGetTrackTags reads the embedded tags of a record's audio file.
func (s *Server) handleGetTrackTags(w http.ResponseWriter, r *http.Request) {
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

	hints, err := s.extractor.ReadTags(rec.AudioPath)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Audio file not readable", err)
		return
	}
	s.respondJSON(w, http.StatusOK, hints)
}

// handleSave writes the manifest and records the dataset as recently used.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.Save(); err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.recordOpen()
	s.respondJSON(w, http.StatusOK, s.datasetView())
}

// handleBackup copies the manifest into the backup folder.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.session.Backup()
	if err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"backup":  path,
	})
}

// handleRefresh reloads the dataset from disk, discarding unsaved edits.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.Refresh(); err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.datasetView())
}

// handleApply rewrites one field on every record.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	field, verr := validateApply(req)
	if verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsOpen() {
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", dataset.ErrNoDataset)
		return
	}
	if err := s.session.ApplyField(field, req.Value); err != nil {
		s.respondSessionError(w, r, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"field":   field,
		"samples": s.session.Len(),
	}).Info("Applied field to all tracks")
	s.respondJSON(w, http.StatusOK, s.datasetView())
}

// handleMergeParagraphs joins multi-line captions.
func (s *Server) handleMergeParagraphs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsOpen() {
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", dataset.ErrNoDataset)
		return
	}
	changed := s.session.MergeParagraphs()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"changed": changed,
	})
}

// handleFillDurations probes the audio of records without a duration. The
// files are probed without holding the session lock.
func (s *Server) handleFillDurations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if !s.session.IsOpen() {
		s.mu.Unlock()
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", dataset.ErrNoDataset)
		return
	}
	var paths []string
	for _, rec := range s.session.Records() {
		if rec.Duration <= 0 && rec.AudioPath != "" {
			paths = append(paths, rec.AudioPath)
		}
	}
	s.mu.Unlock()

	durations, err := s.extractor.ProbeDurations(r.Context(), paths)
	if err != nil {
		s.respondWithError(w, r, http.StatusServiceUnavailable, "Duration probing interrupted", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filled, err := s.session.FillDurations(r.Context(), probed(durations))
	if err != nil {
		s.respondSessionError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"filled":  filled,
	})
}

// probed serves durations that were measured earlier.
type probed map[string]int

func (p probed) ProbeDurations(_ context.Context, paths []string) (map[string]int, error) {
	out := make(map[string]int, len(paths))
	for _, path := range paths {
		if secs, ok := p[path]; ok {
			out[path] = secs
		}
	}
	return out, nil
}

// respondSessionError maps session and manifest errors to HTTP statuses.
func (s *Server) respondSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dataset.ErrNoDataset):
		s.respondWithError(w, r, http.StatusConflict, "No dataset open", err)
	case errors.Is(err, dataset.ErrTrackNotFound):
		s.respondWithError(w, r, http.StatusNotFound, "Track not found", err)
	case errors.Is(err, models.ErrUnknownField), errors.Is(err, models.ErrUnknownLanguage):
		s.respondWithError(w, r, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, manifest.ErrNotFound):
		s.respondWithError(w, r, http.StatusNotFound, "Manifest not found", err)
	case errors.Is(err, manifest.ErrParse):
		s.respondWithError(w, r, http.StatusUnprocessableEntity, "Manifest could not be parsed", err)
	default:
		s.respondWithError(w, r, http.StatusInternalServerError, "Dataset operation failed", err)
	}
}

// recordOpen updates the recent-datasets registry. Failures only get logged.
func (s *Server) recordOpen() {
	if s.db == nil {
		return
	}
	stats := s.session.Stats()
	err := s.db.RecordOpen(models.RecentDataset{
		Path:         s.session.Folder(),
		ManifestPath: s.session.ManifestPath(),
		Name:         s.session.Metadata().Name,
		NumSamples:   stats.Total,
		Captioned:    stats.Captioned,
		LastOpened:   time.Now(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to update recent datasets")
	}
}
