package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"curator/internal/dataset"
	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds JSON request bodies. Lyrics make records large but
// never this large.
const maxBodyBytes = 4 << 20

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as the response body with the given status.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// respondWithValidationError sends a structured validation error response
func (s *Server) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	s.logger.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": requestID(r),
		"errors":     errors,
	}).Warn("Validation failed")

	s.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := s.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"request_id":  requestID(r),
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *ValidationError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("Invalid JSON body: %v", err),
			Code:    "INVALID_JSON",
		}
	}
	return nil
}

// validateTrackID checks a track ID taken from the URL path. IDs are the
// eight hex characters derived from the audio path, but manifests may carry
// any non-empty string.
func validateTrackID(id string) *ValidationError {
	if id == "" {
		return &ValidationError{
			Field:   "track_id",
			Message: "Track ID cannot be empty",
			Code:    "EMPTY_TRACK_ID",
		}
	}

	if len(id) > 256 || strings.ContainsAny(id, "\x00/\\") {
		return &ValidationError{
			Field:   "track_id",
			Message: "Track ID contains invalid characters",
			Code:    "INVALID_TRACK_ID_FORMAT",
		}
	}

	return nil
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(query string) *ValidationError {
	if len(query) > 1000 {
		return &ValidationError{
			Field:   "q",
			Message: "Search query too long (max 1000 characters)",
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}

	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "q",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}

	return nil
}

// validateTrackStatus checks the status filter of a track listing.
func validateTrackStatus(status string) *ValidationError {
	switch status {
	case "", "all", "captioned", "uncaptioned", "unsaved":
		return nil
	}
	return &ValidationError{
		Field:   "status",
		Message: "Status must be one of all, captioned, uncaptioned, unsaved",
		Code:    "INVALID_STATUS",
	}
}

// validateRecord checks the editable values of a track update.
func validateRecord(rec models.Record) []ValidationError {
	var errors []ValidationError

	if rec.BPM < 0 {
		errors = append(errors, ValidationError{
			Field:   "bpm",
			Message: "BPM cannot be negative",
			Code:    "INVALID_BPM",
		})
	}

	if rec.Duration < 0 {
		errors = append(errors, ValidationError{
			Field:   "duration",
			Message: "Duration cannot be negative",
			Code:    "INVALID_DURATION",
		})
	}

	if raw := strings.TrimSpace(string(rec.PromptOverride)); raw != "" && models.ParsePromptOverride(raw) == models.PromptOverrideNone {
		errors = append(errors, ValidationError{
			Field:   "promptOverride",
			Message: "Prompt override must be caption, genre or empty",
			Code:    "INVALID_PROMPT_OVERRIDE",
		})
	}

	for field, value := range map[string]string{
		"caption":       rec.Caption,
		"genre":         rec.Genre,
		"lyrics":        rec.Lyrics,
		"keyscale":      rec.Keyscale,
		"timesignature": rec.TimeSignature,
		"language":      rec.Language,
	} {
		if strings.Contains(value, "\x00") {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "Value contains invalid characters",
				Code:    "INVALID_CHARACTERS",
			})
		}
	}

	return errors
}

// validateMetadataUpdate checks a partial metadata edit.
func validateMetadataUpdate(u dataset.MetadataUpdate) []ValidationError {
	var errors []ValidationError

	if u.Name != nil {
		name := *u.Name
		if len(name) > 255 {
			errors = append(errors, ValidationError{
				Field:   "name",
				Message: "Dataset name too long (max 255 characters)",
				Code:    "NAME_TOO_LONG",
			})
		}
		// The name becomes a file name on save.
		if strings.ContainsAny(name, "\x00\n\r/\\") {
			errors = append(errors, ValidationError{
				Field:   "name",
				Message: "Dataset name contains invalid characters",
				Code:    "INVALID_NAME_CHARACTERS",
			})
		}
	}

	if u.CustomTag != nil && strings.ContainsAny(*u.CustomTag, "\x00\n\r") {
		errors = append(errors, ValidationError{
			Field:   "customTag",
			Message: "Custom tag contains invalid characters",
			Code:    "INVALID_TAG_CHARACTERS",
		})
	}

	if u.TagPosition != nil {
		switch *u.TagPosition {
		case string(models.TagPrepend), string(models.TagAppend), string(models.TagReplace), "replace_caption":
		default:
			errors = append(errors, ValidationError{
				Field:   "tagPosition",
				Message: "Tag position must be prepend, append or replace",
				Code:    "INVALID_TAG_POSITION",
			})
		}
	}

	if u.GenreRatio != nil && (*u.GenreRatio < 0 || *u.GenreRatio > 100) {
		errors = append(errors, ValidationError{
			Field:   "genreRatio",
			Message: "Genre ratio must be between 0 and 100",
			Code:    "INVALID_GENRE_RATIO",
		})
	}

	return errors
}

// validateApply checks an apply-to-all request and resolves its field.
func validateApply(req applyRequest) (models.Field, *ValidationError) {
	field, err := models.ParseField(req.Field)
	if err != nil {
		return "", &ValidationError{
			Field:   "field",
			Message: err.Error(),
			Code:    "UNKNOWN_FIELD",
		}
	}

	if field == models.FieldLanguage && !models.IsKnownLanguage(req.Value) {
		return "", &ValidationError{
			Field:   "value",
			Message: fmt.Sprintf("Unknown language %q", req.Value),
			Code:    "UNKNOWN_LANGUAGE",
		}
	}

	if strings.Contains(req.Value, "\x00") {
		return "", &ValidationError{
			Field:   "value",
			Message: "Value contains invalid characters",
			Code:    "INVALID_CHARACTERS",
		}
	}

	return field, nil
}

// validateContentType validates content types for streaming
func (s *Server) validateContentType(filePath string) *ValidationError {
	ext := strings.ToLower(filepath.Ext(filePath))

	if !s.extractor.IsAudioFile(filePath) {
		return &ValidationError{
			Field:   "file_type",
			Message: fmt.Sprintf("Unsupported file type: %s", ext),
			Code:    "UNSUPPORTED_FILE_TYPE",
		}
	}

	return nil
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
