package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/dataset"
	"curator/internal/metadata"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const testAudio = "0123456789"

func createTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(testAudio), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	extractor := metadata.NewExtractor(cfg.Dataset.AudioExtensions, logger, nil)
	session := dataset.NewSession(extractor, logger)
	if err := session.OpenFolder(dir); err != nil {
		t.Fatalf("failed to open dataset: %v", err)
	}

	return NewServer(cfg, session, extractor, nil, logger)
}

func firstTrackID(t *testing.T, s *Server) string {
	t.Helper()
	records := s.session.Records()
	if len(records) == 0 {
		t.Fatal("expected records in test dataset")
	}
	return records[0].ID
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var health HealthStatus
	decodeBody(t, rec, &health)
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s", health.Status)
	}
	if health.Tracks != 2 {
		t.Errorf("expected 2 tracks, got %d", health.Tracks)
	}
	if health.Database != "disabled" {
		t.Errorf("expected database disabled, got %s", health.Database)
	}
}

func TestGetDataset(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/dataset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp datasetResponse
	decodeBody(t, rec, &resp)
	if resp.Stats.Total != 2 || resp.Stats.ToCaption != 2 {
		t.Errorf("expected 2 tracks to caption, got %+v", resp.Stats)
	}
	if resp.ManifestPath != "" {
		t.Errorf("expected no manifest yet, got %s", resp.ManifestPath)
	}
}

func TestGetDatasetNoneOpen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.DefaultConfig()
	extractor := metadata.NewExtractor(nil, logger, nil)
	s := NewServer(cfg, dataset.NewSession(extractor, logger), extractor, nil, logger)

	rec := doRequest(s, http.MethodGet, "/api/dataset", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rec.Code)
	}
}

func TestUpdateDataset(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodPut, "/api/dataset", `{"name":"lofi","customTag":"lofi-v1","tagPosition":"append","genreRatio":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp datasetResponse
	decodeBody(t, rec, &resp)
	if resp.Metadata.Name != "lofi" || resp.Metadata.GenreRatio != 30 {
		t.Errorf("unexpected metadata: %+v", resp.Metadata)
	}
	if !resp.UnsavedMetadata {
		t.Error("expected metadata to be unsaved")
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"name with separator", `{"name":"a/b"}`, "INVALID_NAME_CHARACTERS"},
		{"ratio out of range", `{"genreRatio":101}`, "INVALID_GENRE_RATIO"},
		{"unknown position", `{"tagPosition":"middle"}`, "INVALID_TAG_POSITION"},
		{"broken json", `{"name":`, "INVALID_JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPut, "/api/dataset", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			var result ValidationResult
			decodeBody(t, rec, &result)
			if result.Valid || len(result.Errors) == 0 || result.Errors[0].Code != tt.code {
				t.Errorf("expected code %s, got %+v", tt.code, result.Errors)
			}
		})
	}
}

func TestUpdateTrackAndSave(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)
	original := s.session.Records()[0]

	body := `{"caption":"warm tape hiss","bpm":84,"audioPath":"/etc/passwd","promptOverride":"Genre"}`
	rec := doRequest(s, http.MethodPut, "/api/tracks/"+id, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var track trackResponse
	decodeBody(t, rec, &track)
	if !track.Labeled || !track.Unsaved {
		t.Errorf("expected labeled unsaved track, got %+v", track)
	}
	if track.AudioPath != original.AudioPath {
		t.Errorf("expected audio path %s to be kept, got %s", original.AudioPath, track.AudioPath)
	}
	if track.PromptOverride != "genre" {
		t.Errorf("expected prompt override genre, got %q", track.PromptOverride)
	}

	rec = doRequest(s, http.MethodPost, "/api/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp datasetResponse
	decodeBody(t, rec, &resp)
	if resp.UnsavedChanges {
		t.Error("expected no unsaved changes after save")
	}
	if _, err := os.Stat(resp.ManifestPath); err != nil {
		t.Errorf("expected manifest on disk: %v", err)
	}

	rec = doRequest(s, http.MethodGet, "/api/tracks?status=unsaved", "")
	var list struct {
		Tracks []trackResponse `json:"tracks"`
		Count  int             `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("expected no unsaved tracks, got %d", list.Count)
	}
}

func TestUpdateTrackValidation(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)

	rec := doRequest(s, http.MethodPut, "/api/tracks/"+id, `{"bpm":-1,"duration":-5,"promptOverride":"lyrics"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var result ValidationResult
	decodeBody(t, rec, &result)
	if len(result.Errors) != 3 {
		t.Errorf("expected 3 validation errors, got %+v", result.Errors)
	}
}

func TestTrackNotFound(t *testing.T) {
	s := createTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := doRequest(s, method, "/api/tracks/ffffffff", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", method, rec.Code)
		}
	}
}

func TestDeleteTrack(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)

	rec := doRequest(s, http.MethodDelete, "/api/tracks/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if s.session.Len() != 1 {
		t.Errorf("expected 1 track left, got %d", s.session.Len())
	}
	if !s.session.HasUnsavedChanges() {
		t.Error("expected removal to count as an unsaved change")
	}
}

func TestGetTracksFilter(t *testing.T) {
	s := createTestServer(t, nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?q=A.WAV", 1},
		{"?status=captioned", 0},
		{"?status=uncaptioned", 2},
	}
	for _, tt := range tests {
		rec := doRequest(s, http.MethodGet, "/api/tracks"+tt.query, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", tt.query, rec.Code)
		}
		var list struct {
			Count int `json:"count"`
			Total int `json:"total"`
		}
		decodeBody(t, rec, &list)
		if list.Count != tt.want || list.Total != 2 {
			t.Errorf("%s: expected %d of 2, got %d of %d", tt.query, tt.want, list.Count, list.Total)
		}
	}

	rec := doRequest(s, http.MethodGet, "/api/tracks?status=starred", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown status, got %d", rec.Code)
	}
}

func TestApply(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/apply", `{"field":"genre","value":"lofi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, r := range s.session.Records() {
		if r.Genre != "lofi" {
			t.Errorf("expected genre lofi on %s, got %q", r.Filename, r.Genre)
		}
	}

	tests := []struct {
		body string
		code string
	}{
		{`{"field":"language","value":"xx"}`, "UNKNOWN_LANGUAGE"},
		{`{"field":"mood","value":"calm"}`, "UNKNOWN_FIELD"},
	}
	for _, tt := range tests {
		rec := doRequest(s, http.MethodPost, "/api/apply", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		var result ValidationResult
		decodeBody(t, rec, &result)
		if len(result.Errors) != 1 || result.Errors[0].Code != tt.code {
			t.Errorf("expected code %s, got %+v", tt.code, result.Errors)
		}
	}
}

func TestMergeParagraphs(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)

	doRequest(s, http.MethodPut, "/api/tracks/"+id, `{"caption":"first\n\nsecond"}`)
	rec := doRequest(s, http.MethodPost, "/api/merge-paragraphs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	track, err := s.session.Track(id)
	if err != nil {
		t.Fatal(err)
	}
	if track.Caption != "first second" {
		t.Errorf("expected merged caption, got %q", track.Caption)
	}
}

func TestBackup(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/backup", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Backup string `json:"backup"`
	}
	decodeBody(t, rec, &resp)
	if filepath.Base(filepath.Dir(resp.Backup)) != dataset.DefaultBackupDir {
		t.Errorf("expected backup in %s, got %s", dataset.DefaultBackupDir, resp.Backup)
	}
	if _, err := os.Stat(resp.Backup); err != nil {
		t.Errorf("expected backup on disk: %v", err)
	}
}

func TestStreamTrack(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)

	t.Run("full", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/stream/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != testAudio {
			t.Errorf("expected %q, got %q", testAudio, rec.Body.String())
		}
		if rec.Header().Get("Accept-Ranges") != "bytes" {
			t.Error("expected Accept-Ranges: bytes")
		}
	})

	t.Run("range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stream/"+id, nil)
		req.Header.Set("Range", "bytes=2-5")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusPartialContent {
			t.Fatalf("expected status 206, got %d", rec.Code)
		}
		if rec.Body.String() != "2345" {
			t.Errorf("expected 2345, got %q", rec.Body.String())
		}
		if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
			t.Errorf("expected Content-Range bytes 2-5/10, got %s", got)
		}
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stream/"+id, nil)
		req.Header.Set("Range", "bytes=20-")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Errorf("expected status 416, got %d", rec.Code)
		}
	})

	t.Run("not modified", func(t *testing.T) {
		first := doRequest(s, http.MethodGet, "/stream/"+id, "")
		req := httptest.NewRequest(http.MethodGet, "/stream/"+id, nil)
		req.Header.Set("If-None-Match", first.Header().Get("ETag"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotModified {
			t.Errorf("expected status 304, got %d", rec.Code)
		}
	})
}

func TestStreamMissingFile(t *testing.T) {
	s := createTestServer(t, nil)
	id := firstTrackID(t, s)
	track, _ := s.session.Track(id)
	if err := os.Remove(track.AudioPath); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, http.MethodGet, "/stream/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Server.PasswordHash = string(hash)
	s := createTestServer(t, cfg)

	tests := []struct {
		name     string
		path     string
		password string
		want     int
	}{
		{"no credentials", "/api/dataset", "", http.StatusUnauthorized},
		{"wrong password", "/api/dataset", "guess", http.StatusUnauthorized},
		{"right password", "/api/dataset", "secret", http.StatusOK},
		{"health is public", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.password != "" {
				req.SetBasicAuth("curator", tt.password)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected a generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected request ID abc-123, got %s", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.EnableCORS = true
	s := createTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/dataset", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected Access-Control-Allow-Origin: *")
	}
}

func TestPanicRecovery(t *testing.T) {
	s := createTestServer(t, nil)
	h := s.panicRecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestGetConfig(t *testing.T) {
	s := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp ConfigResponse
	decodeBody(t, rec, &resp)
	if resp.UI.Shortcuts[config.ShortcutSave] != "Ctrl+S" {
		t.Errorf("expected save shortcut Ctrl+S, got %q", resp.UI.Shortcuts[config.ShortcutSave])
	}
	if resp.UI.SeekStepSeconds != 10 {
		t.Errorf("expected seek step 10, got %d", resp.UI.SeekStepSeconds)
	}
	if len(resp.Languages) == 0 {
		t.Error("expected languages")
	}
}
