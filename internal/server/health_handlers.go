package server

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Database  string                 `json:"database"`
	Storage   string                 `json:"storage"`
	Tracks    int                    `json:"trackCount"`
	Unsaved   bool                   `json:"unsavedChanges"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Database:  "ok",
		Storage:   "ok",
		Details:   make(map[string]interface{}),
	}

	if s.db == nil {
		health.Database = "disabled"
	} else if err := s.db.Ping(); err != nil {
		// The registry is optional, so it does not make the server unhealthy.
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	}

	s.mu.Lock()
	folder := s.session.Folder()
	health.Tracks = s.session.Len()
	health.Unsaved = s.session.HasUnsavedChanges()
	s.mu.Unlock()

	if err := checkStorageHealth(folder); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, health)
}

// checkStorageHealth validates that the dataset folder is still there.
func checkStorageHealth(folder string) error {
	if folder == "" {
		return fmt.Errorf("no dataset open")
	}
	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", folder)
	}
	return nil
}
