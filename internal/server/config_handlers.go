package server

import (
	"net/http"

	"curator/internal/config"
	"curator/pkg/models"
)

// ConfigResponse represents the public configuration sent to the frontend
type ConfigResponse struct {
	UI        UIConfigResponse `json:"ui"`
	Languages []string         `json:"languages"`
	Formats   []string         `json:"audioExtensions"`
	Auth      bool             `json:"auth"`
}

// UIConfigResponse carries the editor preferences.
type UIConfigResponse struct {
	FontSize          int               `json:"fontSize"`
	AlwaysOnTop       bool              `json:"alwaysOnTop"`
	CaptionLyricsOnly bool              `json:"captionLyricsOnly"`
	SeekStepSeconds   int               `json:"seekStepSeconds"`
	Shortcuts         map[string]string `json:"shortcuts"`
	Sections          map[string]bool   `json:"sections"`
}

// handleGetConfig returns public configuration settings for the frontend
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ui := s.config.UI

	shortcuts := make(map[string]string, len(config.ShortcutNames))
	for _, name := range config.ShortcutNames {
		shortcuts[name] = ui.Shortcut(name)
	}

	s.respondJSON(w, http.StatusOK, ConfigResponse{
		UI: UIConfigResponse{
			FontSize:          ui.FontSize,
			AlwaysOnTop:       ui.AlwaysOnTop,
			CaptionLyricsOnly: ui.CaptionLyricsOnly,
			SeekStepSeconds:   int(ui.SeekStep().Seconds()),
			Shortcuts:         shortcuts,
			Sections:          ui.Sections,
		},
		Languages: models.Languages,
		Formats:   s.config.Dataset.AudioExtensions,
		Auth:      s.config.Server.PasswordHash != "",
	})
}
