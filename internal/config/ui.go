package config

import (
	"path/filepath"
	"time"
)

// Shortcut names used as keys of [ui.shortcuts].
const (
	ShortcutFocusSearch  = "focus_search"
	ShortcutSave         = "save"
	ShortcutBackup       = "backup"
	ShortcutPlayPause    = "play_pause"
	ShortcutSeekBackward = "seek_backward"
	ShortcutSeekForward  = "seek_forward"
)

// ShortcutNames lists every configurable shortcut.
var ShortcutNames = []string{
	ShortcutFocusSearch,
	ShortcutSave,
	ShortcutBackup,
	ShortcutPlayPause,
	ShortcutSeekBackward,
	ShortcutSeekForward,
}

func defaultShortcuts() map[string]string {
	return map[string]string{
		ShortcutFocusSearch:  "Ctrl+F",
		ShortcutSave:         "Ctrl+S",
		ShortcutBackup:       "Ctrl+B",
		ShortcutPlayPause:    "Pause",
		ShortcutSeekBackward: "Alt+Left",
		ShortcutSeekForward:  "Alt+Right",
	}
}

// SeekStep is the audition seek distance, never less than one second.
func (u UIConfig) SeekStep() time.Duration {
	return time.Duration(max(u.SeekStepSeconds, 1)) * time.Second
}

// Shortcut returns the key sequence bound to name, falling back to the
// built-in binding. Unknown names return "".
func (u UIConfig) Shortcut(name string) string {
	if seq, ok := u.Shortcuts[name]; ok {
		return seq
	}
	return defaultShortcuts()[name]
}

// SectionExpanded reports whether the section stored under key is expanded.
func (u UIConfig) SectionExpanded(key string, def bool) bool {
	if v, ok := u.Sections[key]; ok {
		return v
	}
	return def
}

// SetSectionExpanded records the expanded state of a section.
func (u *UIConfig) SetSectionExpanded(key string, expanded bool) {
	if u.Sections == nil {
		u.Sections = map[string]bool{}
	}
	u.Sections[key] = expanded
}

// SetLastDatasetDir remembers dir, stored absolute, as the starting point of
// the next open.
func (u *UIConfig) SetLastDatasetDir(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	u.LastDatasetDir = dir
}
