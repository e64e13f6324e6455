package watcher

import (
	"sync"

	"curator/internal/dataset"

	"github.com/sirupsen/logrus"
)

// SessionHandler applies folder changes to a dataset session, optionally
// saving after each change. Lock, when set, guards the session against
// other users such as HTTP handlers.
type SessionHandler struct {
	Session  *dataset.Session
	AutoSave bool
	Lock     sync.Locker
	Logger   *logrus.Logger
}

// FileAdded adds a record for path.
func (h *SessionHandler) FileAdded(path string) {
	h.lock()
	defer h.unlock()

	_, added, err := h.Session.AddAudioFile(path)
	if err != nil {
		h.logger().WithError(err).WithField("file_path", path).Error("Error adding audio file")
		return
	}
	if added {
		h.save()
	}
}

// FileRemoved drops the records that point at path.
func (h *SessionHandler) FileRemoved(path string) {
	h.lock()
	defer h.unlock()

	if h.Session.RemoveAudioPath(path) > 0 {
		h.save()
	}
}

func (h *SessionHandler) save() {
	if !h.AutoSave {
		return
	}
	if err := h.Session.Save(); err != nil {
		h.logger().WithError(err).Error("Auto-save failed")
	}
}

func (h *SessionHandler) lock() {
	if h.Lock != nil {
		h.Lock.Lock()
	}
}

func (h *SessionHandler) unlock() {
	if h.Lock != nil {
		h.Lock.Unlock()
	}
}

func (h *SessionHandler) logger() *logrus.Logger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}
