package board

import (
	"time"

	"github.com/google/uuid"

	"taskboard/domain"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Toast returns the current notification; its Message is empty once cleared.
func (s *Store) Toast() domain.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toast
}

// setToastLocked replaces the toast and cancels the pending clear of the previous one.
func (s *Store) setToastLocked(kind domain.ToastKind, message string) {
	if s.toastTimer != nil {
		s.toastTimer.Stop()
	}
	id := uuid.NewString()
	s.toast = domain.Toast{ID: id, Message: message, Kind: kind}
	s.toastTimer = s.scheduler.AfterFunc(s.cfg.ToastDuration, func() { s.clearToast(id) })
}

// clearToast only clears the toast it was scheduled for, so a late timer never wipes a newer toast.
func (s *Store) clearToast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toast.ID != id {
		return
	}
	s.toast = domain.Toast{}
	s.toastTimer = nil
	s.changes.notify()
}

// Close stops the pending toast timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toastTimer != nil {
		s.toastTimer.Stop()
		s.toastTimer = nil
	}
}
