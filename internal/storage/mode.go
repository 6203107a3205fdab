package storage

import (
	"log/slog"

	"github.com/alexjbarnes/lifeos/internal/auth"
)

// SetSession applies a new authentication state and selects the
// storage mode: cloud when the session is valid and a remote store is
// configured, local otherwise. Returns true when the caller should run
// the initial sync protocol (a fresh transition into cloud mode).
//
// Every session change discards the previous session's transient
// state: parked conflicts, the initial-sync marker, and any pending
// debounced remote write. Transitioning to cloud arms the one-shot
// initial-sync guard for the new session.
func (s *Service) SetSession(session *auth.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := ModeLocal
	if session.Valid(s.now()) && s.remote != nil {
		target = ModeCloud
	}

	sameSession := s.session != nil && session != nil && s.session.Token == session.Token
	if target == s.mode && (target == ModeLocal || sameSession) {
		return false
	}

	s.session = session
	s.generation++

	// Everything transient belongs to the previous session: a parked
	// conflict, the one-shot marker, and any pending debounced write.
	// A different account's conflict must never block the new one.
	s.conflict = nil
	s.initialSyncDone = false
	s.pendingDirty = false
	s.status = StatusIdle

	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}

	if target == ModeLocal {
		s.mode = ModeLocal

		s.logger.Info("storage mode changed", slog.String("mode", string(ModeLocal)))

		return false
	}

	s.mode = ModeCloud

	s.logger.Info("storage mode changed",
		slog.String("mode", string(ModeCloud)),
		slog.String("account", session.Subject),
	)

	return true
}
