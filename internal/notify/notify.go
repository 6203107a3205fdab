// Package notify manages in-app notification visibility: dismissals
// with an expiry window and a permanent never-show-again list. The
// records live in the local store so they survive restarts, except
// session dismissals which are tracked in memory only.
package notify

import (
	"fmt"
	"slices"
	"time"

	"github.com/alexjbarnes/lifeos/internal/localstore"
)

// Service answers whether a notification should be shown.
type Service struct {
	store *localstore.Store
	now   func() time.Time

	// sessionDismissed holds session-scoped dismissals; they vanish
	// when the process exits.
	sessionDismissed map[string]bool
}

// New creates the notification service.
func New(store *localstore.Store) *Service {
	return &Service{
		store:            store,
		now:              time.Now,
		sessionDismissed: make(map[string]bool),
	}
}

// expiryWindow maps a dismissal expiry to its hide duration. Session
// and never are handled separately.
var expiryWindow = map[localstore.DismissalExpiry]time.Duration{
	localstore.ExpiryDay:  24 * time.Hour,
	localstore.ExpiryWeek: 7 * 24 * time.Hour,
}

// Dismiss hides a notification for the given expiry.
func (s *Service) Dismiss(id string, expiry localstore.DismissalExpiry) error {
	switch expiry {
	case localstore.ExpirySession:
		s.sessionDismissed[id] = true
		return nil

	case localstore.ExpiryNever:
		ids, err := s.store.NeverShowAgain()
		if err != nil {
			return fmt.Errorf("reading never-show-again list: %w", err)
		}

		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}

		return s.store.SetNeverShowAgain(ids)

	case localstore.ExpiryDay, localstore.ExpiryWeek:
		return s.store.SetDismissal(localstore.Dismissal{
			ID:          id,
			DismissedAt: s.now(),
			Expiry:      expiry,
		})

	default:
		return fmt.Errorf("unknown dismissal expiry %q", expiry)
	}
}

// IsDismissed reports whether a notification is currently hidden.
// Expired dismissal records are cleaned up as a side effect.
func (s *Service) IsDismissed(id string) (bool, error) {
	if s.sessionDismissed[id] {
		return true, nil
	}

	never, err := s.store.NeverShowAgain()
	if err != nil {
		return false, fmt.Errorf("reading never-show-again list: %w", err)
	}

	if slices.Contains(never, id) {
		return true, nil
	}

	d, err := s.store.GetDismissal(id)
	if err != nil {
		return false, fmt.Errorf("reading dismissal: %w", err)
	}

	if d == nil {
		return false, nil
	}

	window, ok := expiryWindow[d.Expiry]
	if !ok {
		return false, nil
	}

	if s.now().Sub(d.DismissedAt) < window {
		return true, nil
	}

	if err := s.store.DeleteDismissal(id); err != nil {
		return false, fmt.Errorf("clearing expired dismissal: %w", err)
	}

	return false, nil
}

// Restore removes a notification from the never-show-again list and
// clears any dismissal record.
func (s *Service) Restore(id string) error {
	delete(s.sessionDismissed, id)

	ids, err := s.store.NeverShowAgain()
	if err != nil {
		return fmt.Errorf("reading never-show-again list: %w", err)
	}

	trimmed := slices.DeleteFunc(ids, func(v string) bool { return v == id })
	if len(trimmed) != len(ids) {
		if err := s.store.SetNeverShowAgain(trimmed); err != nil {
			return err
		}
	}

	return s.store.DeleteDismissal(id)
}
