package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexjbarnes/lifeos/internal/document"
)

// RunReconciler periodically pulls remote changes made by other
// devices. It is pull-only: local edits reach the remote through the
// debounced save path, never from here. Errors are logged and the loop
// keeps ticking; the next interval retries naturally.
func (s *Service) RunReconciler(ctx context.Context, initialDelay, interval time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(initialDelay):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.reconcileOnce(ctx); err != nil {
			s.logger.Warn("background reconcile failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// reconcileOnce checks whether the remote document moved ahead of the
// local one and downloads it if so. It steps aside whenever another
// sync activity holds the machine or a conflict awaits the user.
func (s *Service) reconcileOnce(ctx context.Context) error {
	s.mu.Lock()

	skip := s.mode != ModeCloud ||
		!s.initialSyncDone ||
		s.isSyncing ||
		s.isResolvingConflict ||
		s.conflict != nil ||
		s.pendingDirty

	if skip {
		s.mu.Unlock()
		return nil
	}

	s.isSyncing = true
	gen := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	remoteMeta, err := s.remote.Metadata(ctx)
	if err != nil {
		return err
	}

	if remoteMeta == nil {
		return nil
	}

	localMeta, err := s.local.Metadata()
	if err != nil {
		return err
	}

	if localMeta != nil && !remoteMeta.LastModified.After(localMeta.LastModified.Add(conflictTolerance)) {
		return nil
	}

	remoteEnv, err := s.fetchRemoteEnvelope(ctx)
	if err != nil {
		return err
	}

	s.docMu.Lock()

	// Timestamps can move without the content changing, for instance
	// after a no-op save on another device. Comparing content avoids a
	// spurious local rewrite and subscriber churn.
	localEnv, err := s.local.GetDocument()
	if err == nil && localEnv != nil && document.Equal(localEnv.Data, remoteEnv.Data) {
		s.recordSyncPoint(localEnv)
		s.docMu.Unlock()

		return nil
	}

	// An edit may have landed while the remote fetch was in flight.
	// Writing over it would lose it; the flush uploads it instead and
	// the next tick reconciles from there.
	s.mu.Lock()
	stale := gen != s.generation
	dirty := s.pendingDirty
	s.mu.Unlock()

	if stale || dirty {
		s.docMu.Unlock()
		s.logger.Debug("discarding reconcile result",
			slog.Bool("stale", stale),
			slog.Bool("local_edit_pending", dirty),
		)

		return nil
	}

	if err := s.local.SetDocument(remoteEnv); err != nil {
		s.docMu.Unlock()
		return err
	}

	s.recordSyncPoint(remoteEnv)
	s.docMu.Unlock()

	s.notify(*remoteEnv)

	s.logger.Info("pulled remote changes", slog.Time("modified", remoteEnv.LastModified))

	return nil
}
