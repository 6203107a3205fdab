package storage

import (
	"context"
	"fmt"
	"log/slog"

	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

// InitialSync runs the reconciliation protocol once after a
// transition into cloud mode. It is a one-shot per session: repeat
// calls after a completed run are no-ops, as are calls while a sync is
// already in flight. On transport failure the marker stays unset so a
// manual sync can retry.
func (s *Service) InitialSync(ctx context.Context) error {
	s.mu.Lock()

	if s.mode != ModeCloud {
		s.mu.Unlock()
		return lifeoserrors.ErrNotCloudMode
	}

	if s.initialSyncDone || s.isSyncing || s.isResolvingConflict {
		s.mu.Unlock()
		return nil
	}

	s.isSyncing = true
	s.status = StatusChecking
	gen := s.generation
	s.mu.Unlock()

	err := s.compareAndSync(ctx, gen)

	s.mu.Lock()
	s.isSyncing = false

	if gen == s.generation {
		switch {
		case err != nil:
			s.status = StatusIdle
		case s.conflict != nil:
			// Detection counts as a completed run; the protocol resumes
			// through ResolveConflict, not another InitialSync.
			s.initialSyncDone = true
		default:
			s.initialSyncDone = true
			s.status = StatusSynced
		}
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	return nil
}

// SyncNow runs the same comparison as the initial sync, on demand.
// It refuses to overlap an in-flight sync or conflict resolution.
func (s *Service) SyncNow(ctx context.Context) error {
	s.mu.Lock()

	if s.mode != ModeCloud {
		s.mu.Unlock()
		return lifeoserrors.ErrNotCloudMode
	}

	if s.isSyncing || s.isResolvingConflict {
		s.mu.Unlock()
		return lifeoserrors.ErrSyncInProgress
	}

	if s.conflict != nil {
		s.mu.Unlock()
		return lifeoserrors.ErrSyncInProgress
	}

	s.isSyncing = true
	s.status = StatusChecking
	gen := s.generation
	s.mu.Unlock()

	err := s.compareAndSync(ctx, gen)

	s.mu.Lock()
	s.isSyncing = false
	conflicted := s.conflict != nil

	if gen == s.generation {
		switch {
		case err != nil:
			s.status = StatusIdle
		case conflicted:
			// status already set by compareAndSync
		default:
			s.initialSyncDone = true
			s.status = StatusSynced
		}
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("manual sync: %w", err)
	}

	// Push any edit still waiting in the debounce window, unless the
	// comparison just parked a conflict for the user.
	if !conflicted {
		if err := s.flushIfCurrent(ctx, gen); err != nil {
			return fmt.Errorf("manual sync flush: %w", err)
		}
	}

	return nil
}

// compareAndSync fetches both sides' metadata and reconciles:
//
//	neither exists          -> nothing to do
//	only local exists       -> upload
//	only remote exists      -> download
//	both, within tolerance  -> record sync point
//	both, one side newer    -> copy newer over older
//	both diverged           -> park a conflict for the user
func (s *Service) compareAndSync(ctx context.Context, gen uint64) error {
	remoteMeta, err := s.remote.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("fetching remote metadata: %w", err)
	}

	localMeta, err := s.local.Metadata()
	if err != nil {
		s.logger.Warn("local metadata unreadable, treating document as absent",
			slog.String("error", err.Error()),
		)

		localMeta = nil
	}

	switch {
	case localMeta == nil && remoteMeta == nil:
		return nil

	case remoteMeta == nil:
		return s.uploadLocal(ctx, gen)

	case localMeta == nil:
		return s.downloadRemote(ctx, gen)
	}

	check := DetectConflict(localMeta, remoteMeta, s.local.LastSyncTime())
	if check.HasConflict {
		s.mu.Lock()
		if gen == s.generation {
			s.conflict = &Conflict{
				LocalMeta:  *localMeta,
				CloudMeta:  *remoteMeta,
				DetectedAt: s.now(),
			}
			s.status = StatusConflict
		}
		s.mu.Unlock()

		s.logger.Info("sync conflict detected",
			slog.Time("local_modified", localMeta.LastModified),
			slog.Time("cloud_modified", remoteMeta.LastModified),
		)

		return nil
	}

	delta := localMeta.LastModified.Sub(remoteMeta.LastModified)

	switch {
	case delta > conflictTolerance:
		return s.uploadLocal(ctx, gen)

	case delta < -conflictTolerance:
		return s.downloadRemote(ctx, gen)

	default:
		// Same content epoch on both sides, just refresh the sync point.
		env, err := s.local.GetDocument()
		if err == nil && env != nil {
			s.recordSyncPoint(env)
		}

		return nil
	}
}

// uploadLocal pushes the local document to the remote store.
func (s *Service) uploadLocal(ctx context.Context, gen uint64) error {
	s.setStatusIfCurrent(StatusUploading, gen)

	env := s.Load()

	if err := s.uploadEnvelope(ctx, env, gen); err != nil {
		return err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.pendingDirty = false
	}
	s.mu.Unlock()

	s.logger.Info("uploaded local document", slog.Time("modified", env.LastModified))

	return nil
}

// downloadRemote replaces the local document with the remote one and
// notifies subscribers.
func (s *Service) downloadRemote(ctx context.Context, gen uint64) error {
	s.setStatusIfCurrent(StatusDownloading, gen)

	env, err := s.fetchRemoteEnvelope(ctx)
	if err != nil {
		return err
	}

	s.docMu.Lock()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.docMu.Unlock()
		s.logger.Debug("discarding stale download result")

		return nil
	}
	s.mu.Unlock()

	if err := s.local.SetDocument(env); err != nil {
		s.docMu.Unlock()
		return fmt.Errorf("writing local document: %w", err)
	}

	s.recordSyncPoint(env)
	s.docMu.Unlock()

	s.notify(*env)

	s.logger.Info("downloaded remote document", slog.Time("modified", env.LastModified))

	return nil
}

func (s *Service) setStatusIfCurrent(status SyncStatus, gen uint64) {
	s.mu.Lock()
	if gen == s.generation {
		s.status = status
	}
	s.mu.Unlock()
}
