package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

// conflictTolerance is the timestamp delta below which two
// modifications are considered the same write observed through
// different clocks rather than independent edits.
const conflictTolerance = 2 * time.Second

// Conflict holds both sides' metadata between detection and
// resolution. It is transient and in-memory only; it is destroyed on
// resolution or on a mode switch to local.
type Conflict struct {
	LocalMeta  document.Metadata
	CloudMeta  document.Metadata
	DetectedAt time.Time
}

// ConflictCheck is the outcome of comparing the two sides.
type ConflictCheck struct {
	HasConflict bool
	LocalMeta   *document.Metadata
	CloudMeta   *document.Metadata
}

// DetectConflict decides whether local and cloud have diverged. This
// is a pure function with no I/O so both the initial sync protocol and
// tests exercise the same rule.
//
// The rule: a conflict exists iff both sides' metadata is present,
// both were modified after the last recorded sync point, and their
// modification times differ by more than a small tolerance. If either
// side's metadata is missing there is nothing to compare, so no
// conflict is reported and no automatic resolution happens.
func DetectConflict(localMeta, cloudMeta *document.Metadata, lastSync time.Time) ConflictCheck {
	check := ConflictCheck{LocalMeta: localMeta, CloudMeta: cloudMeta}

	if localMeta == nil || cloudMeta == nil {
		return check
	}

	syncPoint := lastSync.Add(conflictTolerance)
	localDirty := localMeta.LastModified.After(syncPoint)
	cloudDirty := cloudMeta.LastModified.After(syncPoint)

	delta := localMeta.LastModified.Sub(cloudMeta.LastModified)
	if delta < 0 {
		delta = -delta
	}

	check.HasConflict = localDirty && cloudDirty && delta > conflictTolerance

	return check
}

// Conflict returns the pending conflict, or nil.
func (s *Service) Conflict() *Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conflict
}

// Resolution is the user's answer to a conflict.
type Resolution string

const (
	ResolutionCloud Resolution = "cloud"
	ResolutionLocal Resolution = "local"
	ResolutionMerge Resolution = "merge"
)

// ResolveConflict applies the user's choice and persists the outcome
// to both stores. isResolvingConflict stays set for the duration so
// background syncs cannot interleave. On failure the conflict state is
// preserved so the user can retry.
func (s *Service) ResolveConflict(ctx context.Context, res Resolution) error {
	s.mu.Lock()

	if s.conflict == nil {
		s.mu.Unlock()
		return lifeoserrors.ErrNoConflict
	}

	if s.isResolvingConflict || s.isSyncing {
		s.mu.Unlock()
		return lifeoserrors.ErrSyncInProgress
	}

	s.isResolvingConflict = true
	gen := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isResolvingConflict = false
		s.mu.Unlock()
	}()

	env, err := s.applyResolution(ctx, res, gen)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.conflict = nil
		s.status = StatusSynced
	}
	s.mu.Unlock()

	s.recordSyncPoint(env)
	s.logger.Info("conflict resolved", slog.String("resolution", string(res)))

	return nil
}

func (s *Service) applyResolution(ctx context.Context, res Resolution, gen uint64) (*document.Envelope, error) {
	switch res {
	case ResolutionCloud:
		return s.resolveWithCloud(ctx)

	case ResolutionLocal:
		env := s.Load()
		if err := s.uploadEnvelope(ctx, env, gen); err != nil {
			return nil, err
		}

		return env, nil

	case ResolutionMerge:
		return s.resolveWithMerge(ctx, gen)

	default:
		return nil, fmt.Errorf("%w: %q", lifeoserrors.ErrUnknownResolution, res)
	}
}

// resolveWithCloud overwrites the local document with the remote one.
func (s *Service) resolveWithCloud(ctx context.Context) (*document.Envelope, error) {
	env, err := s.fetchRemoteEnvelope(ctx)
	if err != nil {
		return nil, err
	}

	s.docMu.Lock()
	if err := s.local.SetDocument(env); err != nil {
		s.docMu.Unlock()
		return nil, fmt.Errorf("writing local document: %w", err)
	}
	s.docMu.Unlock()

	s.notify(*env)

	return env, nil
}

// resolveWithMerge builds a combined document, persists it locally,
// and uploads it. The last-synced snapshot, when available, serves as
// the common ancestor for three-way note merges.
func (s *Service) resolveWithMerge(ctx context.Context, gen uint64) (*document.Envelope, error) {
	remoteEnv, err := s.fetchRemoteEnvelope(ctx)
	if err != nil {
		return nil, err
	}

	s.docMu.Lock()

	localEnv := s.Load()

	var base *document.Document

	snapshot, err := s.local.SyncedSnapshot()
	if err != nil {
		s.logger.Warn("synced snapshot unreadable, merging without base",
			slog.String("error", err.Error()),
		)
	} else if snapshot != nil {
		base = &snapshot.Data
	}

	merged := &document.Envelope{
		Version:      document.SchemaVersion,
		Data:         document.Merge(localEnv.Data, remoteEnv.Data, base),
		LastModified: s.now(),
	}

	if err := s.local.SetDocument(merged); err != nil {
		s.docMu.Unlock()
		return nil, fmt.Errorf("writing merged document: %w", err)
	}
	s.docMu.Unlock()

	if err := s.uploadEnvelope(ctx, merged, gen); err != nil {
		return nil, err
	}

	s.notify(*merged)

	return merged, nil
}

// fetchRemoteEnvelope reads and decodes the remote document.
func (s *Service) fetchRemoteEnvelope(ctx context.Context) (*document.Envelope, error) {
	data, err := s.remote.ReadDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading remote document: %w", err)
	}

	env, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding remote document: %w", err)
	}

	return env, nil
}
