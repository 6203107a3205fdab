// Package storage implements the unified storage and cloud-sync
// engine: a single service that owns the unified document, always
// writes it to the local store synchronously, conditionally mirrors it
// to the remote store, and fans change notifications out to
// subscribers.
//
// Architecture: all state transitions happen under one mutex. Remote
// I/O runs outside the lock; every asynchronous result is committed
// only after re-checking that the generation counter has not moved,
// so a result from a stale mode or session is discarded instead of
// overwriting newer state.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/lifeos/internal/auth"
	"github.com/alexjbarnes/lifeos/internal/document"
	"github.com/alexjbarnes/lifeos/internal/localstore"
	"github.com/alexjbarnes/lifeos/internal/remotestore"
)

const (
	// defaultDebounce coalesces rapid successive edits into a single
	// remote write.
	defaultDebounce = 2 * time.Second
)

// Mode selects which stores the service touches.
type Mode string

const (
	// ModeLocal writes to the local store only.
	ModeLocal Mode = "local"

	// ModeCloud mirrors local writes to the remote store.
	ModeCloud Mode = "cloud"
)

// SyncStatus is the externally visible state of the sync machine.
type SyncStatus string

const (
	StatusIdle        SyncStatus = "idle"
	StatusChecking    SyncStatus = "checking"
	StatusUploading   SyncStatus = "uploading"
	StatusDownloading SyncStatus = "downloading"
	StatusConflict    SyncStatus = "conflict-detected"
	StatusSynced      SyncStatus = "synced"
)

// Subscriber receives the full document after every committed change.
type Subscriber func(env document.Envelope)

// Config holds the service dependencies. Remote may be nil for
// local-only operation.
type Config struct {
	Local    *localstore.Store
	Remote   remotestore.RemoteStore
	Logger   *slog.Logger
	Debounce time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service is the storage engine. Construct it once per application
// root and inject it; it holds no package-level state, so tests can
// instantiate isolated copies.
type Service struct {
	local  *localstore.Store
	remote remotestore.RemoteStore
	logger *slog.Logger
	now    func() time.Time

	debounce time.Duration

	// docMu serializes every read-modify-write cycle of the local
	// document, so concurrent mutations and background downloads cannot
	// drop each other's writes. Lock order: docMu before mu, never the
	// reverse.
	docMu sync.Mutex

	mu                  sync.Mutex
	mode                Mode
	status              SyncStatus
	session             *auth.Session
	initialSyncDone     bool
	isSyncing           bool
	isResolvingConflict bool
	conflict            *Conflict

	// generation increments on every mode or session change. Async
	// results captured under an older generation are discarded.
	generation uint64

	// pendingDirty is set when a local edit has not yet reached the
	// remote store. The debounce timer or an explicit flush clears it.
	pendingDirty bool
	saveTimer    *time.Timer

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

// New creates the storage service. The initial mode is local; call
// SetSession to transition to cloud.
func New(cfg Config) *Service {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		local:    cfg.Local,
		remote:   cfg.Remote,
		logger:   logger,
		now:      now,
		debounce: debounce,
		mode:     ModeLocal,
		status:   StatusIdle,
		subs:     make(map[int]Subscriber),
	}
}

// Mode returns the current storage mode.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// Status returns the current sync status.
func (s *Service) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Load returns the current document, creating it with defaults on
// first use. Malformed stored data is logged and treated as absent.
func (s *Service) Load() *document.Envelope {
	env, err := s.local.GetDocument()
	if err != nil {
		s.logger.Warn("stored document unreadable, using defaults",
			slog.String("error", err.Error()),
		)

		return document.NewDefault(s.now())
	}

	if env == nil {
		env = document.NewDefault(s.now())
		if err := s.local.SetDocument(env); err != nil {
			s.logger.Warn("failed to persist default document",
				slog.String("error", err.Error()),
			)
		}
	}

	return env
}

// Mutate applies fn to the document, bumps its modification time,
// writes it to the local store synchronously, notifies subscribers,
// and schedules a debounced remote write. This is the single update
// path for all document mutation. Concurrent calls are serialized, so
// no edit can overwrite another's.
func (s *Service) Mutate(fn func(doc *document.Document)) (*document.Envelope, error) {
	s.docMu.Lock()

	env := s.Load()
	fn(&env.Data)
	env.Version = document.SchemaVersion
	env.LastModified = s.now()

	if err := s.local.SetDocument(env); err != nil {
		s.docMu.Unlock()
		return nil, fmt.Errorf("writing local document: %w", err)
	}

	s.scheduleRemoteSave()
	s.docMu.Unlock()

	s.notify(*env)

	return env, nil
}

// ResetToDefaults replaces the document with module defaults. This is
// the only path that discards data, and it is always explicit.
func (s *Service) ResetToDefaults() (*document.Envelope, error) {
	s.docMu.Lock()

	env := document.NewDefault(s.now())

	if err := s.local.SetDocument(env); err != nil {
		s.docMu.Unlock()
		return nil, fmt.Errorf("writing local document: %w", err)
	}

	s.scheduleRemoteSave()
	s.docMu.Unlock()

	s.notify(*env)

	return env, nil
}

// Subscribe registers fn for change notifications and returns an
// unsubscribe function.
func (s *Service) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify fans the document out to all subscribers. Callbacks run
// outside the service lock.
func (s *Service) notify(env document.Envelope) {
	s.subMu.Lock()
	fns := make([]Subscriber, 0, len(s.subs))

	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(env)
	}
}

// scheduleRemoteSave marks the document dirty and (re)arms the
// debounce timer. Rapid successive edits keep pushing the timer out,
// so N saves coalesce into one eventual remote write of the Nth state.
func (s *Service) scheduleRemoteSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remote == nil || s.mode != ModeCloud {
		return
	}

	s.pendingDirty = true
	gen := s.generation

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}

	s.saveTimer = time.AfterFunc(s.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.flushIfCurrent(ctx, gen); err != nil {
			s.logger.Warn("debounced remote save failed",
				slog.String("error", err.Error()),
			)
		}
	})
}

// Flush forces any pending remote write to complete now. Invoked on
// shutdown and at the start of a manual sync so the last edit is
// never lost.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation

	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	return s.flushIfCurrent(ctx, gen)
}

// flushIfCurrent uploads the local document if it is still dirty and
// the generation has not moved since the flush was scheduled. The
// dirty flag is claimed before the upload; an edit landing mid-upload
// re-sets it and gets its own flush.
func (s *Service) flushIfCurrent(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if !s.pendingDirty || gen != s.generation || s.remote == nil || s.mode != ModeCloud {
		s.mu.Unlock()
		return nil
	}

	s.pendingDirty = false
	s.mu.Unlock()

	restoreDirty := func() {
		s.mu.Lock()
		if gen == s.generation {
			s.pendingDirty = true
		}
		s.mu.Unlock()
	}

	env, err := s.local.GetDocument()
	if err != nil {
		restoreDirty()
		return fmt.Errorf("reading local document for upload: %w", err)
	}

	if env == nil {
		return nil
	}

	if err := s.uploadEnvelope(ctx, env, gen); err != nil {
		restoreDirty()
		return err
	}

	return nil
}

// uploadEnvelope writes the envelope to the remote store and records
// the sync point, unless the generation moved during the write.
func (s *Service) uploadEnvelope(ctx context.Context, env *document.Envelope, gen uint64) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	if err := s.remote.WriteDocument(ctx, data); err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}

	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()

	if stale {
		s.logger.Debug("discarding stale upload result")
		return nil
	}

	s.recordSyncPoint(env)

	return nil
}

// recordSyncPoint stores the sync instant and the synced snapshot used
// as the merge base for later conflict resolution.
func (s *Service) recordSyncPoint(env *document.Envelope) {
	if err := s.local.SetLastSyncTime(s.now()); err != nil {
		s.logger.Warn("failed to record sync time", slog.String("error", err.Error()))
	}

	if err := s.local.SetSyncedSnapshot(env); err != nil {
		s.logger.Warn("failed to record synced snapshot", slog.String("error", err.Error()))
	}
}

// Close stops the debounce timer. Pending writes should be flushed
// first via Flush.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}
