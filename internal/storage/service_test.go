package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/lifeos/internal/auth"
	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
	"github.com/alexjbarnes/lifeos/internal/localstore"
	"github.com/alexjbarnes/lifeos/internal/remotestore"
)

// openTestStore opens a throwaway bbolt store under the test temp dir.
func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// newTestService creates a service over a throwaway bbolt store and
// the given mock remote, with a fixed clock and a long debounce so
// timers never fire mid-test.
func newTestService(t *testing.T, ctrl *gomock.Controller) (*Service, *MockRemoteStore) {
	t.Helper()

	local := openTestStore(t)
	remote := NewMockRemoteStore(ctrl)

	svc := New(Config{
		Local:    local,
		Remote:   remote,
		Logger:   slog.Default(),
		Debounce: time.Hour,
		Now:      func() time.Time { return testNow },
	})
	t.Cleanup(svc.Close)

	return svc, remote
}

// cloudSession returns a session the mode selector accepts.
func cloudSession() *auth.Session {
	return &auth.Session{Token: "token-1", Subject: "alex"}
}

// seedLocal writes a document with the given modification time.
func seedLocal(t *testing.T, svc *Service, modified time.Time) *document.Envelope {
	t.Helper()

	env := document.NewDefault(modified)
	env.Data.Misc.Notes = []document.Note{{ID: "n1", Title: "first", Body: "hello", UpdatedAt: modified}}
	require.NoError(t, svc.local.SetDocument(env))

	return env
}

// encodeEnvelope marshals an envelope for mock remote reads.
func encodeEnvelope(t *testing.T, env *document.Envelope) []byte {
	t.Helper()

	data, err := env.Encode()
	require.NoError(t, err)

	return data
}

// --- mode selection ---

func TestSetSession_ValidTokenEntersCloud(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	needsSync := svc.SetSession(cloudSession())

	assert.True(t, needsSync)
	assert.Equal(t, ModeCloud, svc.Mode())
}

func TestSetSession_ExpiredTokenStaysLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	expired := &auth.Session{Token: "token-1", Subject: "alex", ExpiresAt: testNow.Add(-time.Minute)}
	needsSync := svc.SetSession(expired)

	assert.False(t, needsSync)
	assert.Equal(t, ModeLocal, svc.Mode())
}

func TestSetSession_NilSessionStaysLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	assert.False(t, svc.SetSession(nil))
	assert.Equal(t, ModeLocal, svc.Mode())
}

func TestSetSession_SameTokenDoesNotRearmInitialSync(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	assert.True(t, svc.SetSession(cloudSession()))
	assert.False(t, svc.SetSession(cloudSession()))
}

func TestSetSession_LogoutClearsConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.conflict = &Conflict{DetectedAt: testNow}
	svc.status = StatusConflict
	svc.mu.Unlock()

	svc.SetSession(nil)

	assert.Equal(t, ModeLocal, svc.Mode())
	assert.Nil(t, svc.Conflict())
	assert.Equal(t, StatusIdle, svc.Status())
}

func TestSetSession_AccountChangeClearsConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	// A different account's parked conflict must not leak into the new
	// session and block its syncs.
	needsSync := svc.SetSession(&auth.Session{Token: "token-2", Subject: "casey"})

	assert.True(t, needsSync)
	assert.Equal(t, ModeCloud, svc.Mode())
	assert.Nil(t, svc.Conflict())
	assert.Equal(t, StatusIdle, svc.Status())
}

// --- initial sync ---

func TestInitialSync_LocalModeRefused(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	err := svc.InitialSync(context.Background())
	assert.ErrorIs(t, err, lifeoserrors.ErrNotCloudMode)
}

func TestInitialSync_FreshAccountUploadsLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())

	remote.EXPECT().Metadata(gomock.Any()).Return(nil, nil)
	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, svc.InitialSync(context.Background()))

	assert.Equal(t, StatusSynced, svc.Status())
	assert.False(t, svc.local.LastSyncTime().IsZero())
}

func TestInitialSync_EmptyLocalDownloadsRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)
	svc.SetSession(cloudSession())

	remoteEnv := document.NewDefault(testNow.Add(-time.Hour))
	remoteEnv.Data.Misc.Notes = []document.Note{{ID: "r1", Title: "remote", Body: "cloud copy"}}
	data := encodeEnvelope(t, remoteEnv)

	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: remoteEnv.LastModified, Size: int64(len(data))}, nil)
	remote.EXPECT().ReadDocument(gomock.Any()).Return(data, nil)

	var notified []document.Envelope
	svc.Subscribe(func(env document.Envelope) { notified = append(notified, env) })

	require.NoError(t, svc.InitialSync(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.Data.Misc.Notes[0].ID)

	require.Len(t, notified, 1)
	assert.Equal(t, StatusSynced, svc.Status())
}

func TestInitialSync_BothSidesDivergedParksConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Minute))
	svc.SetSession(cloudSession())

	// Cloud copy modified ten minutes before the local one, both after
	// the (zero) last sync point.
	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: testNow.Add(-11 * time.Minute), Size: 128}, nil)

	require.NoError(t, svc.InitialSync(context.Background()))

	assert.Equal(t, StatusConflict, svc.Status())
	require.NotNil(t, svc.Conflict())
	assert.Equal(t, testNow, svc.Conflict().DetectedAt)
}

func TestInitialSync_RunsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())

	remote.EXPECT().Metadata(gomock.Any()).Return(nil, nil)
	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, svc.InitialSync(context.Background()))

	// Second call must not touch the remote at all.
	require.NoError(t, svc.InitialSync(context.Background()))
}

func TestInitialSync_TransportFailureAllowsRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())

	remote.EXPECT().Metadata(gomock.Any()).Return(nil, assert.AnError)
	require.Error(t, svc.InitialSync(context.Background()))
	assert.Equal(t, StatusIdle, svc.Status())

	// Marker stayed unset, so a retry re-runs the protocol.
	remote.EXPECT().Metadata(gomock.Any()).Return(nil, nil)
	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil)
	require.NoError(t, svc.InitialSync(context.Background()))
	assert.Equal(t, StatusSynced, svc.Status())
}

func TestInitialSync_TimestampsWithinToleranceJustRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	env := seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())

	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: env.LastModified.Add(time.Second), Size: 64}, nil)

	require.NoError(t, svc.InitialSync(context.Background()))

	assert.Equal(t, StatusSynced, svc.Status())
	assert.False(t, svc.local.LastSyncTime().IsZero())
}

// --- conflict resolution ---

// parkConflict puts the service into a detected-conflict state.
func parkConflict(t *testing.T, svc *Service) {
	t.Helper()

	svc.mu.Lock()
	svc.conflict = &Conflict{
		LocalMeta:  document.Metadata{LastModified: testNow.Add(-time.Minute)},
		CloudMeta:  document.Metadata{LastModified: testNow.Add(-11 * time.Minute)},
		DetectedAt: testNow,
	}
	svc.status = StatusConflict
	svc.initialSyncDone = true
	svc.mu.Unlock()
}

func TestResolveConflict_NoConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	err := svc.ResolveConflict(context.Background(), ResolutionCloud)
	assert.ErrorIs(t, err, lifeoserrors.ErrNoConflict)
}

func TestResolveConflict_UnknownResolution(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	err := svc.ResolveConflict(context.Background(), Resolution("both"))
	assert.ErrorIs(t, err, lifeoserrors.ErrUnknownResolution)
	assert.NotNil(t, svc.Conflict())
}

func TestResolveConflict_CloudWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Minute))
	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	cloudEnv := document.NewDefault(testNow.Add(-11 * time.Minute))
	cloudEnv.Data.Misc.Notes = []document.Note{{ID: "c1", Title: "cloud", Body: "kept"}}
	remote.EXPECT().ReadDocument(gomock.Any()).Return(encodeEnvelope(t, cloudEnv), nil)

	require.NoError(t, svc.ResolveConflict(context.Background(), ResolutionCloud))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Data.Misc.Notes[0].ID)
	assert.Nil(t, svc.Conflict())
	assert.Equal(t, StatusSynced, svc.Status())
}

func TestResolveConflict_LocalWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Minute))
	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, svc.ResolveConflict(context.Background(), ResolutionLocal))

	assert.Nil(t, svc.Conflict())
	assert.Equal(t, StatusSynced, svc.Status())
}

func TestResolveConflict_MergeKeepsBothSides(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Minute))
	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	cloudEnv := document.NewDefault(testNow.Add(-11 * time.Minute))
	cloudEnv.Data.Misc.Notes = []document.Note{{ID: "c1", Title: "cloud", Body: "cloud note", UpdatedAt: testNow.Add(-11 * time.Minute)}}
	remote.EXPECT().ReadDocument(gomock.Any()).Return(encodeEnvelope(t, cloudEnv), nil)
	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, svc.ResolveConflict(context.Background(), ResolutionMerge))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)

	ids := make([]string, 0, len(got.Data.Misc.Notes))
	for _, n := range got.Data.Misc.Notes {
		ids = append(ids, n.ID)
	}

	assert.ElementsMatch(t, []string{"n1", "c1"}, ids)
	assert.Nil(t, svc.Conflict())
}

func TestResolveConflict_FailurePreservesConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Minute))
	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	remote.EXPECT().ReadDocument(gomock.Any()).Return(nil, assert.AnError)

	require.Error(t, svc.ResolveConflict(context.Background(), ResolutionCloud))

	assert.NotNil(t, svc.Conflict())
	assert.Equal(t, StatusConflict, svc.Status())
}

// --- debounced saves ---

func TestMutate_CoalescesIntoSingleRemoteWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	// Three rapid edits, one eventual upload of the final state.
	remote.EXPECT().WriteDocument(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	for _, title := range []string{"a", "b", "c"} {
		_, err := svc.Mutate(func(doc *document.Document) {
			doc.Misc.Notes = append(doc.Misc.Notes, document.Note{ID: title, Title: title})
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Flush(context.Background()))

	// Flushing again with nothing pending must not upload.
	require.NoError(t, svc.Flush(context.Background()))
}

func TestMutate_LocalModeNeverTouchesRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	_, err := svc.Mutate(func(doc *document.Document) {
		doc.Settings.Theme = "dark"
	})
	require.NoError(t, err)

	require.NoError(t, svc.Flush(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Data.Settings.Theme)
}

func TestMutate_NotifiesSubscribers(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	var got []document.Envelope
	unsubscribe := svc.Subscribe(func(env document.Envelope) { got = append(got, env) })

	_, err := svc.Mutate(func(doc *document.Document) { doc.Settings.Theme = "dark" })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dark", got[0].Data.Settings.Theme)

	unsubscribe()

	_, err = svc.Mutate(func(doc *document.Document) { doc.Settings.Theme = "light" })
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMutate_ConcurrentEditsAllPersist(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	const writers = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_, err := svc.Mutate(func(doc *document.Document) {
				doc.Misc.Notes = append(doc.Misc.Notes, document.Note{
					ID:    fmt.Sprintf("note-%02d", n),
					Title: fmt.Sprintf("edit %d", n),
				})
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Len(t, got.Data.Misc.Notes, writers)
}

func TestLoad_UnreadableStoreFallsBackToDefaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	require.NoError(t, svc.local.Close())

	env := svc.Load()
	require.NotNil(t, env)
	assert.Equal(t, document.SchemaVersion, env.Version)
	assert.Equal(t, "system", env.Data.Settings.Theme)
}

// --- background reconciler ---

func TestReconcileOnce_PullsNewerRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	remoteEnv := document.NewDefault(testNow.Add(-time.Minute))
	remoteEnv.Data.Misc.Notes = []document.Note{{ID: "other-device", Title: "new"}}
	data := encodeEnvelope(t, remoteEnv)

	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: remoteEnv.LastModified, Size: int64(len(data))}, nil)
	remote.EXPECT().ReadDocument(gomock.Any()).Return(data, nil)

	var notified int
	svc.Subscribe(func(document.Envelope) { notified++ })

	require.NoError(t, svc.reconcileOnce(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, "other-device", got.Data.Misc.Notes[0].ID)
	assert.Equal(t, 1, notified)
}

func TestReconcileOnce_IdenticalContentSkipsWriteAndNotify(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	localEnv := seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	// Same content, fresher timestamp: a no-op save on another device.
	remoteEnv := &document.Envelope{
		Version:      localEnv.Version,
		Data:         localEnv.Data,
		LastModified: testNow.Add(-time.Minute),
	}

	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: remoteEnv.LastModified, Size: 64}, nil)
	remote.EXPECT().ReadDocument(gomock.Any()).Return(encodeEnvelope(t, remoteEnv), nil)

	var notified int
	svc.Subscribe(func(document.Envelope) { notified++ })

	require.NoError(t, svc.reconcileOnce(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, localEnv.LastModified.UTC(), got.LastModified.UTC())
	assert.Zero(t, notified)
}

func TestReconcileOnce_SkipsWhileConflictPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	parkConflict(t, svc)

	// No remote expectations: the tick must step aside entirely.
	require.NoError(t, svc.reconcileOnce(context.Background()))
}

func TestReconcileOnce_SkipsWithPendingLocalEdit(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.pendingDirty = true
	svc.mu.Unlock()

	require.NoError(t, svc.reconcileOnce(context.Background()))
}

func TestReconcileOnce_EditDuringFetchIsNotOverwritten(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	seedLocal(t, svc, testNow.Add(-time.Hour))
	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	remoteEnv := document.NewDefault(testNow.Add(-time.Minute))
	remoteEnv.Data.Misc.Notes = []document.Note{{ID: "other-device", Title: "new"}}

	remote.EXPECT().Metadata(gomock.Any()).
		Return(&document.Metadata{LastModified: remoteEnv.LastModified, Size: 64}, nil)

	// The edit lands while the download is in flight. The download must
	// be discarded instead of clobbering it.
	remote.EXPECT().ReadDocument(gomock.Any()).DoAndReturn(func(context.Context) ([]byte, error) {
		_, err := svc.Mutate(func(doc *document.Document) {
			doc.Misc.Notes = append(doc.Misc.Notes, document.Note{ID: "mid-edit", Title: "racing"})
		})
		require.NoError(t, err)

		return encodeEnvelope(t, remoteEnv), nil
	})

	require.NoError(t, svc.reconcileOnce(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)

	ids := make([]string, 0, len(got.Data.Misc.Notes))
	for _, n := range got.Data.Misc.Notes {
		ids = append(ids, n.ID)
	}

	assert.ElementsMatch(t, []string{"n1", "mid-edit"}, ids)
}

func TestReconcileOnce_LocalModeIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	require.NoError(t, svc.reconcileOnce(context.Background()))
}

// --- auto backup ---

func enableBackups(t *testing.T, svc *Service, last time.Time) {
	t.Helper()

	env := svc.Load()
	env.Data.Settings.Backup.AutoBackupEnabled = true
	env.Data.Settings.Backup.Frequency = document.FrequencyDaily
	env.Data.Settings.Backup.LastBackupTime = last
	require.NoError(t, svc.local.SetDocument(env))
}

func TestAutoBackup_DueAfterInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	enableBackups(t, svc, testNow.Add(-25*time.Hour))

	remote.EXPECT().CreateBackup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	remote.EXPECT().ListBackups(gomock.Any()).Return(nil, nil)

	require.NoError(t, svc.autoBackupOnce(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, testNow, got.Data.Settings.Backup.LastBackupTime.UTC())
}

func TestAutoBackup_NotDueYet(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	enableBackups(t, svc, testNow.Add(-2*time.Hour))

	// No remote expectations: two hours into a daily schedule.
	require.NoError(t, svc.autoBackupOnce(context.Background()))
}

func TestAutoBackup_DisabledDoesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	require.NoError(t, svc.autoBackupOnce(context.Background()))
}

func TestAutoBackup_SkipsWhileSyncActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.isSyncing = true
	svc.mu.Unlock()

	enableBackups(t, svc, testNow.Add(-25*time.Hour))

	// No remote expectations: the check must step aside entirely.
	require.NoError(t, svc.autoBackupOnce(context.Background()))
}

func TestAutoBackup_SkipsWhileResolvingConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.isResolvingConflict = true
	svc.mu.Unlock()

	enableBackups(t, svc, testNow.Add(-25*time.Hour))

	require.NoError(t, svc.autoBackupOnce(context.Background()))
}

func TestAutoBackup_HoldsSyncGuardWhileRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	enableBackups(t, svc, testNow.Add(-25*time.Hour))

	remote.EXPECT().CreateBackup(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, name string, data []byte) error {
			// Mid-backup, a sync attempt must be refused.
			err := svc.SyncNow(ctx)
			assert.ErrorIs(t, err, lifeoserrors.ErrSyncInProgress)

			return nil
		})
	remote.EXPECT().ListBackups(gomock.Any()).Return(nil, nil)

	require.NoError(t, svc.autoBackupOnce(context.Background()))
}

func TestAutoBackup_FailedAttemptKeepsLastBackupTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	last := testNow.Add(-25 * time.Hour)
	enableBackups(t, svc, last)

	remote.EXPECT().CreateBackup(gomock.Any(), gomock.Any(), gomock.Any()).Return(assert.AnError)

	require.Error(t, svc.autoBackupOnce(context.Background()))

	got, err := svc.local.GetDocument()
	require.NoError(t, err)
	assert.Equal(t, last.UTC(), got.Data.Settings.Backup.LastBackupTime.UTC())
}

func TestCreateBackup_PrunesOldestBeyondLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())

	env := svc.Load()
	env.Data.Settings.Backup.MaxBackups = 2
	require.NoError(t, svc.local.SetDocument(env))

	list := []remotestore.BackupInfo{
		{Name: "old1.json", CreatedAt: testNow.Add(-72 * time.Hour)},
		{Name: "old2.json", CreatedAt: testNow.Add(-48 * time.Hour)},
		{Name: "old3.json", CreatedAt: testNow.Add(-24 * time.Hour)},
	}

	remote.EXPECT().CreateBackup(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	remote.EXPECT().ListBackups(gomock.Any()).Return(list, nil)
	remote.EXPECT().DeleteBackup(gomock.Any(), "old1.json").Return(nil)

	require.NoError(t, svc.CreateBackup(context.Background()))
}

func TestCreateBackup_LocalModeRefused(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	err := svc.CreateBackup(context.Background())
	assert.ErrorIs(t, err, lifeoserrors.ErrNotCloudMode)
}

// --- stale generation ---

func TestFlush_DiscardedAfterModeSwitch(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, remote := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.initialSyncDone = true
	svc.mu.Unlock()

	_, err := svc.Mutate(func(doc *document.Document) { doc.Settings.Theme = "dark" })
	require.NoError(t, err)

	// Logout moves the generation; the pending flush must not upload.
	svc.SetSession(nil)

	require.NoError(t, svc.Flush(context.Background()))
	_ = remote
}

func TestFlush_AbsentDocumentIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl)

	svc.SetSession(cloudSession())
	svc.mu.Lock()
	svc.pendingDirty = true
	svc.mu.Unlock()

	// Dirty flag but nothing stored yet: nothing to upload, no error.
	require.NoError(t, svc.Flush(context.Background()))
}
