package errors

import "errors"

// Auth errors.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotCloudMode = errors.New("not in cloud mode")
)

// Sync errors.
var (
	ErrNoConflict        = errors.New("no conflict to resolve")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrUnknownResolution = errors.New("unknown conflict resolution")
	ErrRemoteNotFound    = errors.New("remote document not found")
)

// Migration errors.
var (
	ErrNoLegacyData      = errors.New("no legacy data to migrate")
	ErrNoMigrationBackup = errors.New("no migration backup to roll back")
)
