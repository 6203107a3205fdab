// Package remotestore reads and writes the unified document against a
// cloud file-storage API. One file per account, read and written
// wholesale; metadata is exposed separately from content so the sync
// engine can compare modification state without fetching the document.
package remotestore

import (
	"context"
	"errors"
	"time"

	"github.com/alexjbarnes/lifeos/internal/document"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// BackupInfo describes one remote backup snapshot.
type BackupInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// RemoteStore is the contract the sync engine needs from any cloud
// backend: wholesale document read/write, cheap metadata, and backup
// snapshot management.
//
//go:generate go run go.uber.org/mock/mockgen -destination ../storage/mock_remote_test.go -package storage . RemoteStore
type RemoteStore interface {
	// Metadata returns the remote document's modification metadata, or
	// nil when no document exists for the account.
	Metadata(ctx context.Context) (*document.Metadata, error)

	// ReadDocument fetches the document content. Returns
	// errors.ErrRemoteNotFound when absent.
	ReadDocument(ctx context.Context) ([]byte, error)

	// WriteDocument replaces the document content.
	WriteDocument(ctx context.Context, data []byte) error

	// ListBackups returns all backup snapshots, oldest first.
	ListBackups(ctx context.Context) ([]BackupInfo, error)

	// CreateBackup stores a named backup snapshot.
	CreateBackup(ctx context.Context, name string, data []byte) error

	// DeleteBackup removes a backup snapshot.
	DeleteBackup(ctx context.Context, name string) error
}
