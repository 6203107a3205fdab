package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

// backupIntervals maps a configured frequency to the minimum gap
// between automatic backups.
var backupIntervals = map[string]time.Duration{
	document.FrequencyDaily:     24 * time.Hour,
	document.FrequencyEvery2Day: 48 * time.Hour,
	document.FrequencyWeekly:    7 * 24 * time.Hour,
	document.FrequencyMonthly:   30 * 24 * time.Hour,
}

// RunAutoBackup periodically checks whether an automatic backup is
// due and creates one when it is. Backups only exist in cloud mode;
// in local mode the loop idles until the next check.
func (s *Service) RunAutoBackup(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := s.autoBackupOnce(ctx); err != nil {
			s.logger.Warn("auto backup failed", slog.String("error", err.Error()))
		}
	}
}

// autoBackupOnce creates a backup when one is due per the document's
// backup settings. lastBackupTime advances only after the backup
// actually lands, so a failed attempt is retried on the next check.
// It holds the sync guard for the duration and steps aside when a
// sync or a conflict resolution is already running; the next check
// picks the work back up.
func (s *Service) autoBackupOnce(ctx context.Context) error {
	s.mu.Lock()
	ready := s.mode == ModeCloud && s.initialSyncDone && s.conflict == nil &&
		!s.isSyncing && !s.isResolvingConflict

	if !ready {
		s.mu.Unlock()
		return nil
	}

	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	env := s.Load()
	settings := env.Data.Settings.Backup

	if !settings.AutoBackupEnabled {
		return nil
	}

	interval, ok := backupIntervals[settings.Frequency]
	if !ok {
		interval = backupIntervals[document.FrequencyWeekly]
	}

	now := s.now()
	if !settings.LastBackupTime.IsZero() && now.Sub(settings.LastBackupTime) < interval {
		return nil
	}

	if err := s.CreateBackup(ctx); err != nil {
		return err
	}

	_, err := s.Mutate(func(doc *document.Document) {
		doc.Settings.Backup.LastBackupTime = now
		doc.Settings.UpdatedAt = now
	})

	return err
}

// CreateBackup snapshots the current document to remote backup
// storage and prunes the oldest backups beyond the retention limit.
func (s *Service) CreateBackup(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeCloud || s.remote == nil {
		s.mu.Unlock()
		return lifeoserrors.ErrNotCloudMode
	}
	s.mu.Unlock()

	env := s.Load()

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	name := s.now().UTC().Format("20060102T150405Z") + ".json"

	if err := s.remote.CreateBackup(ctx, name, data); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	s.logger.Info("backup created", slog.String("name", name))

	maxBackups := env.Data.Settings.Backup.MaxBackups
	if maxBackups <= 0 {
		maxBackups = document.DefaultMaxBackups
	}

	return s.pruneBackups(ctx, maxBackups)
}

// ListBackups returns the remote backups, oldest first.
func (s *Service) ListBackups(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.mode != ModeCloud || s.remote == nil {
		s.mu.Unlock()
		return nil, lifeoserrors.ErrNotCloudMode
	}
	s.mu.Unlock()

	infos, err := s.remote.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}

	return names, nil
}

// pruneBackups deletes the oldest backups until at most limit remain.
func (s *Service) pruneBackups(ctx context.Context, limit int) error {
	infos, err := s.remote.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("listing backups for pruning: %w", err)
	}

	for len(infos) > limit {
		victim := infos[0]
		if err := s.remote.DeleteBackup(ctx, victim.Name); err != nil {
			return fmt.Errorf("pruning backup %s: %w", victim.Name, err)
		}

		s.logger.Info("pruned old backup", slog.String("name", victim.Name))

		infos = infos[1:]
	}

	return nil
}
