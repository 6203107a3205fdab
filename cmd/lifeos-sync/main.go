package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/lifeos/internal/auth"
	"github.com/alexjbarnes/lifeos/internal/config"
	"github.com/alexjbarnes/lifeos/internal/localstore"
	"github.com/alexjbarnes/lifeos/internal/logging"
	"github.com/alexjbarnes/lifeos/internal/migrate"
	"github.com/alexjbarnes/lifeos/internal/notify"
	"github.com/alexjbarnes/lifeos/internal/remotestore"
	"github.com/alexjbarnes/lifeos/internal/storage"
)

var Version = "dev"

// backupCheckInterval is how often the auto-backup scheduler wakes up
// to see whether a backup is due.
const backupCheckInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, "lifeos-sync")
	logger.Info("lifeos-sync starting",
		slog.String("version", Version),
		slog.String("account", cfg.AccountID),
		slog.String("backend", cfg.RemoteBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	local, err := localstore.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer local.Close()

	if err := runMigration(cfg, local, logger); err != nil {
		return err
	}

	remote, err := buildRemote(cfg)
	if err != nil {
		return err
	}

	svc := storage.New(storage.Config{
		Local:    local,
		Remote:   remote,
		Logger:   logger,
		Debounce: cfg.SaveDebounce,
	})
	defer svc.Close()

	session := loadSession(cfg, logger)

	if svc.SetSession(session) {
		if err := svc.InitialSync(ctx); err != nil {
			logger.Warn("initial sync failed, will retry in background",
				slog.String("error", err.Error()),
			)
		}
	}

	notifyLocalMode(local, svc, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.RunReconciler(gctx, cfg.SyncInitialDelay, cfg.SyncInterval)
	})

	g.Go(func() error {
		return svc.RunAutoBackup(gctx, backupCheckInterval)
	})

	err = g.Wait()

	// Push any edit still sitting in the debounce window before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if flushErr := svc.Flush(flushCtx); flushErr != nil {
		logger.Warn("final flush failed", slog.String("error", flushErr.Error()))
	}

	if err != nil && err != context.Canceled {
		return err
	}

	logger.Info("lifeos-sync stopped")

	return nil
}

// runMigration consolidates legacy multi-key data when present. The
// consent flag stands in for the interactive migration prompt; without
// it the deferral window logic decides whether to surface a reminder.
func runMigration(cfg *config.Config, local *localstore.Store, logger *slog.Logger) error {
	migrator := migrate.New(local, logger)

	prompt, err := migrator.ShouldPrompt()
	if err != nil {
		return fmt.Errorf("detecting legacy data: %w", err)
	}

	if !prompt {
		return nil
	}

	if !cfg.MigrateOnStart {
		logger.Info("legacy data detected, set LIFEOS_MIGRATE_ON_START=true to migrate")

		if err := migrator.Skip(); err != nil {
			logger.Warn("failed to record migration skip", slog.String("error", err.Error()))
		}

		return nil
	}

	if err := migrator.Run(); err != nil {
		return fmt.Errorf("migrating legacy data: %w", err)
	}

	return nil
}

// notifyLocalMode surfaces the cloud-sync-disabled reminder at most
// once a week, using the notification dismissal records so restarts do
// not re-nag.
func notifyLocalMode(local *localstore.Store, svc *storage.Service, logger *slog.Logger) {
	if svc.Mode() != storage.ModeLocal {
		return
	}

	const reminderID = "local-mode-reminder"

	notifier := notify.New(local)

	dismissed, err := notifier.IsDismissed(reminderID)
	if err != nil || dismissed {
		return
	}

	logger.Info("running in local-only mode, edits stay on this device")

	if err := notifier.Dismiss(reminderID, localstore.ExpiryWeek); err != nil {
		logger.Warn("failed to record reminder dismissal", slog.String("error", err.Error()))
	}
}

// buildRemote constructs the configured remote backend, wrapped with
// at-rest encryption when a passphrase is set. Returns nil for
// local-only operation.
func buildRemote(cfg *config.Config) (remotestore.RemoteStore, error) {
	var remote remotestore.RemoteStore

	switch cfg.RemoteBackend {
	case config.BackendNone:
		return nil, nil

	case config.BackendAPI:
		remote = remotestore.NewHTTPStore(nil, cfg.APIBaseURL, cfg.APIToken, cfg.AccountID)

	case config.BackendS3:
		s3, err := remotestore.NewS3Store(remotestore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			UseSSL:    cfg.S3UseSSL,
			Account:   cfg.AccountID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 store: %w", err)
		}

		remote = s3

	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}

	if cfg.EncryptionPassword != "" {
		cipher, err := remotestore.NewCipher(cfg.EncryptionPassword, cfg.AccountID)
		if err != nil {
			return nil, fmt.Errorf("creating content cipher: %w", err)
		}

		remote = remotestore.NewEncryptedStore(remote, cipher)
	}

	return remote, nil
}

// loadSession parses the API token into a session when one is set.
// A missing or unparseable token means local mode.
func loadSession(cfg *config.Config, logger *slog.Logger) *auth.Session {
	if cfg.APIToken == "" {
		// S3 credentials carry no expiry; treat them as a non-expiring
		// session for the configured account.
		if cfg.RemoteBackend == config.BackendS3 {
			return &auth.Session{Token: cfg.S3AccessKey, Subject: cfg.AccountID}
		}

		return nil
	}

	session, err := auth.ParseSession(cfg.APIToken)
	if err != nil {
		logger.Warn("API token unparseable, staying in local mode",
			slog.String("error", err.Error()),
		)

		return nil
	}

	return session
}
