// Package migrate consolidates the legacy multi-key storage layout
// into the unified versioned document. The legacy layout kept one
// independently serialized JSON value per domain; migration reads them
// all, builds the unified document in memory, and commits it with a
// single write so no partial consolidation is ever visible.
package migrate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
	"github.com/alexjbarnes/lifeos/internal/localstore"
)

// Status of a migration attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// skipWindow suppresses the migration prompt after the user defers.
const skipWindow = 24 * time.Hour

// Legacy storage keys, one per domain.
const (
	keyUniversity  = "lifeos_university"
	keyFreelancing = "lifeos_freelancing"
	keyProgramming = "lifeos_programming"
	keyFinance     = "lifeos_finance"
	keyMisc        = "lifeos_misc"
	keySettings    = "lifeos_settings"
)

// Migrator detects legacy data and performs the one-time
// consolidation into the unified document.
type Migrator struct {
	store  *localstore.Store
	logger *slog.Logger
	now    func() time.Time

	status Status
}

// New creates a migrator over the local store.
func New(store *localstore.Store, logger *slog.Logger) *Migrator {
	return &Migrator{
		store:  store,
		logger: logger,
		now:    time.Now,
		status: StatusPending,
	}
}

// Status returns the state of the current or last migration attempt.
func (m *Migrator) Status() Status {
	return m.status
}

// Detect reports whether legacy data exists and the store has not yet
// been migrated to the current schema.
func (m *Migrator) Detect() (bool, error) {
	if m.store.SchemaVersion() >= document.SchemaVersion {
		return false, nil
	}

	keys, err := m.store.LegacyKeys()
	if err != nil {
		return false, fmt.Errorf("listing legacy keys: %w", err)
	}

	return len(keys) > 0, nil
}

// ShouldPrompt reports whether the migration prompt should surface:
// legacy data exists and any recorded skip has aged out of its window.
func (m *Migrator) ShouldPrompt() (bool, error) {
	found, err := m.Detect()
	if err != nil || !found {
		return false, err
	}

	skippedAt := m.store.MigrationSkippedAt()
	if !skippedAt.IsZero() && m.now().Sub(skippedAt) < skipWindow {
		return false, nil
	}

	return true, nil
}

// Skip records the user's deferral so the prompt stays quiet for the
// skip window.
func (m *Migrator) Skip() error {
	return m.store.SetMigrationSkippedAt(m.now())
}

// Run performs the migration: snapshot the legacy data verbatim for
// rollback, consolidate it in memory, then commit the unified document
// and the schema marker. Any failure leaves the legacy data and the
// snapshot untouched and the status at failed.
func (m *Migrator) Run() error {
	found, err := m.Detect()
	if err != nil {
		return err
	}

	if !found {
		return lifeoserrors.ErrNoLegacyData
	}

	m.status = StatusInProgress
	m.logger.Info("starting legacy migration")

	if err := m.store.SnapshotLegacy(); err != nil {
		m.status = StatusFailed
		return fmt.Errorf("backing up legacy data: %w", err)
	}

	env, err := m.consolidate()
	if err != nil {
		m.status = StatusFailed
		return fmt.Errorf("consolidating legacy data: %w", err)
	}

	if err := m.store.SetDocument(env); err != nil {
		m.status = StatusFailed
		return fmt.Errorf("writing unified document: %w", err)
	}

	if err := m.store.SetSchemaVersion(document.SchemaVersion); err != nil {
		m.status = StatusFailed
		return fmt.Errorf("recording schema version: %w", err)
	}

	m.status = StatusComplete
	m.logger.Info("legacy migration complete")

	return nil
}

// Rollback restores the legacy backup verbatim and removes the
// consolidated document. The caller must reload all in-memory state
// afterwards.
func (m *Migrator) Rollback() error {
	backup, err := m.store.LegacyBackup()
	if err != nil {
		return fmt.Errorf("reading legacy backup: %w", err)
	}

	if len(backup) == 0 {
		return lifeoserrors.ErrNoMigrationBackup
	}

	if err := m.store.RestoreLegacyBackup(); err != nil {
		return fmt.Errorf("restoring legacy backup: %w", err)
	}

	m.status = StatusPending
	m.logger.Info("migration rolled back")

	return nil
}

// consolidate builds the unified document from the legacy keys.
// Missing keys and malformed values fall back to defaults; legacy data
// was written by many client versions, so every field read is
// defensive.
func (m *Migrator) consolidate() (*document.Envelope, error) {
	env := document.NewDefault(m.now())
	doc := &env.Data

	if raw := m.store.GetLegacy(keyUniversity); raw != nil {
		m.parseUniversity(raw, &doc.University)
	}

	if raw := m.store.GetLegacy(keyFreelancing); raw != nil {
		m.parseFreelancing(raw, &doc.Freelancing)
	}

	if raw := m.store.GetLegacy(keyProgramming); raw != nil {
		m.parseProgramming(raw, &doc.Programming)
	}

	if raw := m.store.GetLegacy(keyFinance); raw != nil {
		m.parseFinance(raw, &doc.Finance)
	}

	if raw := m.store.GetLegacy(keyMisc); raw != nil {
		m.parseMisc(raw, &doc.Misc)
	}

	if raw := m.store.GetLegacy(keySettings); raw != nil {
		m.parseSettings(raw, &doc.Settings)
	}

	return env, nil
}

func (m *Migrator) parseUniversity(raw []byte, out *document.University) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keyUniversity)
		return
	}

	v.Get("courses").ForEach(func(_, item gjson.Result) bool {
		out.Courses = append(out.Courses, document.Course{
			ID:        legacyID(item.Get("id")),
			Name:      item.Get("name").String(),
			Code:      item.Get("code").String(),
			Credits:   int(item.Get("credits").Int()),
			Semester:  item.Get("semester").String(),
			Grade:     item.Get("grade").String(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	v.Get("assignments").ForEach(func(_, item gjson.Result) bool {
		out.Assignments = append(out.Assignments, document.Assignment{
			ID:        legacyID(item.Get("id")),
			CourseID:  item.Get("courseId").String(),
			Title:     item.Get("title").String(),
			DueDate:   legacyTime(item.Get("dueDate")),
			Done:      item.Get("done").Bool(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) parseFreelancing(raw []byte, out *document.Freelancing) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keyFreelancing)
		return
	}

	v.Get("clients").ForEach(func(_, item gjson.Result) bool {
		out.Clients = append(out.Clients, document.Client{
			ID:        legacyID(item.Get("id")),
			Name:      item.Get("name").String(),
			Email:     item.Get("email").String(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	v.Get("projects").ForEach(func(_, item gjson.Result) bool {
		out.Projects = append(out.Projects, document.FreelanceProject{
			ID:        legacyID(item.Get("id")),
			ClientID:  item.Get("clientId").String(),
			Name:      item.Get("name").String(),
			Status:    item.Get("status").String(),
			Rate:      legacyDecimal(item.Get("rate")),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) parseProgramming(raw []byte, out *document.Programming) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keyProgramming)
		return
	}

	v.Get("projects").ForEach(func(_, item gjson.Result) bool {
		out.Projects = append(out.Projects, document.CodeProject{
			ID:        legacyID(item.Get("id")),
			Name:      item.Get("name").String(),
			RepoURL:   item.Get("repoUrl").String(),
			Status:    item.Get("status").String(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) parseFinance(raw []byte, out *document.Finance) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keyFinance)
		return
	}

	v.Get("accounts").ForEach(func(_, item gjson.Result) bool {
		out.Accounts = append(out.Accounts, document.Account{
			ID:        legacyID(item.Get("id")),
			Name:      item.Get("name").String(),
			Currency:  item.Get("currency").String(),
			Balance:   legacyDecimal(item.Get("balance")),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	for field, target := range map[string]*[]document.Transaction{
		"expenses": &out.Expenses,
		"income":   &out.Income,
	} {
		v.Get(field).ForEach(func(_, item gjson.Result) bool {
			*target = append(*target, document.Transaction{
				ID:        legacyID(item.Get("id")),
				AccountID: item.Get("accountId").String(),
				Category:  item.Get("category").String(),
				Amount:    legacyDecimal(item.Get("amount")),
				Note:      item.Get("note").String(),
				Date:      legacyTime(item.Get("date")),
				UpdatedAt: legacyTime(item.Get("updatedAt")),
			})

			return true
		})
	}

	v.Get("installments").ForEach(func(_, item gjson.Result) bool {
		out.Installments = append(out.Installments, document.Installment{
			ID:          legacyID(item.Get("id")),
			Description: item.Get("description").String(),
			Total:       legacyDecimal(item.Get("total")),
			Paid:        legacyDecimal(item.Get("paid")),
			DueDay:      int(item.Get("dueDay").Int()),
			Months:      int(item.Get("months").Int()),
			UpdatedAt:   legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	v.Get("goals").ForEach(func(_, item gjson.Result) bool {
		out.Goals = append(out.Goals, document.Goal{
			ID:        legacyID(item.Get("id")),
			Name:      item.Get("name").String(),
			Target:    legacyDecimal(item.Get("target")),
			Saved:     legacyDecimal(item.Get("saved")),
			Deadline:  legacyTime(item.Get("deadline")),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	v.Get("budgets").ForEach(func(_, item gjson.Result) bool {
		out.Budgets = append(out.Budgets, document.Budget{
			ID:        legacyID(item.Get("id")),
			Category:  item.Get("category").String(),
			Limit:     legacyDecimal(item.Get("limit")),
			Month:     item.Get("month").String(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) parseMisc(raw []byte, out *document.Misc) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keyMisc)
		return
	}

	v.Get("notes").ForEach(func(_, item gjson.Result) bool {
		out.Notes = append(out.Notes, document.Note{
			ID:        legacyID(item.Get("id")),
			Title:     item.Get("title").String(),
			Body:      item.Get("body").String(),
			UpdatedAt: legacyTime(item.Get("updatedAt")),
		})

		return true
	})

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) parseSettings(raw []byte, out *document.Settings) {
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		m.warnMalformed(keySettings)
		return
	}

	if theme := v.Get("theme"); theme.Exists() {
		out.Theme = theme.String()
	}

	if currency := v.Get("currency"); currency.Exists() {
		out.Currency = currency.String()
	}

	if backup := v.Get("backup"); backup.IsObject() {
		out.Backup.AutoBackupEnabled = backup.Get("autoBackupEnabled").Bool()

		if freq := backup.Get("frequency"); freq.Exists() {
			out.Backup.Frequency = freq.String()
		}

		if maxBackups := backup.Get("maxBackups"); maxBackups.Exists() {
			out.Backup.MaxBackups = int(maxBackups.Int())
		}

		out.Backup.LastBackupTime = legacyTime(backup.Get("lastBackupTime"))
	}

	out.UpdatedAt = legacyTime(v.Get("updatedAt"))
}

func (m *Migrator) warnMalformed(key string) {
	m.logger.Warn("legacy value malformed, using defaults", slog.String("key", key))
}

// legacyID returns the stored entity ID, or mints a fresh one for
// records old clients wrote without IDs.
func legacyID(v gjson.Result) string {
	if id := v.String(); id != "" {
		return id
	}

	return document.NewID()
}

// legacyTime accepts both RFC 3339 strings and unix milliseconds,
// since legacy clients wrote whichever their serializer produced.
func legacyTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}
		}

		return t

	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC()

	default:
		return time.Time{}
	}
}

// legacyDecimal parses an amount that may be a JSON number or string.
func legacyDecimal(v gjson.Result) decimal.Decimal {
	if !v.Exists() {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}

	return d
}
