// Package document defines the unified LifeOS document: one JSON value
// per account holding every application sub-domain, wrapped in a
// versioned envelope. Exactly one authoritative document exists per
// storage location; the stores read and write it wholesale.
package document

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion tags the current envelope layout. Version 1 was the
// legacy multi-key layout consolidated by the migrator.
const SchemaVersion = 2

// Envelope is the on-disk and on-wire shape of the unified document.
type Envelope struct {
	Version      int       `json:"version"`
	Data         Document  `json:"data"`
	LastModified time.Time `json:"lastModified"`
}

// Metadata describes a stored document for conflict comparison. It is
// derived per location and never persisted inside the document itself.
type Metadata struct {
	LastModified time.Time `json:"lastModified"`
	Size         int64     `json:"size"`
}

// Document holds all application sub-domains.
type Document struct {
	University  University  `json:"university"`
	Freelancing Freelancing `json:"freelancing"`
	Programming Programming `json:"programming"`
	Finance     Finance     `json:"finance"`
	Misc        Misc        `json:"misc"`
	Settings    Settings    `json:"settings"`
}

// University tracks coursework.
type University struct {
	Courses     []Course     `json:"courses"`
	Assignments []Assignment `json:"assignments"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Credits   int       `json:"credits"`
	Semester  string    `json:"semester"`
	Grade     string    `json:"grade,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Assignment struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	Title     string    `json:"title"`
	DueDate   time.Time `json:"dueDate"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Freelancing tracks client work.
type Freelancing struct {
	Clients   []Client           `json:"clients"`
	Projects  []FreelanceProject `json:"projects"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FreelanceProject struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"clientId"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Programming tracks personal coding projects.
type Programming struct {
	Projects  []CodeProject `json:"projects"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type CodeProject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RepoURL   string    `json:"repoUrl,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Finance tracks accounts and money movements. Amounts are decimals,
// never floats.
type Finance struct {
	Accounts     []Account     `json:"accounts"`
	Expenses     []Transaction `json:"expenses"`
	Income       []Transaction `json:"income"`
	Installments []Installment `json:"installments"`
	Goals        []Goal        `json:"goals"`
	Budgets      []Budget      `json:"budgets"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	Date      time.Time       `json:"date"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Installment struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	DueDay      int             `json:"dueDay"`
	Months      int             `json:"months"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Goal struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Target    decimal.Decimal `json:"target"`
	Saved     decimal.Decimal `json:"saved"`
	Deadline  time.Time       `json:"deadline"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Budget struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Month     string          `json:"month"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Misc holds free-form notes.
type Misc struct {
	Notes     []Note    `json:"notes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Settings holds user preferences, including the backup schedule read
// and written by the auto-backup scheduler.
type Settings struct {
	Theme     string         `json:"theme"`
	Currency  string         `json:"currency"`
	Backup    BackupSettings `json:"backup"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// BackupSettings drives the auto-backup scheduler.
type BackupSettings struct {
	AutoBackupEnabled bool      `json:"autoBackupEnabled"`
	Frequency         string    `json:"frequency"`
	LastBackupTime    time.Time `json:"lastBackupTime"`
	MaxBackups        int       `json:"maxBackups"`
}

// Backup frequency names accepted in BackupSettings.Frequency.
const (
	FrequencyDaily     = "daily"
	FrequencyEvery2Day = "every-2-days"
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
)

// Encode marshals the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals an envelope from JSON.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

// Equal reports whether two documents carry the same content,
// ignoring the envelope timestamp. The comparison goes through
// canonical JSON so that decimal values with equal numeric value but
// different internal representation compare equal. Used by the
// reconciler's content-equality short-circuit.
func Equal(a, b Document) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)

	if errA != nil || errB != nil {
		return false
	}

	return bytes.Equal(aj, bj)
}
