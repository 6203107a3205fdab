package document

import "time"

// DefaultMaxBackups is the backup retention when nothing is
// configured.
const DefaultMaxBackups = 5

// NewDefault returns a fresh envelope with module-specific defaults.
// Created on first load when no prior data exists, and by the explicit
// reset-to-defaults action.
func NewDefault(now time.Time) *Envelope {
	return &Envelope{
		Version:      SchemaVersion,
		LastModified: now,
		Data: Document{
			University:  University{Courses: []Course{}, Assignments: []Assignment{}},
			Freelancing: Freelancing{Clients: []Client{}, Projects: []FreelanceProject{}},
			Programming: Programming{Projects: []CodeProject{}},
			Finance: Finance{
				Accounts:     []Account{},
				Expenses:     []Transaction{},
				Income:       []Transaction{},
				Installments: []Installment{},
				Goals:        []Goal{},
				Budgets:      []Budget{},
			},
			Misc: Misc{Notes: []Note{}},
			Settings: Settings{
				Theme:    "system",
				Currency: "EUR",
				Backup: BackupSettings{
					AutoBackupEnabled: false,
					Frequency:         FrequencyWeekly,
					MaxBackups:        DefaultMaxBackups,
				},
			},
		},
	}
}
