package document

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// NewNote creates a note with a fresh ID.
func NewNote(title, body string, now time.Time) Note {
	return Note{ID: NewID(), Title: title, Body: body, UpdatedAt: now}
}

// NewExpense creates an expense transaction with a fresh ID.
func NewExpense(accountID, category string, amount decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:        NewID(),
		AccountID: accountID,
		Category:  category,
		Amount:    amount,
		Date:      now,
		UpdatedAt: now,
	}
}

// NewAccount creates an account with a fresh ID and zero balance.
func NewAccount(name, currency string, now time.Time) Account {
	return Account{
		ID:        NewID(),
		Name:      name,
		Currency:  currency,
		Balance:   decimal.Zero,
		UpdatedAt: now,
	}
}
