package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Directions for bank transaction date-window searches, relative to the
// reference date.
const (
	DirectionAfter  = "after"
	DirectionBefore = "before"
	DirectionBoth   = "both"
)

// BankTransactionFilter narrows a candidate search. Amount is matched
// against either the debit or the credit column within Epsilon; the date
// window is [Date, Date+WindowDays], [Date-WindowDays, Date] or both,
// depending on Direction. DescriptionContains is a case-insensitive
// substring filter, empty means no filter.
type BankTransactionFilter struct {
	Amount              decimal.Decimal
	Epsilon             decimal.Decimal
	Date                string // YYYY-MM-DD
	WindowDays          int
	Direction           string
	DescriptionContains string
}

// Store is the persistence contract the reconciliation services run
// against. Every method takes a context; implementations exist for sqlite
// (production) and memory (tests).
type Store interface {
	// Obligations
	InsertObligation(ctx context.Context, o *models.Obligation) (int64, error)
	GetObligation(ctx context.Context, id int64) (*models.Obligation, error)
	ListObligations(ctx context.Context) ([]models.Obligation, error)
	ListObligationsByCounterparty(ctx context.Context, counterparty string) ([]models.Obligation, error)
	FindObligationByIdempotencyKey(ctx context.Context, key string) (*models.Obligation, error)
	UpdateObligationAmountField(ctx context.Context, id int64, field string, amount decimal.Decimal) error
	UpdateObligationDescription(ctx context.Context, id int64, description string) error
	SetObligationBankLink(ctx context.Context, id int64, bankTransactionID *int64) error
	SetObligationVerification(ctx context.Context, id int64, verified bool, verifiedAt *time.Time, verifiedBy string) error
	DeleteObligation(ctx context.Context, id int64) error

	// Ledger entries
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) (int64, error)
	ListLedgerEntriesForObligation(ctx context.Context, obligationID int64) ([]models.LedgerEntry, error)
	DeleteLedgerEntriesForObligation(ctx context.Context, obligationID int64) error

	// Bank transactions
	InsertBankTransaction(ctx context.Context, t *models.BankTransaction) (int64, error)
	GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error)
	FindBankTransactions(ctx context.Context, filter BankTransactionFilter) ([]models.BankTransaction, error)
	ListObligationsForBankTransaction(ctx context.Context, bankTransactionID int64) ([]models.Obligation, error)

	// Matching ledger
	GetMatch(ctx context.Context, bankTransactionID, obligationID int64) (*models.MatchingLedgerEntry, error)
	InsertMatch(ctx context.Context, m *models.MatchingLedgerEntry) (int64, error)
	UpdateMatchNotes(ctx context.Context, id int64, notes string) error
	DeleteMatchesForObligation(ctx context.Context, obligationID int64) error

	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits iff fn returns nil; any error rolls every write
	// back. This is the single ownership boundary for multi-row mutations:
	// allocate, split and bank-match each call it exactly once.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// DateWindow resolves a filter's date bounds. Both bounds are inclusive
// YYYY-MM-DD strings; string comparison on that format matches date order.
func (f BankTransactionFilter) DateWindow() (string, string, error) {
	ref, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		return "", "", err
	}
	window := time.Duration(f.WindowDays) * 24 * time.Hour
	switch f.Direction {
	case DirectionBefore:
		return ref.Add(-window).Format("2006-01-02"), f.Date, nil
	case DirectionBoth:
		return ref.Add(-window).Format("2006-01-02"), ref.Add(window).Format("2006-01-02"), nil
	default: // DirectionAfter
		return f.Date, ref.Add(window).Format("2006-01-02"), nil
	}
}

// MatchesAmount reports whether a bank transaction's debit or credit side
// is within Epsilon of the filter amount.
func (f BankTransactionFilter) MatchesAmount(t *models.BankTransaction) bool {
	return t.DebitAmount.Sub(f.Amount).Abs().LessThanOrEqual(f.Epsilon) ||
		t.CreditAmount.Sub(f.Amount).Abs().LessThanOrEqual(f.Epsilon)
}
