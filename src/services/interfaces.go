package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
)

// Sentinel errors surfaced by the reconciliation services. Handlers map
// these onto HTTP statuses; everything else is a persistence failure.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNothingToAllocate  = errors.New("nothing to allocate")
	ErrOverAllocation     = errors.New("allocation exceeds available amount")
	ErrToleranceExceeded  = errors.New("allocation total exceeds transaction debit beyond tolerance")
	ErrNotFound           = errors.New("record not found")
	ErrBaseAmountRequired = errors.New("base amount required")
	ErrSplitChild         = errors.New("cannot split a fee child obligation")
	ErrHasChildren        = errors.New("obligation still has fee children")
)

// AllocationResult is the committed outcome of one payment action.
type AllocationResult struct {
	BatchRef       string                  `json:"batch_ref"`
	Counterparty   string                  `json:"counterparty"`
	PaymentAmount  decimal.Decimal         `json:"payment_amount"`
	TotalAllocated decimal.Decimal         `json:"total_allocated"`
	Allocations    []models.AllocationLine `json:"allocations"`
}

// CommitAllocationInput carries one payment action into AllocationService.Commit.
type CommitAllocationInput struct {
	Counterparty  string
	PaymentAmount decimal.Decimal
	EntryDate     string // YYYY-MM-DD, defaults to today
	PaymentMethod string
	Lines         []models.AllocationLine
}

// AllocationService distributes one payment across a counterparty's open
// obligations and commits the resulting ledger writes.
type AllocationService interface {
	ProposeAuto(ctx context.Context, counterparty string, paymentAmount decimal.Decimal) ([]models.AllocationLine, error)
	Commit(ctx context.Context, input CommitAllocationInput) (*AllocationResult, error)
}

// CandidateQuery narrows a bank transaction candidate search.
type CandidateQuery struct {
	Amount       decimal.Decimal
	Date         string // YYYY-MM-DD
	WindowDays   int
	Direction    string // after | before | both
	VendorFilter string
}

// BankAllocationPreview is the read-only view of a bank transaction and
// the obligations already linked to it.
type BankAllocationPreview struct {
	Transaction models.BankTransaction `json:"transaction"`
	Linked      []models.Obligation    `json:"linked_obligations"`
}

// BankAllocationResult reports a bank allocation attempt. Both figures are
// populated even on tolerance rejection so the caller can correct and retry.
type BankAllocationResult struct {
	BankTransactionID int64           `json:"bank_transaction_id"`
	TotalAllocated    decimal.Decimal `json:"total_allocated"`
	DebitAmount       decimal.Decimal `json:"debit_amount"`
	Matches           []models.MatchingLedgerEntry `json:"matches,omitempty"`
}

// BankMatchService discovers and persists links between bank transactions
// and the obligations they settle.
type BankMatchService interface {
	RecordTransaction(ctx context.Context, t *models.BankTransaction) (*models.BankTransaction, error)
	FindCandidates(ctx context.Context, query CandidateQuery) ([]models.BankTransaction, error)
	Preview(ctx context.Context, bankTransactionID int64) (*BankAllocationPreview, error)
	Allocate(ctx context.Context, bankTransactionID int64, lines []models.AllocationLine, actor string) (*BankAllocationResult, error)
}

// Split outcome statuses.
const (
	SplitStatusOK         = "ok"
	SplitStatusSkip       = "skip"
	SplitStatusNeedsInput = "needs_input"
)

// Base amount provenance in a split result.
const (
	BaseSourceExplicit  = "explicit"
	BaseSourceHeuristic = "description_heuristic"
)

// SplitResult reports a split attempt. BaseSource flags heuristic picks so
// the presentation layer can surface them to a human instead of treating
// them as authoritative.
type SplitResult struct {
	Status          string          `json:"status"`
	Base            decimal.Decimal `json:"base,omitempty"`
	Fee             decimal.Decimal `json:"fee,omitempty"`
	FeeObligationID int64           `json:"fee_obligation_id,omitempty"`
	AmountFieldUsed string          `json:"amount_field_used,omitempty"`
	BaseSource      string          `json:"base_source,omitempty"`
}

// SplitService decomposes one composite obligation into a base obligation
// and a fee child, idempotently.
type SplitService interface {
	Split(ctx context.Context, obligationID int64, baseAmount *decimal.Decimal) (*SplitResult, error)
}

// VerificationSummary aggregates physical-verification coverage.
type VerificationSummary struct {
	Total    int     `json:"total"`
	Verified int     `json:"verified"`
	Percent  float64 `json:"percent"`
}

// VerificationService toggles the physical-verification flag (independent
// of balance) and serves its aggregate views.
type VerificationService interface {
	MarkVerified(ctx context.Context, obligationID int64, actor string) (*models.ObligationSummary, error)
	MarkUnverified(ctx context.Context, obligationID int64) (*models.ObligationSummary, error)
	Summary(ctx context.Context) (*VerificationSummary, error)
	ByYear(ctx context.Context) (map[string]VerificationSummary, error)
}

// CreateObligationInput is an upstream invoice/receipt entry.
type CreateObligationInput struct {
	Counterparty string
	IssueDate    string // YYYY-MM-DD
	AmountGross  decimal.Decimal
	AmountNet    decimal.Decimal
	AmountStated decimal.Decimal
	Description  string
}

// ObligationDetail is one obligation with its ledger trail and derived figures.
type ObligationDetail struct {
	Obligation models.Obligation    `json:"obligation"`
	Entries    []models.LedgerEntry `json:"entries"`
	Balance    decimal.Decimal      `json:"balance"`
	Status     string               `json:"status"`
}

// ObligationService owns obligation lifecycle outside the engines: entry,
// statement views and the guarded delete cascade.
type ObligationService interface {
	Create(ctx context.Context, input CreateObligationInput) (*models.Obligation, error)
	Get(ctx context.Context, id int64) (*ObligationDetail, error)
	ListByCounterparty(ctx context.Context, counterparty string) ([]models.ObligationSummary, error)
	Delete(ctx context.Context, id int64) error
}
