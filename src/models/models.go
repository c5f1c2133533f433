package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types. Payments are stored with a negative amount so that
// obligation.amount + sum(entries) walks the balance down to zero.
const (
	EntryTypePayment    = "PAYMENT"
	EntryTypeFee        = "FEE"
	EntryTypeAdjustment = "ADJUSTMENT"
)

// Reconciliation statuses derived from an obligation's current balance.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// Match confidence recorded on matching ledger rows.
const (
	MatchConfidenceExact   = "exact"
	MatchConfidencePartial = "partial"
)

// Names of the candidate amount fields on an obligation, in authoritative
// priority order. The first non-zero field wins; this order is load-bearing
// for the split engine and must not be reshuffled.
const (
	AmountFieldGross  = "amount_gross"
	AmountFieldNet    = "amount_net"
	AmountFieldStated = "amount_stated"
)

// Obligation is a record of money owed (a vendor invoice or customer
// receipt) tracked toward zero balance.
type Obligation struct {
	ID                 int64           `json:"id"`
	Counterparty       string          `json:"counterparty"`
	IssueDate          string          `json:"issue_date"` // YYYY-MM-DD
	AmountGross        decimal.Decimal `json:"amount_gross"`
	AmountNet          decimal.Decimal `json:"amount_net"`
	AmountStated       decimal.Decimal `json:"amount_stated"`
	ParentObligationID *int64          `json:"parent_obligation_id,omitempty"`
	BankTransactionID  *int64          `json:"bank_transaction_id,omitempty"`
	Description        string          `json:"description"`
	IdempotencyKey     *string         `json:"idempotency_key,omitempty"`
	Verified           bool            `json:"verified"`
	VerifiedAt         *time.Time      `json:"verified_at,omitempty"`
	VerifiedBy         string          `json:"verified_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// AuthoritativeAmount returns the obligation's effective amount and the name
// of the field it came from: the first non-zero field among gross, net and
// stated, in that order. All-zero obligations report the gross field.
func (o *Obligation) AuthoritativeAmount() (decimal.Decimal, string) {
	if !o.AmountGross.IsZero() {
		return o.AmountGross, AmountFieldGross
	}
	if !o.AmountNet.IsZero() {
		return o.AmountNet, AmountFieldNet
	}
	if !o.AmountStated.IsZero() {
		return o.AmountStated, AmountFieldStated
	}
	return decimal.Zero, AmountFieldGross
}

// LedgerEntry is an append-mostly, signed-amount record against an
// obligation. SourceID is the obligation the entry settles or adjusts.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	Counterparty  string          `json:"counterparty"`
	SourceID      int64           `json:"source_id"`
	EntryDate     string          `json:"entry_date"` // YYYY-MM-DD
	EntryType     string          `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	BatchRef      string          `json:"batch_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BankTransaction is a row from the bank ledger that the matcher links to
// the obligations it settles.
type BankTransaction struct {
	ID           int64           `json:"id"`
	TxnDate      string          `json:"txn_date"` // YYYY-MM-DD
	Description  string          `json:"description"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

// MatchingLedgerEntry records a committed link between a bank transaction
// and one obligation. The (bank_transaction_id, obligation_id) pair is
// unique and doubles as the idempotency anchor for bank allocation.
type MatchingLedgerEntry struct {
	ID                int64     `json:"id"`
	BankTransactionID int64     `json:"bank_transaction_id"`
	ObligationID      int64     `json:"obligation_id"`
	MatchType         string    `json:"match_type"`
	MatchConfidence   string    `json:"match_confidence"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// AllocationLine is one obligation's share of a payment action.
type AllocationLine struct {
	ObligationID int64           `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// ObligationSummary is an obligation decorated with its derived balance and
// status, as served to the presentation layer.
type ObligationSummary struct {
	Obligation     Obligation      `json:"obligation"`
	Balance        decimal.Decimal `json:"balance"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Status         string          `json:"status"`
}
