package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/processors"
	"github.com/username/ledgerlink/backend/src/storage"
)

type allocationServiceImpl struct {
	store storage.Store
}

func NewAllocationService(store storage.Store) AllocationService {
	return &allocationServiceImpl{store: store}
}

func obligationBalance(ctx context.Context, store storage.Store, o *models.Obligation) (decimal.Decimal, error) {
	entries, err := store.ListLedgerEntriesForObligation(ctx, o.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error loading ledger entries for obligation %d: %w", o.ID, err)
	}
	return processors.Balance(o, entries), nil
}

// ProposeAuto walks the counterparty's obligations in ascending issue-date
// order (ties keep entry order) and allocates min(balance, remaining) to
// each open one until the payment is used up. Zero-balance obligations are
// never allocated to.
func (s *allocationServiceImpl) ProposeAuto(ctx context.Context, counterparty string, paymentAmount decimal.Decimal) ([]models.AllocationLine, error) {
	if paymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payment amount %s must be positive", ErrInvalidAmount, paymentAmount)
	}

	// The store returns obligations already ordered by issue_date with id as
	// the stable tie-break.
	obligations, err := s.store.ListObligationsByCounterparty(ctx, counterparty)
	if err != nil {
		return nil, err
	}

	remaining := paymentAmount
	var lines []models.AllocationLine
	for i := range obligations {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		balance, err := obligationBalance(ctx, s.store, &obligations[i])
		if err != nil {
			return nil, err
		}
		if balance.LessThanOrEqual(decimal.Zero) {
			continue
		}
		allocated := decimal.Min(balance, remaining)
		lines = append(lines, models.AllocationLine{ObligationID: obligations[i].ID, Amount: allocated})
		remaining = remaining.Sub(allocated)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no open obligations for %q", ErrNothingToAllocate, counterparty)
	}
	return lines, nil
}

// Commit writes one negative PAYMENT ledger entry per allocated obligation,
// all inside a single transaction. The whole set is rejected when the total
// exceeds the payment amount (strict, no tolerance) or any line exceeds its
// obligation's current balance.
func (s *allocationServiceImpl) Commit(ctx context.Context, input CommitAllocationInput) (*AllocationResult, error) {
	if input.PaymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payment amount %s must be positive", ErrInvalidAmount, input.PaymentAmount)
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: empty allocation set", ErrNothingToAllocate)
	}

	total := decimal.Zero
	for _, line := range input.Lines {
		if line.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: allocation for obligation %d is %s", ErrInvalidAmount, line.ObligationID, line.Amount)
		}
		total = total.Add(line.Amount)
	}
	if total.GreaterThan(input.PaymentAmount) {
		return nil, fmt.Errorf("%w: allocated %s against payment %s", ErrOverAllocation, total, input.PaymentAmount)
	}

	entryDate := input.EntryDate
	if entryDate == "" {
		entryDate = time.Now().UTC().Format("2006-01-02")
	}
	batchRef := uuid.NewString()

	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		for _, line := range input.Lines {
			obligation, err := tx.GetObligation(ctx, line.ObligationID)
			if err != nil {
				if err == storage.ErrNotFound {
					return fmt.Errorf("%w: obligation %d", ErrNotFound, line.ObligationID)
				}
				return err
			}
			balance, err := obligationBalance(ctx, tx, obligation)
			if err != nil {
				return err
			}
			if line.Amount.GreaterThan(balance) {
				return fmt.Errorf("%w: %s against balance %s of obligation %d",
					ErrOverAllocation, line.Amount, balance, line.ObligationID)
			}
			entry := &models.LedgerEntry{
				Counterparty:  input.Counterparty,
				SourceID:      line.ObligationID,
				EntryDate:     entryDate,
				EntryType:     models.EntryTypePayment,
				Amount:        line.Amount.Neg(),
				PaymentMethod: input.PaymentMethod,
				BatchRef:      batchRef,
			}
			if _, err := tx.InsertLedgerEntry(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L.Info("Payment allocation committed",
		"counterparty", input.Counterparty,
		"paymentAmount", input.PaymentAmount.String(),
		"totalAllocated", total.String(),
		"lines", len(input.Lines),
		"batchRef", batchRef)

	return &AllocationResult{
		BatchRef:       batchRef,
		Counterparty:   input.Counterparty,
		PaymentAmount:  input.PaymentAmount,
		TotalAllocated: total,
		Allocations:    input.Lines,
	}, nil
}

// ManualAllocation tracks a user-directed toggling session for one payment.
// Enabling an obligation allocates min(balance, remaining) at toggle time;
// disabling frees that amount back into the pool and never re-touches the
// other lines.
type ManualAllocation struct {
	paymentAmount decimal.Decimal
	lines         map[int64]decimal.Decimal
	order         []int64
}

func NewManualAllocation(paymentAmount decimal.Decimal) *ManualAllocation {
	return &ManualAllocation{
		paymentAmount: paymentAmount,
		lines:         make(map[int64]decimal.Decimal),
	}
}

func (m *ManualAllocation) Remaining() decimal.Decimal {
	remaining := m.paymentAmount
	for _, amount := range m.lines {
		remaining = remaining.Sub(amount)
	}
	return remaining
}

// Enable allocates against the obligation and returns the allocated amount,
// zero when the pool is exhausted or the balance is zero.
func (m *ManualAllocation) Enable(obligationID int64, balance decimal.Decimal) decimal.Decimal {
	if _, on := m.lines[obligationID]; on {
		return m.lines[obligationID]
	}
	allocated := decimal.Min(balance, m.Remaining())
	if allocated.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	m.lines[obligationID] = allocated
	m.order = append(m.order, obligationID)
	return allocated
}

func (m *ManualAllocation) Disable(obligationID int64) {
	delete(m.lines, obligationID)
	for i, id := range m.order {
		if id == obligationID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Lines returns the current allocation set in toggle order.
func (m *ManualAllocation) Lines() []models.AllocationLine {
	lines := make([]models.AllocationLine, 0, len(m.order))
	for _, id := range m.order {
		lines = append(lines, models.AllocationLine{ObligationID: id, Amount: m.lines[id]})
	}
	return lines
}
