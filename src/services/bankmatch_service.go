package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/storage"
)

// Match type recorded when an allocation is committed through this service.
const matchTypeAllocation = "allocation"

type bankMatchServiceImpl struct {
	store     storage.Store
	tolerance decimal.Decimal // max overshoot of Σ allocations over the debit
	epsilon   decimal.Decimal // cent-level margin for exact matching
}

func NewBankMatchService(store storage.Store, tolerance, epsilon decimal.Decimal) BankMatchService {
	return &bankMatchServiceImpl{store: store, tolerance: tolerance, epsilon: epsilon}
}

func (s *bankMatchServiceImpl) RecordTransaction(ctx context.Context, t *models.BankTransaction) (*models.BankTransaction, error) {
	if _, err := time.Parse("2006-01-02", t.TxnDate); err != nil {
		return nil, fmt.Errorf("%w: invalid transaction date %q", ErrInvalidAmount, t.TxnDate)
	}
	if t.DebitAmount.IsNegative() || t.CreditAmount.IsNegative() {
		return nil, fmt.Errorf("%w: debit/credit amounts must not be negative", ErrInvalidAmount)
	}
	if _, err := s.store.InsertBankTransaction(ctx, t); err != nil {
		return nil, err
	}
	logger.L.Info("Bank transaction recorded", "bankTransactionID", t.ID, "txnDate", t.TxnDate, "debit", t.DebitAmount.String())
	return t, nil
}

func (s *bankMatchServiceImpl) FindCandidates(ctx context.Context, query CandidateQuery) ([]models.BankTransaction, error) {
	direction := query.Direction
	switch direction {
	case storage.DirectionAfter, storage.DirectionBefore, storage.DirectionBoth:
	case "":
		direction = storage.DirectionAfter
	default:
		return nil, fmt.Errorf("%w: unknown window direction %q", ErrInvalidAmount, query.Direction)
	}
	candidates, err := s.store.FindBankTransactions(ctx, storage.BankTransactionFilter{
		Amount:              query.Amount,
		Epsilon:             s.epsilon,
		Date:                query.Date,
		WindowDays:          query.WindowDays,
		Direction:           direction,
		DescriptionContains: query.VendorFilter,
	})
	if err != nil {
		return nil, err
	}
	logger.L.Debug("Bank candidate search",
		"amount", query.Amount.String(), "date", query.Date,
		"windowDays", query.WindowDays, "direction", direction,
		"candidates", len(candidates))
	return candidates, nil
}

// Preview is read-only: the transaction and whatever obligations are
// already linked to it.
func (s *bankMatchServiceImpl) Preview(ctx context.Context, bankTransactionID int64) (*BankAllocationPreview, error) {
	txn, err := s.store.GetBankTransaction(ctx, bankTransactionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: bank transaction %d", ErrNotFound, bankTransactionID)
		}
		return nil, err
	}
	linked, err := s.store.ListObligationsForBankTransaction(ctx, bankTransactionID)
	if err != nil {
		return nil, err
	}
	return &BankAllocationPreview{Transaction: *txn, Linked: linked}, nil
}

// Allocate links a batch of obligations to one bank transaction. The batch
// commits atomically; re-running with the same pairs updates the existing
// matching rows instead of inserting duplicates.
func (s *bankMatchServiceImpl) Allocate(ctx context.Context, bankTransactionID int64, lines []models.AllocationLine, actor string) (*BankAllocationResult, error) {
	txn, err := s.store.GetBankTransaction(ctx, bankTransactionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: bank transaction %d", ErrNotFound, bankTransactionID)
		}
		return nil, err
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	result := &BankAllocationResult{
		BankTransactionID: bankTransactionID,
		TotalAllocated:    total,
		DebitAmount:       txn.DebitAmount,
	}
	if total.LessThanOrEqual(decimal.Zero) {
		return result, fmt.Errorf("%w: total allocated %s must be positive", ErrInvalidAmount, total)
	}
	if total.Sub(txn.DebitAmount).GreaterThan(s.tolerance) {
		return result, fmt.Errorf("%w: allocated %s against debit %s (tolerance %s)",
			ErrToleranceExceeded, total, txn.DebitAmount, s.tolerance)
	}

	err = s.store.WithinTx(ctx, func(tx storage.Store) error {
		for _, line := range lines {
			if _, err := tx.GetObligation(ctx, line.ObligationID); err != nil {
				if err == storage.ErrNotFound {
					return fmt.Errorf("%w: obligation %d", ErrNotFound, line.ObligationID)
				}
				return err
			}
			// Overwriting an existing link is allowed; re-pointing an
			// obligation at the same transaction is a no-op.
			if err := tx.SetObligationBankLink(ctx, line.ObligationID, &bankTransactionID); err != nil {
				return err
			}

			notes := fmt.Sprintf("allocated %s by %s", line.Amount.String(), actor)
			existing, err := tx.GetMatch(ctx, bankTransactionID, line.ObligationID)
			switch {
			case err == storage.ErrNotFound:
				confidence := models.MatchConfidencePartial
				if line.Amount.Sub(txn.DebitAmount).Abs().LessThan(s.epsilon) {
					confidence = models.MatchConfidenceExact
				}
				match := &models.MatchingLedgerEntry{
					BankTransactionID: bankTransactionID,
					ObligationID:      line.ObligationID,
					MatchType:         matchTypeAllocation,
					MatchConfidence:   confidence,
					Notes:             notes,
				}
				if _, err := tx.InsertMatch(ctx, match); err != nil {
					return err
				}
				result.Matches = append(result.Matches, *match)
			case err != nil:
				return err
			default:
				// Idempotent re-run: refresh notes, never insert a duplicate.
				if err := tx.UpdateMatchNotes(ctx, existing.ID, existing.Notes+"; "+notes); err != nil {
					return err
				}
				existing.Notes = existing.Notes + "; " + notes
				result.Matches = append(result.Matches, *existing)
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	logger.L.Info("Bank allocation committed",
		"bankTransactionID", bankTransactionID,
		"totalAllocated", total.String(),
		"debitAmount", txn.DebitAmount.String(),
		"lines", len(lines),
		"actor", actor)
	return result, nil
}
