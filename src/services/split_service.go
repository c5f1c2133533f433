package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/storage"
)

type splitServiceImpl struct {
	store storage.Store
}

func NewSplitService(store storage.Store) SplitService {
	return &splitServiceImpl{store: store}
}

// currencyTokenPattern picks up currency-looking tokens ("125.00",
// "1,250.00") in free-text descriptions.
var currencyTokenPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})*\.\d{2}|\d+\.\d{2}`)

// SuggestBaseAmount scans free text for currency-looking numeric tokens and
// returns the largest one. Advisory only: the caller decides whether to use
// the suggestion, and a SplitResult built on it is flagged with
// BaseSourceHeuristic.
func SuggestBaseAmount(description string) (decimal.Decimal, bool) {
	tokens := currencyTokenPattern.FindAllString(description, -1)
	best := decimal.Zero
	found := false
	for _, token := range tokens {
		value, err := decimal.NewFromString(strings.ReplaceAll(token, ",", ""))
		if err != nil {
			continue
		}
		if !found || value.GreaterThan(best) {
			best = value
			found = true
		}
	}
	return best, found
}

// splitIdempotencyKey is deterministic for a (parent, fee) pair, so
// re-running the same split finds the existing child instead of creating a
// second one. The unique column constraint backstops the lookup.
func splitIdempotencyKey(parentID int64, fee decimal.Decimal) string {
	return fmt.Sprintf("split:%d:%s", parentID, fee.String())
}

// Split decomposes the obligation into a base obligation (amount reduced in
// place) and a new fee child carrying the difference.
func (s *splitServiceImpl) Split(ctx context.Context, obligationID int64, baseAmount *decimal.Decimal) (*SplitResult, error) {
	parent, err := s.store.GetObligation(ctx, obligationID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: obligation %d", ErrNotFound, obligationID)
		}
		return nil, err
	}
	if parent.ParentObligationID != nil {
		// Fee children stay leaves; the split never recurses.
		return nil, fmt.Errorf("%w: obligation %d", ErrSplitChild, obligationID)
	}

	total, amountField := parent.AuthoritativeAmount()

	base := decimal.Zero
	baseSource := BaseSourceExplicit
	if baseAmount != nil {
		if baseAmount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: base amount %s must be positive", ErrInvalidAmount, baseAmount)
		}
		base = *baseAmount
	} else {
		suggested, found := SuggestBaseAmount(parent.Description)
		if !found {
			logger.L.Info("Split needs explicit base amount", "obligationID", obligationID)
			return &SplitResult{Status: SplitStatusNeedsInput, AmountFieldUsed: amountField}, nil
		}
		base = suggested
		baseSource = BaseSourceHeuristic
	}

	fee := total.Sub(base)
	if fee.LessThanOrEqual(decimal.Zero) {
		logger.L.Info("Split skipped, no positive fee",
			"obligationID", obligationID, "total", total.String(), "base", base.String())
		return &SplitResult{Status: SplitStatusSkip, Base: base, Fee: fee, AmountFieldUsed: amountField, BaseSource: baseSource}, nil
	}

	key := splitIdempotencyKey(parent.ID, fee)
	if existing, err := s.store.FindObligationByIdempotencyKey(ctx, key); err == nil {
		// Same split already applied: refresh the child's note trail and
		// report the existing child instead of creating a duplicate.
		note := fmt.Sprintf("; split re-requested %s", time.Now().UTC().Format("2006-01-02"))
		if err := s.store.UpdateObligationDescription(ctx, existing.ID, existing.Description+note); err != nil {
			return nil, err
		}
		logger.L.Info("Split already applied, returning existing fee child",
			"obligationID", obligationID, "feeObligationID", existing.ID)
		return &SplitResult{
			Status:          SplitStatusOK,
			Base:            base,
			Fee:             fee,
			FeeObligationID: existing.ID,
			AmountFieldUsed: amountField,
			BaseSource:      baseSource,
		}, nil
	} else if err != storage.ErrNotFound {
		return nil, err
	}

	child := &models.Obligation{
		Counterparty:       parent.Counterparty,
		IssueDate:          parent.IssueDate,
		AmountGross:        fee,
		ParentObligationID: &parent.ID,
		Description:        fmt.Sprintf("Fee split from obligation %d: %s", parent.ID, parent.Description),
		IdempotencyKey:     &key,
	}
	err = s.store.WithinTx(ctx, func(tx storage.Store) error {
		if _, err := tx.InsertObligation(ctx, child); err != nil {
			return err
		}
		return tx.UpdateObligationAmountField(ctx, parent.ID, amountField, base)
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			// Lost a race with a concurrent identical split; adopt its child.
			if existing, lookupErr := s.store.FindObligationByIdempotencyKey(ctx, key); lookupErr == nil {
				return &SplitResult{
					Status:          SplitStatusOK,
					Base:            base,
					Fee:             fee,
					FeeObligationID: existing.ID,
					AmountFieldUsed: amountField,
					BaseSource:      baseSource,
				}, nil
			}
		}
		return nil, err
	}

	logger.L.Info("Obligation split",
		"obligationID", parent.ID,
		"feeObligationID", child.ID,
		"base", base.String(),
		"fee", fee.String(),
		"amountField", amountField,
		"baseSource", baseSource)

	return &SplitResult{
		Status:          SplitStatusOK,
		Base:            base,
		Fee:             fee,
		FeeObligationID: child.ID,
		AmountFieldUsed: amountField,
		BaseSource:      baseSource,
	}, nil
}
