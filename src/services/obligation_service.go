package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/processors"
	"github.com/username/ledgerlink/backend/src/storage"
)

type obligationServiceImpl struct {
	store         storage.Store
	reportCache   *cache.Cache
	paidTolerance decimal.Decimal
}

func NewObligationService(store storage.Store, reportCache *cache.Cache, paidTolerance decimal.Decimal) ObligationService {
	return &obligationServiceImpl{store: store, reportCache: reportCache, paidTolerance: paidTolerance}
}

// Create records an upstream invoice/receipt entry. At least one candidate
// amount field must be positive; balances only ever move through ledger
// entries afterwards.
func (s *obligationServiceImpl) Create(ctx context.Context, input CreateObligationInput) (*models.Obligation, error) {
	if input.Counterparty == "" {
		return nil, fmt.Errorf("%w: counterparty is required", ErrInvalidAmount)
	}
	if _, err := time.Parse("2006-01-02", input.IssueDate); err != nil {
		return nil, fmt.Errorf("%w: invalid issue date %q", ErrInvalidAmount, input.IssueDate)
	}
	if input.AmountGross.IsNegative() || input.AmountNet.IsNegative() || input.AmountStated.IsNegative() {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrInvalidAmount)
	}
	obligation := &models.Obligation{
		Counterparty: input.Counterparty,
		IssueDate:    input.IssueDate,
		AmountGross:  input.AmountGross,
		AmountNet:    input.AmountNet,
		AmountStated: input.AmountStated,
		Description:  input.Description,
	}
	if amount, _ := obligation.AuthoritativeAmount(); amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: obligation needs a positive amount", ErrInvalidAmount)
	}
	if _, err := s.store.InsertObligation(ctx, obligation); err != nil {
		return nil, err
	}
	s.invalidateAggregates()
	logger.L.Info("Obligation created", "obligationID", obligation.ID, "counterparty", obligation.Counterparty)
	return obligation, nil
}

func (s *obligationServiceImpl) Get(ctx context.Context, id int64) (*ObligationDetail, error) {
	obligation, err := s.store.GetObligation(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: obligation %d", ErrNotFound, id)
		}
		return nil, err
	}
	entries, err := s.store.ListLedgerEntriesForObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	balance := processors.Balance(obligation, entries)
	return &ObligationDetail{
		Obligation: *obligation,
		Entries:    entries,
		Balance:    balance,
		Status:     processors.Status(balance, s.paidTolerance),
	}, nil
}

// ListByCounterparty serves the ageing/statement view: obligations in
// issue-date order, each with its balance, the cumulative running balance
// and paid status.
func (s *obligationServiceImpl) ListByCounterparty(ctx context.Context, counterparty string) ([]models.ObligationSummary, error) {
	obligations, err := s.store.ListObligationsByCounterparty(ctx, counterparty)
	if err != nil {
		return nil, err
	}
	entriesByObligation := make(map[int64][]models.LedgerEntry, len(obligations))
	for _, o := range obligations {
		entries, err := s.store.ListLedgerEntriesForObligation(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		entriesByObligation[o.ID] = entries
	}
	running := processors.RunningBalances(obligations, entriesByObligation)

	summaries := make([]models.ObligationSummary, len(obligations))
	for i, o := range obligations {
		balance := processors.Balance(&obligations[i], entriesByObligation[o.ID])
		summaries[i] = models.ObligationSummary{
			Obligation:     o,
			Balance:        balance,
			RunningBalance: running[i],
			Status:         processors.Status(balance, s.paidTolerance),
		}
	}
	return summaries, nil
}

// Delete removes an obligation through the guarded cascade: unlink the bank
// reference, purge matching and ledger rows, then delete the row itself,
// all in one transaction. Obligations with fee children are refused so the
// parent link never dangles.
func (s *obligationServiceImpl) Delete(ctx context.Context, id int64) error {
	obligation, err := s.store.GetObligation(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return fmt.Errorf("%w: obligation %d", ErrNotFound, id)
		}
		return err
	}

	siblings, err := s.store.ListObligationsByCounterparty(ctx, obligation.Counterparty)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ParentObligationID != nil && *sibling.ParentObligationID == id {
			return fmt.Errorf("%w: obligation %d still has fee child %d", ErrHasChildren, id, sibling.ID)
		}
	}

	err = s.store.WithinTx(ctx, func(tx storage.Store) error {
		if err := tx.SetObligationBankLink(ctx, id, nil); err != nil {
			return err
		}
		if err := tx.DeleteMatchesForObligation(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteLedgerEntriesForObligation(ctx, id); err != nil {
			return err
		}
		return tx.DeleteObligation(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidateAggregates()
	logger.L.Info("Obligation deleted", "obligationID", id)
	return nil
}

func (s *obligationServiceImpl) invalidateAggregates() {
	s.reportCache.Delete(ckVerificationSummary)
	s.reportCache.Delete(ckVerificationByYear)
}
