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

const (
	// Aggregate caches, rebuilt on the next read after any verification change.
	ckVerificationSummary = "agg_verification_summary"
	ckVerificationByYear  = "agg_verification_by_year"
)

type verificationServiceImpl struct {
	store         storage.Store
	reportCache   *cache.Cache
	paidTolerance decimal.Decimal
}

func NewVerificationService(store storage.Store, reportCache *cache.Cache, paidTolerance decimal.Decimal) VerificationService {
	return &verificationServiceImpl{store: store, reportCache: reportCache, paidTolerance: paidTolerance}
}

// MarkVerified sets the physical-verification flag, timestamp and actor.
// It never touches the balance or the ledger: verification records that a
// human matched a paper document, not that the obligation is paid.
func (s *verificationServiceImpl) MarkVerified(ctx context.Context, obligationID int64, actor string) (*models.ObligationSummary, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required to verify", ErrInvalidAmount)
	}
	now := time.Now().UTC()
	if err := s.store.SetObligationVerification(ctx, obligationID, true, &now, actor); err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: obligation %d", ErrNotFound, obligationID)
		}
		return nil, err
	}
	s.invalidateAggregates()
	logger.L.Info("Obligation verified", "obligationID", obligationID, "actor", actor)
	return s.summaryFor(ctx, obligationID)
}

func (s *verificationServiceImpl) MarkUnverified(ctx context.Context, obligationID int64) (*models.ObligationSummary, error) {
	if err := s.store.SetObligationVerification(ctx, obligationID, false, nil, ""); err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("%w: obligation %d", ErrNotFound, obligationID)
		}
		return nil, err
	}
	s.invalidateAggregates()
	logger.L.Info("Obligation unverified", "obligationID", obligationID)
	return s.summaryFor(ctx, obligationID)
}

func (s *verificationServiceImpl) summaryFor(ctx context.Context, obligationID int64) (*models.ObligationSummary, error) {
	obligation, err := s.store.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	balance, err := obligationBalance(ctx, s.store, obligation)
	if err != nil {
		return nil, err
	}
	return &models.ObligationSummary{
		Obligation: *obligation,
		Balance:    balance,
		Status:     processors.Status(balance, s.paidTolerance),
	}, nil
}

func (s *verificationServiceImpl) invalidateAggregates() {
	s.reportCache.Delete(ckVerificationSummary)
	s.reportCache.Delete(ckVerificationByYear)
}

func (s *verificationServiceImpl) Summary(ctx context.Context) (*VerificationSummary, error) {
	if cached, found := s.reportCache.Get(ckVerificationSummary); found {
		logger.L.Debug("Cache hit for verification summary")
		return cached.(*VerificationSummary), nil
	}

	obligations, err := s.store.ListObligations(ctx)
	if err != nil {
		return nil, err
	}
	summary := tally(obligations)
	s.reportCache.Set(ckVerificationSummary, summary, cache.DefaultExpiration)
	return summary, nil
}

func (s *verificationServiceImpl) ByYear(ctx context.Context) (map[string]VerificationSummary, error) {
	if cached, found := s.reportCache.Get(ckVerificationByYear); found {
		logger.L.Debug("Cache hit for verification by-year")
		return cached.(map[string]VerificationSummary), nil
	}

	obligations, err := s.store.ListObligations(ctx)
	if err != nil {
		return nil, err
	}
	byYear := make(map[string][]models.Obligation)
	for _, o := range obligations {
		year := o.IssueDate
		if len(year) >= 4 {
			year = year[:4]
		}
		byYear[year] = append(byYear[year], o)
	}
	result := make(map[string]VerificationSummary, len(byYear))
	for year, group := range byYear {
		result[year] = *tally(group)
	}
	s.reportCache.Set(ckVerificationByYear, result, cache.DefaultExpiration)
	return result, nil
}

func tally(obligations []models.Obligation) *VerificationSummary {
	summary := &VerificationSummary{Total: len(obligations)}
	for _, o := range obligations {
		if o.Verified {
			summary.Verified++
		}
	}
	if summary.Total > 0 {
		summary.Percent = float64(summary.Verified) / float64(summary.Total) * 100
	}
	return summary
}
