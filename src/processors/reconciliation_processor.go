package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
)

// Balance derives an obligation's outstanding balance from its authoritative
// amount plus the signed sum of its ledger entries, clamped at zero.
// Payments are stored negative, so the sum walks the amount down.
func Balance(obligation *models.Obligation, entries []models.LedgerEntry) decimal.Decimal {
	amount, _ := obligation.AuthoritativeAmount()
	balance := amount
	for _, e := range entries {
		if e.SourceID != obligation.ID {
			continue
		}
		balance = balance.Add(e.Amount)
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// Status classifies a balance as paid or unpaid. The tolerance absorbs
// cent-level rounding left over from partial payments.
func Status(balance, tolerance decimal.Decimal) string {
	if balance.LessThanOrEqual(tolerance) {
		return models.StatusPaid
	}
	return models.StatusUnpaid
}

// RunningBalances returns the cumulative balance across the obligations in
// the given display order, for ageing/statement views. The i-th result is
// the sum of the first i+1 individual balances.
func RunningBalances(ordered []models.Obligation, entriesByObligation map[int64][]models.LedgerEntry) []decimal.Decimal {
	running := make([]decimal.Decimal, len(ordered))
	total := decimal.Zero
	for i := range ordered {
		total = total.Add(Balance(&ordered[i], entriesByObligation[ordered[i].ID]))
		running[i] = total
	}
	return running
}
