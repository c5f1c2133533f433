package processors_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/processors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func paymentEntry(sourceID int64, amount string) models.LedgerEntry {
	return models.LedgerEntry{
		SourceID:  sourceID,
		EntryType: models.EntryTypePayment,
		Amount:    dec(amount).Neg(),
	}
}

func TestBalance_FullyPaidObligationClosesAtZero(t *testing.T) {
	obligation := &models.Obligation{ID: 1, AmountGross: dec("500.00")}
	entries := []models.LedgerEntry{
		paymentEntry(1, "200.00"),
		paymentEntry(1, "300.00"),
	}

	balance := processors.Balance(obligation, entries)
	if !balance.Equal(decimal.Zero) {
		t.Fatalf("balance got=%s want=0", balance)
	}
	if status := processors.Status(balance, dec("0.01")); status != models.StatusPaid {
		t.Fatalf("status got=%q want=%q", status, models.StatusPaid)
	}
}

func TestBalance_ClampsAtZero(t *testing.T) {
	obligation := &models.Obligation{ID: 1, AmountGross: dec("100.00")}
	entries := []models.LedgerEntry{paymentEntry(1, "150.00")}

	if balance := processors.Balance(obligation, entries); !balance.Equal(decimal.Zero) {
		t.Fatalf("balance got=%s want=0", balance)
	}
}

func TestBalance_MonotonicallyNonIncreasing(t *testing.T) {
	obligation := &models.Obligation{ID: 1, AmountGross: dec("400.00")}
	var entries []models.LedgerEntry

	previous := processors.Balance(obligation, entries)
	for _, amount := range []string{"50.00", "125.50", "10.00", "300.00"} {
		entries = append(entries, paymentEntry(1, amount))
		current := processors.Balance(obligation, entries)
		if current.GreaterThan(previous) {
			t.Fatalf("balance increased from %s to %s after payment %s", previous, current, amount)
		}
		if current.IsNegative() {
			t.Fatalf("balance went negative: %s", current)
		}
		previous = current
	}
}

func TestBalance_IgnoresEntriesForOtherObligations(t *testing.T) {
	obligation := &models.Obligation{ID: 1, AmountGross: dec("100.00")}
	entries := []models.LedgerEntry{
		paymentEntry(1, "40.00"),
		paymentEntry(2, "60.00"), // someone else's entry
	}

	if balance := processors.Balance(obligation, entries); !balance.Equal(dec("60.00")) {
		t.Fatalf("balance got=%s want=60.00", balance)
	}
}

func TestBalance_UsesAuthoritativeAmountPriority(t *testing.T) {
	tests := []struct {
		name       string
		obligation models.Obligation
		wantAmount string
		wantField  string
	}{
		{"gross wins", models.Obligation{AmountGross: dec("100"), AmountNet: dec("90"), AmountStated: dec("80")}, "100", models.AmountFieldGross},
		{"net when gross zero", models.Obligation{AmountNet: dec("90"), AmountStated: dec("80")}, "90", models.AmountFieldNet},
		{"stated last", models.Obligation{AmountStated: dec("80")}, "80", models.AmountFieldStated},
		{"all zero", models.Obligation{}, "0", models.AmountFieldGross},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			amount, field := tc.obligation.AuthoritativeAmount()
			if !amount.Equal(dec(tc.wantAmount)) {
				t.Fatalf("amount got=%s want=%s", amount, tc.wantAmount)
			}
			if field != tc.wantField {
				t.Fatalf("field got=%q want=%q", field, tc.wantField)
			}
		})
	}
}

func TestStatus_ToleranceAbsorbsRounding(t *testing.T) {
	tolerance := dec("0.01")
	if got := processors.Status(dec("0.01"), tolerance); got != models.StatusPaid {
		t.Fatalf("status at tolerance got=%q want=%q", got, models.StatusPaid)
	}
	if got := processors.Status(dec("0.02"), tolerance); got != models.StatusUnpaid {
		t.Fatalf("status above tolerance got=%q want=%q", got, models.StatusUnpaid)
	}
}

func TestRunningBalances_CumulativeInDisplayOrder(t *testing.T) {
	ordered := []models.Obligation{
		{ID: 1, AmountGross: dec("100.00")},
		{ID: 2, AmountGross: dec("250.00")},
		{ID: 3, AmountGross: dec("50.00")},
	}
	entriesByObligation := map[int64][]models.LedgerEntry{
		2: {paymentEntry(2, "250.00")}, // middle one fully paid
	}

	running := processors.RunningBalances(ordered, entriesByObligation)
	want := []string{"100.00", "100.00", "150.00"}
	if len(running) != len(want) {
		t.Fatalf("running length got=%d want=%d", len(running), len(want))
	}
	for i := range want {
		if !running[i].Equal(dec(want[i])) {
			t.Fatalf("running[%d] got=%s want=%s", i, running[i], want[i])
		}
	}
}
