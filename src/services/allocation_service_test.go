package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/storage/memory"
)

func TestProposeAuto_OldestFirstAndBounded(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	// Seeded out of date order on purpose.
	newer := seedObligation(t, store, "acme", "2024-03-01", "200.00", "invoice march")
	oldest := seedObligation(t, store, "acme", "2024-01-01", "150.00", "invoice january")
	middle := seedObligation(t, store, "acme", "2024-02-01", "100.00", "invoice february")

	lines, err := svc.ProposeAuto(context.Background(), "acme", dec("300.00"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	wantOrder := []int64{oldest, middle, newer}
	wantAmounts := []string{"150.00", "100.00", "50.00"}
	if len(lines) != len(wantOrder) {
		t.Fatalf("lines got=%d want=%d", len(lines), len(wantOrder))
	}
	total := decimal.Zero
	for i, line := range lines {
		if line.ObligationID != wantOrder[i] {
			t.Fatalf("lines[%d].ObligationID got=%d want=%d", i, line.ObligationID, wantOrder[i])
		}
		if !line.Amount.Equal(dec(wantAmounts[i])) {
			t.Fatalf("lines[%d].Amount got=%s want=%s", i, line.Amount, wantAmounts[i])
		}
		total = total.Add(line.Amount)
	}
	if total.GreaterThan(dec("300.00")) {
		t.Fatalf("total allocated %s exceeds payment", total)
	}
}

func TestProposeAuto_SkipsZeroBalanceObligations(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	paid := seedObligation(t, store, "acme", "2024-01-01", "80.00", "already settled")
	seedPayment(t, store, paid, "80.00")
	open := seedObligation(t, store, "acme", "2024-02-01", "120.00", "still open")

	lines, err := svc.ProposeAuto(context.Background(), "acme", dec("60.00"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(lines) != 1 || lines[0].ObligationID != open {
		t.Fatalf("lines got=%+v want single line for obligation %d", lines, open)
	}
	if !lines[0].Amount.Equal(dec("60.00")) {
		t.Fatalf("amount got=%s want=60.00", lines[0].Amount)
	}
}

func TestProposeAuto_StableTieBreakOnEqualDates(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	first := seedObligation(t, store, "acme", "2024-01-01", "40.00", "entered first")
	second := seedObligation(t, store, "acme", "2024-01-01", "40.00", "entered second")

	lines, err := svc.ProposeAuto(context.Background(), "acme", dec("100.00"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(lines) != 2 || lines[0].ObligationID != first || lines[1].ObligationID != second {
		t.Fatalf("tie-break broke entry order: %+v", lines)
	}
}

func TestProposeAuto_Validation(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	if _, err := svc.ProposeAuto(context.Background(), "acme", dec("-5")); !errors.Is(err, services.ErrInvalidAmount) {
		t.Fatalf("negative amount error got=%v want ErrInvalidAmount", err)
	}
	if _, err := svc.ProposeAuto(context.Background(), "acme", dec("100")); !errors.Is(err, services.ErrNothingToAllocate) {
		t.Fatalf("empty candidate set error got=%v want ErrNothingToAllocate", err)
	}

	paid := seedObligation(t, store, "acme", "2024-01-01", "50.00", "paid off")
	seedPayment(t, store, paid, "50.00")
	if _, err := svc.ProposeAuto(context.Background(), "acme", dec("100")); !errors.Is(err, services.ErrNothingToAllocate) {
		t.Fatalf("all-zero-balance error got=%v want ErrNothingToAllocate", err)
	}
}

func TestCommit_WritesOnePaymentEntryPerLine(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	a := seedObligation(t, store, "acme", "2024-01-01", "150.00", "a")
	b := seedObligation(t, store, "acme", "2024-02-01", "100.00", "b")

	result, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty:  "acme",
		PaymentAmount: dec("200.00"),
		PaymentMethod: "bank_transfer",
		EntryDate:     "2024-03-01",
		Lines: []models.AllocationLine{
			{ObligationID: a, Amount: dec("150.00")},
			{ObligationID: b, Amount: dec("50.00")},
		},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.BatchRef == "" {
		t.Fatalf("expected a batch ref")
	}
	if !result.TotalAllocated.Equal(dec("200.00")) {
		t.Fatalf("total got=%s want=200.00", result.TotalAllocated)
	}

	entriesA, _ := store.ListLedgerEntriesForObligation(context.Background(), a)
	if len(entriesA) != 1 {
		t.Fatalf("entries for a got=%d want=1", len(entriesA))
	}
	if !entriesA[0].Amount.Equal(dec("-150.00")) {
		t.Fatalf("entry amount got=%s want=-150.00", entriesA[0].Amount)
	}
	if entriesA[0].EntryType != models.EntryTypePayment {
		t.Fatalf("entry type got=%q want=%q", entriesA[0].EntryType, models.EntryTypePayment)
	}
	if entriesA[0].BatchRef != result.BatchRef {
		t.Fatalf("batch ref mismatch: entry=%q result=%q", entriesA[0].BatchRef, result.BatchRef)
	}
}

func TestCommit_RejectsOverAllocationWithoutWriting(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	a := seedObligation(t, store, "acme", "2024-01-01", "100.00", "a")

	_, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty:  "acme",
		PaymentAmount: dec("100.00"),
		Lines:         []models.AllocationLine{{ObligationID: a, Amount: dec("100.01")}},
	})
	if !errors.Is(err, services.ErrOverAllocation) {
		t.Fatalf("error got=%v want ErrOverAllocation", err)
	}
	entries, _ := store.ListLedgerEntriesForObligation(context.Background(), a)
	if len(entries) != 0 {
		t.Fatalf("expected no entries after rejection, got %d", len(entries))
	}
}

func TestCommit_RollsBackWholeBatchWhenOneLineExceedsBalance(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)

	a := seedObligation(t, store, "acme", "2024-01-01", "100.00", "a")
	b := seedObligation(t, store, "acme", "2024-02-01", "50.00", "b")
	seedPayment(t, store, b, "50.00") // b has zero balance

	_, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty:  "acme",
		PaymentAmount: dec("150.00"),
		Lines: []models.AllocationLine{
			{ObligationID: a, Amount: dec("100.00")},
			{ObligationID: b, Amount: dec("50.00")},
		},
	})
	if !errors.Is(err, services.ErrOverAllocation) {
		t.Fatalf("error got=%v want ErrOverAllocation", err)
	}
	// The valid first line must have been rolled back with the batch.
	entries, _ := store.ListLedgerEntriesForObligation(context.Background(), a)
	if len(entries) != 0 {
		t.Fatalf("partial batch left behind: %d entries for a", len(entries))
	}
}

func TestCommit_Validation(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewAllocationService(store)
	a := seedObligation(t, store, "acme", "2024-01-01", "100.00", "a")

	if _, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty: "acme", PaymentAmount: dec("0"),
		Lines: []models.AllocationLine{{ObligationID: a, Amount: dec("10")}},
	}); !errors.Is(err, services.ErrInvalidAmount) {
		t.Fatalf("zero payment error got=%v want ErrInvalidAmount", err)
	}
	if _, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty: "acme", PaymentAmount: dec("10"),
	}); !errors.Is(err, services.ErrNothingToAllocate) {
		t.Fatalf("empty lines error got=%v want ErrNothingToAllocate", err)
	}
	if _, err := svc.Commit(context.Background(), services.CommitAllocationInput{
		Counterparty: "acme", PaymentAmount: dec("10"),
		Lines: []models.AllocationLine{{ObligationID: 999, Amount: dec("10")}},
	}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown obligation error got=%v want ErrNotFound", err)
	}
}

func TestManualAllocation_ToggleSemantics(t *testing.T) {
	m := services.NewManualAllocation(dec("100.00"))

	allocatedA := m.Enable(1, dec("70.00"))
	if !allocatedA.Equal(dec("70.00")) {
		t.Fatalf("enable(1) got=%s want=70.00", allocatedA)
	}
	// Second obligation only gets what is left in the pool.
	allocatedB := m.Enable(2, dec("50.00"))
	if !allocatedB.Equal(dec("30.00")) {
		t.Fatalf("enable(2) got=%s want=30.00", allocatedB)
	}
	if !m.Remaining().Equal(decimal.Zero) {
		t.Fatalf("remaining got=%s want=0", m.Remaining())
	}

	// Disabling the first line frees its amount without touching the second.
	m.Disable(1)
	lines := m.Lines()
	if len(lines) != 1 || lines[0].ObligationID != 2 || !lines[0].Amount.Equal(dec("30.00")) {
		t.Fatalf("lines after disable got=%+v", lines)
	}
	if !m.Remaining().Equal(dec("70.00")) {
		t.Fatalf("remaining after disable got=%s want=70.00", m.Remaining())
	}

	// Exhausted pool allocates nothing.
	m2 := services.NewManualAllocation(dec("10.00"))
	m2.Enable(1, dec("10.00"))
	if allocated := m2.Enable(2, dec("40.00")); !allocated.Equal(decimal.Zero) {
		t.Fatalf("enable on empty pool got=%s want=0", allocated)
	}
}
