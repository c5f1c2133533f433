package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/storage/memory"
)

func TestMarkVerified_SetsFlagWithoutTouchingBalance(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewVerificationService(store, newTestCache(), dec("0.01"))

	id := seedObligation(t, store, "acme", "2024-01-01", "500.00", "invoice")
	seedPayment(t, store, id, "200.00")

	summary, err := svc.MarkVerified(context.Background(), id, "clerk")
	if err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if !summary.Obligation.Verified {
		t.Fatalf("verified flag not set")
	}
	if summary.Obligation.VerifiedAt == nil {
		t.Fatalf("verified timestamp not set")
	}
	if summary.Obligation.VerifiedBy != "clerk" {
		t.Fatalf("verified actor got=%q want=clerk", summary.Obligation.VerifiedBy)
	}
	// Balance and ledger untouched by verification.
	if !summary.Balance.Equal(dec("300.00")) {
		t.Fatalf("balance got=%s want=300.00", summary.Balance)
	}
	entries, _ := store.ListLedgerEntriesForObligation(context.Background(), id)
	if len(entries) != 1 {
		t.Fatalf("ledger entries got=%d want=1", len(entries))
	}

	unverified, err := svc.MarkUnverified(context.Background(), id)
	if err != nil {
		t.Fatalf("mark unverified: %v", err)
	}
	if unverified.Obligation.Verified || unverified.Obligation.VerifiedAt != nil || unverified.Obligation.VerifiedBy != "" {
		t.Fatalf("unverify did not clear fields: %+v", unverified.Obligation)
	}
	if !unverified.Balance.Equal(dec("300.00")) {
		t.Fatalf("balance changed by unverify: %s", unverified.Balance)
	}
}

func TestMarkVerified_RequiresActorAndExistingObligation(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewVerificationService(store, newTestCache(), dec("0.01"))
	id := seedObligation(t, store, "acme", "2024-01-01", "100.00", "invoice")

	if _, err := svc.MarkVerified(context.Background(), id, ""); !errors.Is(err, services.ErrInvalidAmount) {
		t.Fatalf("missing actor error got=%v", err)
	}
	if _, err := svc.MarkVerified(context.Background(), 999, "clerk"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown obligation error got=%v want ErrNotFound", err)
	}
}

func TestSummary_CountsAndPercent(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewVerificationService(store, newTestCache(), dec("0.01"))

	a := seedObligation(t, store, "acme", "2023-05-01", "100.00", "a")
	seedObligation(t, store, "acme", "2023-06-01", "100.00", "b")
	c := seedObligation(t, store, "globex", "2024-02-01", "100.00", "c")
	seedObligation(t, store, "globex", "2024-03-01", "100.00", "d")

	if _, err := svc.MarkVerified(context.Background(), a, "clerk"); err != nil {
		t.Fatalf("verify a: %v", err)
	}
	if _, err := svc.MarkVerified(context.Background(), c, "clerk"); err != nil {
		t.Fatalf("verify c: %v", err)
	}

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 4 || summary.Verified != 2 {
		t.Fatalf("summary got=%+v want total=4 verified=2", summary)
	}
	if summary.Percent != 50 {
		t.Fatalf("percent got=%v want=50", summary.Percent)
	}
}

func TestByYear_GroupsByIssueYear(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewVerificationService(store, newTestCache(), dec("0.01"))

	a := seedObligation(t, store, "acme", "2023-05-01", "100.00", "a")
	seedObligation(t, store, "acme", "2023-06-01", "100.00", "b")
	seedObligation(t, store, "globex", "2024-02-01", "100.00", "c")

	if _, err := svc.MarkVerified(context.Background(), a, "clerk"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	byYear, err := svc.ByYear(context.Background())
	if err != nil {
		t.Fatalf("by year: %v", err)
	}
	if got := byYear["2023"]; got.Total != 2 || got.Verified != 1 {
		t.Fatalf("2023 got=%+v want total=2 verified=1", got)
	}
	if got := byYear["2024"]; got.Total != 1 || got.Verified != 0 {
		t.Fatalf("2024 got=%+v want total=1 verified=0", got)
	}
}

func TestSummary_CacheInvalidatedByVerificationChange(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewVerificationService(store, newTestCache(), dec("0.01"))

	id := seedObligation(t, store, "acme", "2024-01-01", "100.00", "a")

	before, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if before.Verified != 0 {
		t.Fatalf("verified got=%d want=0", before.Verified)
	}

	if _, err := svc.MarkVerified(context.Background(), id, "clerk"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	after, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary after verify: %v", err)
	}
	if after.Verified != 1 {
		t.Fatalf("stale cached summary served: %+v", after)
	}
}
