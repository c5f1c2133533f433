package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/storage/memory"
)

func TestSplit_HeuristicPicksLargestCurrencyToken(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	id := seedObligation(t, store, "acme", "2024-01-10", "137.00", "Service 125.00 plus handling 12.00")

	result, err := svc.Split(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if result.Status != services.SplitStatusOK {
		t.Fatalf("status got=%q want=ok", result.Status)
	}
	if !result.Base.Equal(dec("125.00")) {
		t.Fatalf("base got=%s want=125.00", result.Base)
	}
	if !result.Fee.Equal(dec("12.00")) {
		t.Fatalf("fee got=%s want=12.00", result.Fee)
	}
	if result.BaseSource != services.BaseSourceHeuristic {
		t.Fatalf("base source got=%q want=%q", result.BaseSource, services.BaseSourceHeuristic)
	}

	parent, err := store.GetObligation(context.Background(), id)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if !parent.AmountGross.Equal(dec("125.00")) {
		t.Fatalf("parent amount got=%s want=125.00", parent.AmountGross)
	}

	child, err := store.GetObligation(context.Background(), result.FeeObligationID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if child.ParentObligationID == nil || *child.ParentObligationID != id {
		t.Fatalf("child parent link got=%v want=%d", child.ParentObligationID, id)
	}
	if !child.AmountGross.Equal(dec("12.00")) {
		t.Fatalf("child amount got=%s want=12.00", child.AmountGross)
	}
}

func TestSplit_ExplicitBaseIsAuthoritative(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	// Description tokens would suggest 99.00; the explicit base wins.
	id := seedObligation(t, store, "acme", "2024-01-10", "120.00", "Bundle 99.00 promo")
	base := dec("100.00")

	result, err := svc.Split(context.Background(), id, &base)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if result.Status != services.SplitStatusOK {
		t.Fatalf("status got=%q want=ok", result.Status)
	}
	if !result.Fee.Equal(dec("20.00")) {
		t.Fatalf("fee got=%s want=20.00", result.Fee)
	}
	if result.BaseSource != services.BaseSourceExplicit {
		t.Fatalf("base source got=%q want=%q", result.BaseSource, services.BaseSourceExplicit)
	}
}

func TestSplit_NoPositiveFeeSkips(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	id := seedObligation(t, store, "acme", "2024-01-10", "100.00", "flat charge")
	base := dec("100.00")

	result, err := svc.Split(context.Background(), id, &base)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if result.Status != services.SplitStatusSkip {
		t.Fatalf("status got=%q want=skip", result.Status)
	}

	// Nothing mutated.
	parent, _ := store.GetObligation(context.Background(), id)
	if !parent.AmountGross.Equal(dec("100.00")) {
		t.Fatalf("parent amount changed to %s on skip", parent.AmountGross)
	}
}

func TestSplit_NeedsInputWhenNoTokenFound(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	id := seedObligation(t, store, "acme", "2024-01-10", "137.00", "no figures in here")

	result, err := svc.Split(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if result.Status != services.SplitStatusNeedsInput {
		t.Fatalf("status got=%q want=needs_input", result.Status)
	}

	parent, _ := store.GetObligation(context.Background(), id)
	if !parent.AmountGross.Equal(dec("137.00")) {
		t.Fatalf("parent amount changed to %s on needs_input", parent.AmountGross)
	}
	obligations, _ := store.ListObligationsByCounterparty(context.Background(), "acme")
	if len(obligations) != 1 {
		t.Fatalf("obligation created on needs_input: %d total", len(obligations))
	}
}

func TestSplit_RerunReturnsExistingChild(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	id := seedObligation(t, store, "acme", "2024-01-10", "137.00", "Service 125.00 plus handling 12.00")

	first, err := svc.Split(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}

	// Parent now carries 125.00; re-running with the explicit original base
	// computes the same fee and must find the same child.
	base := dec("113.00") // 125.00 - 113.00 = 12.00, same fee signature
	second, err := svc.Split(context.Background(), id, &base)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if second.Status != services.SplitStatusOK {
		t.Fatalf("status got=%q want=ok", second.Status)
	}
	if second.FeeObligationID != first.FeeObligationID {
		t.Fatalf("rerun created new child %d, want existing %d", second.FeeObligationID, first.FeeObligationID)
	}

	obligations, _ := store.ListObligationsByCounterparty(context.Background(), "acme")
	children := 0
	for _, o := range obligations {
		if o.ParentObligationID != nil {
			children++
		}
	}
	if children != 1 {
		t.Fatalf("fee children got=%d want=1", children)
	}

	// Parent amount must not have been reduced a second time.
	parent, _ := store.GetObligation(context.Background(), id)
	if !parent.AmountGross.Equal(dec("125.00")) {
		t.Fatalf("parent amount got=%s want=125.00 after rerun", parent.AmountGross)
	}
}

func TestSplit_FeeChildIsNeverSplitAgain(t *testing.T) {
	store := memory.NewStore()
	svc := services.NewSplitService(store)

	id := seedObligation(t, store, "acme", "2024-01-10", "137.00", "Service 125.00 plus handling 12.00")
	result, err := svc.Split(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if _, err := svc.Split(context.Background(), result.FeeObligationID, nil); !errors.Is(err, services.ErrSplitChild) {
		t.Fatalf("child split error got=%v want ErrSplitChild", err)
	}
}

func TestSplit_UnknownObligation(t *testing.T) {
	svc := services.NewSplitService(memory.NewStore())
	if _, err := svc.Split(context.Background(), 42, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error got=%v want ErrNotFound", err)
	}
}

func TestSuggestBaseAmount(t *testing.T) {
	tests := []struct {
		description string
		want        string
		found       bool
	}{
		{"Service 125.00 plus handling 12.00", "125.00", true},
		{"Total 1,250.00 incl. fee 25.00", "1250.00", true},
		{"ref 20240110 no amounts", "", false},
		{"single 9.99", "9.99", true},
	}
	for _, tc := range tests {
		got, found := services.SuggestBaseAmount(tc.description)
		if found != tc.found {
			t.Fatalf("%q: found got=%v want=%v", tc.description, found, tc.found)
		}
		if found && !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%q: got=%s want=%s", tc.description, got, tc.want)
		}
	}
}
