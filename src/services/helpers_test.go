package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/storage/memory"
)

func init() {
	logger.L = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestCache() *cache.Cache {
	return cache.New(cache.NoExpiration, 0)
}

func seedObligation(t *testing.T, store *memory.Store, counterparty, issueDate, amount, description string) int64 {
	t.Helper()
	o := &models.Obligation{
		Counterparty: counterparty,
		IssueDate:    issueDate,
		AmountGross:  dec(amount),
		Description:  description,
	}
	id, err := store.InsertObligation(context.Background(), o)
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	return id
}

func seedBankTransaction(t *testing.T, store *memory.Store, txnDate, description, debit string) int64 {
	t.Helper()
	txn := &models.BankTransaction{
		TxnDate:      txnDate,
		Description:  description,
		DebitAmount:  dec(debit),
		CreditAmount: decimal.Zero,
	}
	id, err := store.InsertBankTransaction(context.Background(), txn)
	if err != nil {
		t.Fatalf("seed bank transaction: %v", err)
	}
	return id
}

func seedPayment(t *testing.T, store *memory.Store, obligationID int64, amount string) {
	t.Helper()
	_, err := store.InsertLedgerEntry(context.Background(), &models.LedgerEntry{
		SourceID:  obligationID,
		EntryDate: "2024-01-15",
		EntryType: models.EntryTypePayment,
		Amount:    dec(amount).Neg(),
	})
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}
