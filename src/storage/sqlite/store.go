// Package sqlite implements storage.Store on top of the database/sql sqlite
// driver. Decimal amounts are stored as TEXT and timestamps as RFC3339 TEXT
// so nothing is lost to float rounding or driver-specific time layouts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/storage"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs against either the raw *sql.DB or, inside WithinTx, a *sql.Tx.
type Store struct {
	db *sql.DB // nil when this store wraps an open transaction
	q  querier
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

var _ storage.Store = (*Store)(nil)

// WithinTx opens one serializable transaction, runs fn against it, and
// commits iff fn returns nil. Serializable isolation keeps two concurrent
// balance-read-then-ledger-write sequences from both succeeding.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.db == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

const obligationColumns = `id, counterparty, issue_date, amount_gross, amount_net, amount_stated,
	parent_obligation_id, bank_transaction_id, description, idempotency_key,
	verified, verified_at, verified_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (*models.Obligation, error) {
	var o models.Obligation
	var gross, net, stated string
	var description, idempotencyKey, verifiedBy sql.NullString
	var verifiedAt, createdAt sql.NullString
	err := row.Scan(&o.ID, &o.Counterparty, &o.IssueDate, &gross, &net, &stated,
		&o.ParentObligationID, &o.BankTransactionID, &description, &idempotencyKey,
		&o.Verified, &verifiedAt, &verifiedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if o.AmountGross, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("invalid amount_gross %q: %w", gross, err)
	}
	if o.AmountNet, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("invalid amount_net %q: %w", net, err)
	}
	if o.AmountStated, err = decimal.NewFromString(stated); err != nil {
		return nil, fmt.Errorf("invalid amount_stated %q: %w", stated, err)
	}
	o.Description = description.String
	o.VerifiedBy = verifiedBy.String
	if idempotencyKey.Valid {
		o.IdempotencyKey = &idempotencyKey.String
	}
	if t, ok := parseTimestamp(verifiedAt); ok {
		o.VerifiedAt = &t
	}
	if t, ok := parseTimestamp(createdAt); ok {
		o.CreatedAt = t
	}
	return &o, nil
}

func parseTimestamp(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Store) InsertObligation(ctx context.Context, o *models.Obligation) (int64, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	var verifiedAt any
	if o.VerifiedAt != nil {
		verifiedAt = formatTimestamp(*o.VerifiedAt)
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO obligations
		(counterparty, issue_date, amount_gross, amount_net, amount_stated,
		 parent_obligation_id, bank_transaction_id, description, idempotency_key,
		 verified, verified_at, verified_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Counterparty, o.IssueDate, o.AmountGross.String(), o.AmountNet.String(), o.AmountStated.String(),
		o.ParentObligationID, o.BankTransactionID, o.Description, o.IdempotencyKey,
		o.Verified, verifiedAt, o.VerifiedBy, formatTimestamp(o.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("error inserting obligation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

func (s *Store) GetObligation(ctx context.Context, id int64) (*models.Obligation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id)
	o, err := scanObligation(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return o, err
}

func (s *Store) ListObligations(ctx context.Context) ([]models.Obligation, error) {
	return s.queryObligations(ctx, `SELECT `+obligationColumns+` FROM obligations ORDER BY issue_date ASC, id ASC`)
}

func (s *Store) ListObligationsByCounterparty(ctx context.Context, counterparty string) ([]models.Obligation, error) {
	return s.queryObligations(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE counterparty = ? ORDER BY issue_date ASC, id ASC`,
		counterparty)
}

func (s *Store) ListObligationsForBankTransaction(ctx context.Context, bankTransactionID int64) ([]models.Obligation, error) {
	return s.queryObligations(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE bank_transaction_id = ? ORDER BY issue_date ASC, id ASC`,
		bankTransactionID)
}

func (s *Store) queryObligations(ctx context.Context, query string, args ...any) ([]models.Obligation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying obligations: %w", err)
	}
	defer rows.Close()

	var obligations []models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning obligation: %w", err)
		}
		obligations = append(obligations, *o)
	}
	return obligations, rows.Err()
}

func (s *Store) FindObligationByIdempotencyKey(ctx context.Context, key string) (*models.Obligation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE idempotency_key = ?`, key)
	o, err := scanObligation(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return o, err
}

var amountColumns = map[string]string{
	models.AmountFieldGross:  "amount_gross",
	models.AmountFieldNet:    "amount_net",
	models.AmountFieldStated: "amount_stated",
}

func (s *Store) UpdateObligationAmountField(ctx context.Context, id int64, field string, amount decimal.Decimal) error {
	column, ok := amountColumns[field]
	if !ok {
		return fmt.Errorf("unknown amount field %q", field)
	}
	return s.execOne(ctx, `UPDATE obligations SET `+column+` = ? WHERE id = ?`, amount.String(), id)
}

func (s *Store) UpdateObligationDescription(ctx context.Context, id int64, description string) error {
	return s.execOne(ctx, `UPDATE obligations SET description = ? WHERE id = ?`, description, id)
}

func (s *Store) SetObligationBankLink(ctx context.Context, id int64, bankTransactionID *int64) error {
	return s.execOne(ctx, `UPDATE obligations SET bank_transaction_id = ? WHERE id = ?`, bankTransactionID, id)
}

func (s *Store) SetObligationVerification(ctx context.Context, id int64, verified bool, verifiedAt *time.Time, verifiedBy string) error {
	var at any
	if verifiedAt != nil {
		at = formatTimestamp(*verifiedAt)
	}
	return s.execOne(ctx, `UPDATE obligations SET verified = ?, verified_at = ?, verified_by = ? WHERE id = ?`,
		verified, at, verifiedBy, id)
}

func (s *Store) DeleteObligation(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM obligations WHERE id = ?`, id)
}

// execOne runs a single-row statement and maps "no row touched" to
// storage.ErrNotFound.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO ledger_entries
		(counterparty, source_id, entry_date, entry_type, amount, payment_method, notes, batch_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Counterparty, e.SourceID, e.EntryDate, e.EntryType, e.Amount.String(),
		e.PaymentMethod, e.Notes, e.BatchRef, formatTimestamp(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("error inserting ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (s *Store) ListLedgerEntriesForObligation(ctx context.Context, obligationID int64) ([]models.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, counterparty, source_id, entry_date, entry_type, amount,
		payment_method, notes, batch_ref, created_at
		FROM ledger_entries WHERE source_id = ? ORDER BY entry_date ASC, id ASC`, obligationID)
	if err != nil {
		return nil, fmt.Errorf("error querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var amount string
		var paymentMethod, notes, batchRef, createdAt sql.NullString
		if err := rows.Scan(&e.ID, &e.Counterparty, &e.SourceID, &e.EntryDate, &e.EntryType,
			&amount, &paymentMethod, &notes, &batchRef, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning ledger entry: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid ledger amount %q: %w", amount, err)
		}
		e.PaymentMethod = paymentMethod.String
		e.Notes = notes.String
		e.BatchRef = batchRef.String
		if t, ok := parseTimestamp(createdAt); ok {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteLedgerEntriesForObligation(ctx context.Context, obligationID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE source_id = ?`, obligationID)
	return err
}

func (s *Store) InsertBankTransaction(ctx context.Context, t *models.BankTransaction) (int64, error) {
	res, err := s.q.ExecContext(ctx, `INSERT INTO bank_transactions (txn_date, description, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?)`,
		t.TxnDate, t.Description, t.DebitAmount.String(), t.CreditAmount.String())
	if err != nil {
		return 0, fmt.Errorf("error inserting bank transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func scanBankTransaction(row rowScanner) (*models.BankTransaction, error) {
	var t models.BankTransaction
	var debit, credit string
	var description sql.NullString
	if err := row.Scan(&t.ID, &t.TxnDate, &description, &debit, &credit); err != nil {
		return nil, err
	}
	var err error
	if t.DebitAmount, err = decimal.NewFromString(debit); err != nil {
		return nil, fmt.Errorf("invalid debit_amount %q: %w", debit, err)
	}
	if t.CreditAmount, err = decimal.NewFromString(credit); err != nil {
		return nil, fmt.Errorf("invalid credit_amount %q: %w", credit, err)
	}
	t.Description = description.String
	return &t, nil
}

func (s *Store) GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, txn_date, description, debit_amount, credit_amount FROM bank_transactions WHERE id = ?`, id)
	t, err := scanBankTransaction(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return t, err
}

// FindBankTransactions narrows by date window in SQL (ISO date strings
// compare in date order) and applies the decimal epsilon and description
// filters in Go, where decimal arithmetic is exact.
func (s *Store) FindBankTransactions(ctx context.Context, filter storage.BankTransactionFilter) ([]models.BankTransaction, error) {
	from, to, err := filter.DateWindow()
	if err != nil {
		return nil, fmt.Errorf("invalid candidate filter date: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, `SELECT id, txn_date, description, debit_amount, credit_amount
		FROM bank_transactions WHERE txn_date >= ? AND txn_date <= ? ORDER BY txn_date ASC, id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying bank transactions: %w", err)
	}
	defer rows.Close()

	var matches []models.BankTransaction
	for rows.Next() {
		t, err := scanBankTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bank transaction: %w", err)
		}
		if !filter.MatchesAmount(t) {
			continue
		}
		if filter.DescriptionContains != "" &&
			!strings.Contains(strings.ToLower(t.Description), strings.ToLower(filter.DescriptionContains)) {
			continue
		}
		matches = append(matches, *t)
	}
	return matches, rows.Err()
}

func (s *Store) GetMatch(ctx context.Context, bankTransactionID, obligationID int64) (*models.MatchingLedgerEntry, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, bank_transaction_id, obligation_id, match_type, match_confidence, notes, created_at
		FROM matching_ledger WHERE bank_transaction_id = ? AND obligation_id = ?`, bankTransactionID, obligationID)

	var m models.MatchingLedgerEntry
	var matchType, confidence, notes, createdAt sql.NullString
	err := row.Scan(&m.ID, &m.BankTransactionID, &m.ObligationID, &matchType, &confidence, &notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.MatchType = matchType.String
	m.MatchConfidence = confidence.String
	m.Notes = notes.String
	if t, ok := parseTimestamp(createdAt); ok {
		m.CreatedAt = t
	}
	return &m, nil
}

func (s *Store) InsertMatch(ctx context.Context, m *models.MatchingLedgerEntry) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO matching_ledger
		(bank_transaction_id, obligation_id, match_type, match_confidence, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.BankTransactionID, m.ObligationID, m.MatchType, m.MatchConfidence, m.Notes, formatTimestamp(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("error inserting matching ledger row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

func (s *Store) UpdateMatchNotes(ctx context.Context, id int64, notes string) error {
	return s.execOne(ctx, `UPDATE matching_ledger SET notes = ? WHERE id = ?`, notes, id)
}

func (s *Store) DeleteMatchesForObligation(ctx context.Context, obligationID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM matching_ledger WHERE obligation_id = ?`, obligationID)
	return err
}
