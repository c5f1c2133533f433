// Package memory is an in-memory storage.Store used by tests. Rollback is
// implemented by snapshotting the whole state before WithinTx and restoring
// it when the callback fails, which mirrors the all-or-nothing semantics of
// the sqlite store closely enough for service-level tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/storage"
)

type state struct {
	obligations map[int64]models.Obligation
	entries     map[int64]models.LedgerEntry
	bankTxns    map[int64]models.BankTransaction
	matches     map[int64]models.MatchingLedgerEntry

	nextObligationID int64
	nextEntryID      int64
	nextBankTxnID    int64
	nextMatchID      int64
}

type Store struct {
	mu   sync.Mutex
	st   state
	inTx bool
}

func NewStore() *Store {
	return &Store{st: state{
		obligations: make(map[int64]models.Obligation),
		entries:     make(map[int64]models.LedgerEntry),
		bankTxns:    make(map[int64]models.BankTransaction),
		matches:     make(map[int64]models.MatchingLedgerEntry),
	}}
}

var _ storage.Store = (*Store)(nil)

func cloneObligation(o models.Obligation) models.Obligation {
	c := o
	if o.ParentObligationID != nil {
		v := *o.ParentObligationID
		c.ParentObligationID = &v
	}
	if o.BankTransactionID != nil {
		v := *o.BankTransactionID
		c.BankTransactionID = &v
	}
	if o.IdempotencyKey != nil {
		v := *o.IdempotencyKey
		c.IdempotencyKey = &v
	}
	if o.VerifiedAt != nil {
		v := *o.VerifiedAt
		c.VerifiedAt = &v
	}
	return c
}

func (st state) clone() state {
	c := st
	c.obligations = make(map[int64]models.Obligation, len(st.obligations))
	for id, o := range st.obligations {
		c.obligations[id] = cloneObligation(o)
	}
	c.entries = make(map[int64]models.LedgerEntry, len(st.entries))
	for id, e := range st.entries {
		c.entries[id] = e
	}
	c.bankTxns = make(map[int64]models.BankTransaction, len(st.bankTxns))
	for id, t := range st.bankTxns {
		c.bankTxns[id] = t
	}
	c.matches = make(map[int64]models.MatchingLedgerEntry, len(st.matches))
	for id, m := range st.matches {
		c.matches[id] = m
	}
	return c
}

// WithinTx snapshots state, runs fn, and restores the snapshot if fn errors.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	if s.inTx {
		s.mu.Unlock()
		return fn(s)
	}
	s.inTx = true
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := fn(s)

	s.mu.Lock()
	if err != nil {
		s.st = snapshot
	}
	s.inTx = false
	s.mu.Unlock()
	return err
}

func (s *Store) lock() func() {
	// WithinTx holds the logical lock for the whole callback on the sqlite
	// side; here each call locks individually, which is fine for tests.
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InsertObligation(ctx context.Context, o *models.Obligation) (int64, error) {
	defer s.lock()()
	if o.IdempotencyKey != nil {
		for _, existing := range s.st.obligations {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return 0, &uniqueConstraintError{column: "idempotency_key"}
			}
		}
	}
	s.st.nextObligationID++
	o.ID = s.st.nextObligationID
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	s.st.obligations[o.ID] = cloneObligation(*o)
	return o.ID, nil
}

type uniqueConstraintError struct{ column string }

func (e *uniqueConstraintError) Error() string {
	return "UNIQUE constraint failed: " + e.column
}

func (s *Store) GetObligation(ctx context.Context, id int64) (*models.Obligation, error) {
	defer s.lock()()
	o, ok := s.st.obligations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := cloneObligation(o)
	return &c, nil
}

func sortObligations(list []models.Obligation) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IssueDate != list[j].IssueDate {
			return list[i].IssueDate < list[j].IssueDate
		}
		return list[i].ID < list[j].ID
	})
}

func (s *Store) ListObligations(ctx context.Context) ([]models.Obligation, error) {
	defer s.lock()()
	var list []models.Obligation
	for _, o := range s.st.obligations {
		list = append(list, cloneObligation(o))
	}
	sortObligations(list)
	return list, nil
}

func (s *Store) ListObligationsByCounterparty(ctx context.Context, counterparty string) ([]models.Obligation, error) {
	defer s.lock()()
	var list []models.Obligation
	for _, o := range s.st.obligations {
		if o.Counterparty == counterparty {
			list = append(list, cloneObligation(o))
		}
	}
	sortObligations(list)
	return list, nil
}

func (s *Store) ListObligationsForBankTransaction(ctx context.Context, bankTransactionID int64) ([]models.Obligation, error) {
	defer s.lock()()
	var list []models.Obligation
	for _, o := range s.st.obligations {
		if o.BankTransactionID != nil && *o.BankTransactionID == bankTransactionID {
			list = append(list, cloneObligation(o))
		}
	}
	sortObligations(list)
	return list, nil
}

func (s *Store) FindObligationByIdempotencyKey(ctx context.Context, key string) (*models.Obligation, error) {
	defer s.lock()()
	for _, o := range s.st.obligations {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			c := cloneObligation(o)
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) UpdateObligationAmountField(ctx context.Context, id int64, field string, amount decimal.Decimal) error {
	defer s.lock()()
	o, ok := s.st.obligations[id]
	if !ok {
		return storage.ErrNotFound
	}
	switch field {
	case models.AmountFieldGross:
		o.AmountGross = amount
	case models.AmountFieldNet:
		o.AmountNet = amount
	case models.AmountFieldStated:
		o.AmountStated = amount
	default:
		return storage.ErrNotFound
	}
	s.st.obligations[id] = o
	return nil
}

func (s *Store) UpdateObligationDescription(ctx context.Context, id int64, description string) error {
	defer s.lock()()
	o, ok := s.st.obligations[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.Description = description
	s.st.obligations[id] = o
	return nil
}

func (s *Store) SetObligationBankLink(ctx context.Context, id int64, bankTransactionID *int64) error {
	defer s.lock()()
	o, ok := s.st.obligations[id]
	if !ok {
		return storage.ErrNotFound
	}
	if bankTransactionID != nil {
		v := *bankTransactionID
		o.BankTransactionID = &v
	} else {
		o.BankTransactionID = nil
	}
	s.st.obligations[id] = o
	return nil
}

func (s *Store) SetObligationVerification(ctx context.Context, id int64, verified bool, verifiedAt *time.Time, verifiedBy string) error {
	defer s.lock()()
	o, ok := s.st.obligations[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.Verified = verified
	o.VerifiedBy = verifiedBy
	if verifiedAt != nil {
		v := *verifiedAt
		o.VerifiedAt = &v
	} else {
		o.VerifiedAt = nil
	}
	s.st.obligations[id] = o
	return nil
}

func (s *Store) DeleteObligation(ctx context.Context, id int64) error {
	defer s.lock()()
	if _, ok := s.st.obligations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.obligations, id)
	return nil
}

func (s *Store) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) (int64, error) {
	defer s.lock()()
	s.st.nextEntryID++
	e.ID = s.st.nextEntryID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.st.entries[e.ID] = *e
	return e.ID, nil
}

func (s *Store) ListLedgerEntriesForObligation(ctx context.Context, obligationID int64) ([]models.LedgerEntry, error) {
	defer s.lock()()
	var list []models.LedgerEntry
	for _, e := range s.st.entries {
		if e.SourceID == obligationID {
			list = append(list, e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].EntryDate != list[j].EntryDate {
			return list[i].EntryDate < list[j].EntryDate
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *Store) DeleteLedgerEntriesForObligation(ctx context.Context, obligationID int64) error {
	defer s.lock()()
	for id, e := range s.st.entries {
		if e.SourceID == obligationID {
			delete(s.st.entries, id)
		}
	}
	return nil
}

func (s *Store) InsertBankTransaction(ctx context.Context, t *models.BankTransaction) (int64, error) {
	defer s.lock()()
	s.st.nextBankTxnID++
	t.ID = s.st.nextBankTxnID
	s.st.bankTxns[t.ID] = *t
	return t.ID, nil
}

func (s *Store) GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	defer s.lock()()
	t, ok := s.st.bankTxns[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (s *Store) FindBankTransactions(ctx context.Context, filter storage.BankTransactionFilter) ([]models.BankTransaction, error) {
	from, to, err := filter.DateWindow()
	if err != nil {
		return nil, err
	}
	defer s.lock()()
	var list []models.BankTransaction
	for _, t := range s.st.bankTxns {
		if t.TxnDate < from || t.TxnDate > to {
			continue
		}
		if !filter.MatchesAmount(&t) {
			continue
		}
		if filter.DescriptionContains != "" &&
			!strings.Contains(strings.ToLower(t.Description), strings.ToLower(filter.DescriptionContains)) {
			continue
		}
		list = append(list, t)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].TxnDate != list[j].TxnDate {
			return list[i].TxnDate < list[j].TxnDate
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *Store) GetMatch(ctx context.Context, bankTransactionID, obligationID int64) (*models.MatchingLedgerEntry, error) {
	defer s.lock()()
	for _, m := range s.st.matches {
		if m.BankTransactionID == bankTransactionID && m.ObligationID == obligationID {
			c := m
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) InsertMatch(ctx context.Context, m *models.MatchingLedgerEntry) (int64, error) {
	defer s.lock()()
	for _, existing := range s.st.matches {
		if existing.BankTransactionID == m.BankTransactionID && existing.ObligationID == m.ObligationID {
			return 0, &uniqueConstraintError{column: "bank_transaction_id, obligation_id"}
		}
	}
	s.st.nextMatchID++
	m.ID = s.st.nextMatchID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.st.matches[m.ID] = *m
	return m.ID, nil
}

func (s *Store) UpdateMatchNotes(ctx context.Context, id int64, notes string) error {
	defer s.lock()()
	m, ok := s.st.matches[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Notes = notes
	s.st.matches[id] = m
	return nil
}

func (s *Store) DeleteMatchesForObligation(ctx context.Context, obligationID int64) error {
	defer s.lock()()
	for id, m := range s.st.matches {
		if m.ObligationID == obligationID {
			delete(s.st.matches, id)
		}
	}
	return nil
}
