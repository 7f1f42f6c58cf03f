package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

type navKey struct {
	isin string
	date string
}

func newNavKey(isin string, d time.Time) navKey {
	return navKey{isin: isin, date: d.Format(model.DateLayout)}
}

// MemoryStore implements Ledger with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transaction writes are staged in the scope and appended to the committed
// logs on Commit. Because the logs are append-only, a scope's snapshot is
// the prefix of each log that existed at Begin.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]struct{}
	navs      map[navKey][]decimal.Decimal
	cash      []model.CashTransaction
	units     []model.UnitTransaction
	version   uint64 // bumped on every commit that wrote rows
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]struct{}),
		navs:      make(map[navKey][]decimal.Decimal),
	}
}

// --- Upstream seeding (outside any batch) ---

// AddCustomer registers a customer.
func (s *MemoryStore) AddCustomer(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customerID] = struct{}{}
}

// AddNav publishes a NAV row. Duplicate (isin, date) rows are kept so that
// upstream corruption can be reproduced.
func (s *MemoryStore) AddNav(row model.NavRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := newNavKey(row.ISIN, row.NavDate)
	s.navs[k] = append(s.navs[k], row.NavValue)
}

// AddCash appends a committed cash row, e.g. an opening deposit.
func (s *MemoryStore) AddCash(entry model.CashTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash = append(s.cash, entry)
	s.version++
}

// AddUnits appends a committed unit row, e.g. an opening holding.
func (s *MemoryStore) AddUnits(entry model.UnitTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, entry)
	s.version++
}

// CashTransactions returns a copy of the committed cash log.
func (s *MemoryStore) CashTransactions() []model.CashTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cash)
}

// UnitTransactions returns a copy of the committed unit log.
func (s *MemoryStore) UnitTransactions() []model.UnitTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.units)
}

// Fixtures is the JSON seed format accepted by LoadFixtures.
type Fixtures struct {
	Customers []string `json:"customers"`
	Navs      []struct {
		ISIN     string          `json:"isin"`
		NavDate  string          `json:"nav_date"`
		NavValue decimal.Decimal `json:"nav_value"`
	} `json:"navs"`
	Cash []struct {
		CustomerID string          `json:"customer_id"`
		ValueDate  string          `json:"value_date"`
		Amount     decimal.Decimal `json:"amount"`
	} `json:"cash"`
	Units []struct {
		CustomerID string          `json:"customer_id"`
		ISIN       string          `json:"isin"`
		ValueDate  string          `json:"value_date"`
		Units      decimal.Decimal `json:"units"`
	} `json:"units"`
}

// LoadFixtures seeds the store from a JSON document.
func (s *MemoryStore) LoadFixtures(r io.Reader) error {
	var fx Fixtures
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, id := range fx.Customers {
		s.AddCustomer(id)
	}
	for _, n := range fx.Navs {
		d, err := model.ParseDate(n.NavDate)
		if err != nil {
			return fmt.Errorf("fixture nav %s: %w", n.ISIN, err)
		}
		s.AddNav(model.NavRow{ISIN: n.ISIN, NavDate: d, NavValue: n.NavValue})
	}
	for _, c := range fx.Cash {
		d, err := model.ParseDate(c.ValueDate)
		if err != nil {
			return fmt.Errorf("fixture cash %s: %w", c.CustomerID, err)
		}
		s.AddCash(model.CashTransaction{CustomerID: c.CustomerID, ValueDate: d, Amount: c.Amount})
	}
	for _, u := range fx.Units {
		d, err := model.ParseDate(u.ValueDate)
		if err != nil {
			return fmt.Errorf("fixture units %s: %w", u.CustomerID, err)
		}
		s.AddUnits(model.UnitTransaction{CustomerID: u.CustomerID, ISIN: u.ISIN, ValueDate: d, Units: u.Units})
	}
	return nil
}

// Begin opens a scope over the current committed state.
func (s *MemoryStore) Begin(_ context.Context) (Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &memoryTx{
		store:   s,
		cashN:   len(s.cash),
		unitsN:  len(s.units),
		version: s.version,
	}, nil
}

type memoryTx struct {
	store   *MemoryStore
	cashN   int
	unitsN  int
	version uint64

	pendingCash  []model.CashTransaction
	pendingUnits []model.UnitTransaction
	done         bool
}

func (t *memoryTx) check(op string) error {
	if t.done {
		return fail(op, ErrTxDone)
	}
	return nil
}

func (t *memoryTx) CustomerExists(_ context.Context, customerID string) (bool, error) {
	if err := t.check("customer exists"); err != nil {
		return false, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.customers[customerID]
	return ok, nil
}

func (t *memoryTx) NavValues(_ context.Context, isin string, navDate time.Time) ([]decimal.Decimal, error) {
	if err := t.check("nav lookup"); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return slices.Clone(t.store.navs[newNavKey(isin, navDate)]), nil
}

func (t *memoryTx) CashBalance(_ context.Context, customerID string) (decimal.Decimal, error) {
	if err := t.check("cash balance"); err != nil {
		return decimal.Zero, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range t.store.cash[:t.cashN] {
		if e.CustomerID == customerID {
			sum = sum.Add(e.Amount)
		}
	}
	for _, e := range t.pendingCash {
		if e.CustomerID == customerID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (t *memoryTx) UnitHolding(_ context.Context, customerID, isin string) (decimal.Decimal, error) {
	if err := t.check("unit holding"); err != nil {
		return decimal.Zero, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range t.store.units[:t.unitsN] {
		if e.CustomerID == customerID && e.ISIN == isin {
			sum = sum.Add(e.Units)
		}
	}
	for _, e := range t.pendingUnits {
		if e.CustomerID == customerID && e.ISIN == isin {
			sum = sum.Add(e.Units)
		}
	}
	return sum, nil
}

func (t *memoryTx) AppendCash(_ context.Context, entry model.CashTransaction) error {
	if err := t.check("append cash"); err != nil {
		return err
	}
	t.pendingCash = append(t.pendingCash, entry)
	return nil
}

func (t *memoryTx) AppendUnits(_ context.Context, entry model.UnitTransaction) error {
	if err := t.check("append units"); err != nil {
		return err
	}
	t.pendingUnits = append(t.pendingUnits, entry)
	return nil
}

// Commit publishes the staged rows. A scope with writes fails with
// ErrConflict if another scope committed writes after this one began.
func (t *memoryTx) Commit(_ context.Context) error {
	if err := t.check("commit"); err != nil {
		return err
	}
	t.done = true

	if len(t.pendingCash) == 0 && len(t.pendingUnits) == 0 {
		return nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.store.version != t.version {
		return fail("commit", ErrConflict)
	}
	t.store.cash = append(t.store.cash, t.pendingCash...)
	t.store.units = append(t.store.units, t.pendingUnits...)
	t.store.version++
	return nil
}

func (t *memoryTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.pendingCash = nil
	t.pendingUnits = nil
	return nil
}
