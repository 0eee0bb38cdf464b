package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps transactions and their audit trail in process. It
// implements TransactionStore and AuditStore over one lock so a row and its
// audit entry always land together.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]Transaction
	entries      []AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transactions: map[string]Transaction{}}
}

func (s *MemoryStore) TransactionStore() TransactionStore {
	return s
}

func (s *MemoryStore) AuditStore() AuditStore {
	return s
}

func (s *MemoryStore) Create(_ context.Context, tx Transaction, entry AuditEntry) (Transaction, error) {
	if s == nil {
		return Transaction{}, fmt.Errorf("core: memory store is not configured")
	}
	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return Transaction{}, fmt.Errorf("core: transaction id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[id]; exists {
		return Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, id)
	}
	s.transactions[id] = tx
	s.entries = append(s.entries, entry)
	return tx, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Transaction, error) {
	if s == nil {
		return Transaction{}, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[strings.TrimSpace(id)]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return tx, nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.transactions[strings.TrimSpace(id)]
	return ok, nil
}

func (s *MemoryStore) Update(_ context.Context, next Transaction, expected Status, entry AuditEntry) (Transaction, error) {
	if s == nil {
		return Transaction{}, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.transactions[next.ID]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, next.ID)
	}
	if current.Status != expected {
		return Transaction{}, fmt.Errorf("%w: %s is %s, expected %s", ErrConcurrentModification, next.ID, current.Status, expected)
	}
	next.CreatedAt = current.CreatedAt
	s.transactions[next.ID] = next
	s.entries = append(s.entries, entry)
	return next, nil
}

func (s *MemoryStore) FindByRequestID(_ context.Context, requestID string) (Transaction, error) {
	if s == nil {
		return Transaction{}, fmt.Errorf("core: memory store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if requestID != "" && tx.RequestID == requestID {
			return tx, nil
		}
	}
	return Transaction{}, fmt.Errorf("%w: request %s", ErrTransactionNotFound, requestID)
}

func (s *MemoryStore) ListByItem(_ context.Context, itemID string, status Status) ([]Transaction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Transaction{}
	for _, tx := range s.transactions {
		if tx.Item.ID == itemID && tx.Status == status {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, entry AuditEntry) error {
	if s == nil {
		return fmt.Errorf("core: memory store is not configured")
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListByTransaction(_ context.Context, transactionID string) ([]AuditEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []AuditEntry{}
	for _, entry := range s.entries {
		if entry.TransactionID == transactionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUpdates(_ context.Context, filter AuditHistoryFilter) (AuditPage, error) {
	if s == nil {
		return AuditPage{}, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	matched := []AuditEntry{}
	for _, entry := range s.entries {
		if !entry.StatusChanged() {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, entry)
	}
	s.mu.RUnlock()

	// ties keep append order
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	page := AuditPage{Total: len(matched), Entries: []AuditEntry{}}
	if filter.Offset >= len(matched) {
		return page, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	page.Entries = append(page.Entries, matched[filter.Offset:end]...)
	return page, nil
}

type MemoryHoldShelfExpiryStore struct {
	mu     sync.RWMutex
	period *HoldShelfExpiryPeriod
}

func NewMemoryHoldShelfExpiryStore() *MemoryHoldShelfExpiryStore {
	return &MemoryHoldShelfExpiryStore{}
}

func (s *MemoryHoldShelfExpiryStore) Get(context.Context) (HoldShelfExpiryPeriod, bool, error) {
	if s == nil {
		return HoldShelfExpiryPeriod{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.period == nil {
		return HoldShelfExpiryPeriod{}, false, nil
	}
	return *s.period, true, nil
}

func (s *MemoryHoldShelfExpiryStore) Put(_ context.Context, period HoldShelfExpiryPeriod) error {
	if s == nil {
		return fmt.Errorf("core: hold shelf expiry store is not configured")
	}
	if err := (HoldShelfExpiryConfig{Duration: period.Duration, IntervalID: period.IntervalID}).Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.period = &period
	s.mu.Unlock()
	return nil
}
