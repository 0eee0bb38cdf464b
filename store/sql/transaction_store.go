package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TransactionStore persists dcb_transactions rows. Every write lands in the
// same database transaction as its audit entry.
type TransactionStore struct {
	db   *bun.DB
	repo repository.Repository[*transactionRecord]
}

func NewTransactionStore(db *bun.DB) (*TransactionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*transactionRecord](db, transactionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid transaction repository wiring: %w", err)
		}
	}
	return &TransactionStore{db: db, repo: repo}, nil
}

func (s *TransactionStore) Create(ctx context.Context, tx core.Transaction, entry core.AuditEntry) (core.Transaction, error) {
	if s == nil || s.db == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	tx.ID = strings.TrimSpace(tx.ID)
	if tx.ID == "" {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction id is required")
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	record := newTransactionRecord(tx)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, dbTx bun.Tx) error {
		if _, insertErr := dbTx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				return fmt.Errorf("%w: %s", core.ErrDuplicateTransaction, tx.ID)
			}
			return insertErr
		}
		return insertAuditEntryTx(ctx, dbTx, entry)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *TransactionStore) Get(ctx context.Context, id string) (core.Transaction, error) {
	if s == nil || s.repo == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmedID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(records) == 0 {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, trimmedID)
	}
	return records[0].toDomain(), nil
}

func (s *TransactionStore) Exists(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	return s.db.NewSelect().
		Model((*transactionRecord)(nil)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Exists(ctx)
}

// Update writes next only while the stored status still equals expected.
// created_at is never rewritten.
func (s *TransactionStore) Update(ctx context.Context, next core.Transaction, expected core.Status, entry core.AuditEntry) (core.Transaction, error) {
	if s == nil || s.db == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	next.ID = strings.TrimSpace(next.ID)
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	record := newTransactionRecord(next)
	stored := &transactionRecord{}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, dbTx bun.Tx) error {
		res, updateErr := dbTx.NewUpdate().
			Model(record).
			ExcludeColumn("id", "created_at").
			Where("id = ?", next.ID).
			Where("status = ?", string(expected)).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			current, findErr := findTransactionTx(ctx, dbTx, next.ID)
			if findErr != nil {
				return findErr
			}
			return fmt.Errorf("%w: %s is %s, expected %s",
				core.ErrConcurrentModification, next.ID, current.Status, expected)
		}
		if err := insertAuditEntryTx(ctx, dbTx, entry); err != nil {
			return err
		}
		current, findErr := findTransactionTx(ctx, dbTx, next.ID)
		if findErr != nil {
			return findErr
		}
		stored = current
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return stored.toDomain(), nil
}

func (s *TransactionStore) FindByRequestID(ctx context.Context, requestID string) (core.Transaction, error) {
	if s == nil || s.repo == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return core.Transaction{}, fmt.Errorf("%w: request %s", core.ErrTransactionNotFound, requestID)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("request_id", "=", requestID),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(records) == 0 {
		return core.Transaction{}, fmt.Errorf("%w: request %s", core.ErrTransactionNotFound, requestID)
	}
	return records[0].toDomain(), nil
}

func (s *TransactionStore) ListByItem(ctx context.Context, itemID string, status core.Status) ([]core.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	records := []*transactionRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.item_id = ?", strings.TrimSpace(itemID)).
		Where("?TableAlias.status = ?", string(status)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findTransactionTx(ctx context.Context, dbTx bun.Tx, id string) (*transactionRecord, error) {
	record := &transactionRecord{}
	err := dbTx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
