package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-dcb/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditStore is the append-only dcb_audit_entries trail.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEntryRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEntryRecord](db, auditEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Append(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	record, err := normalizeAuditEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *AuditStore) ListByTransaction(ctx context.Context, transactionID string) ([]core.AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	records := []*auditEntryRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.transaction_id = ?", strings.TrimSpace(transactionID)).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return auditRecordsToDomain(records), nil
}

// ListUpdates pages status-changing UPDATE entries inside [From, To]. Rows
// sharing a created_at keep insert order through the seq column.
func (s *AuditStore) ListUpdates(ctx context.Context, filter core.AuditHistoryFilter) (core.AuditPage, error) {
	if s == nil || s.repo == nil {
		return core.AuditPage{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("action", "=", string(core.AuditActionUpdate)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.status <> ?TableAlias.previous_status").
				OrderExpr("?TableAlias.created_at ASC, ?TableAlias.seq ASC")
		}),
	}
	if !filter.From.IsZero() {
		from := filter.From.UTC()
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.created_at >= ?", from)
		}))
	}
	if !filter.To.IsZero() {
		to := filter.To.UTC()
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.created_at <= ?", to)
		}))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, offset))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.AuditPage{}, err
	}
	return core.AuditPage{
		Entries: auditRecordsToDomain(records),
		Total:   total,
	}, nil
}

func insertAuditEntryTx(ctx context.Context, dbTx bun.Tx, entry core.AuditEntry) error {
	record, err := normalizeAuditEntry(entry)
	if err != nil {
		return err
	}
	_, err = dbTx.NewInsert().Model(record).Exec(ctx)
	return err
}

func normalizeAuditEntry(entry core.AuditEntry) (*auditEntryRecord, error) {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	entry.TransactionID = strings.TrimSpace(entry.TransactionID)
	if entry.TransactionID == "" {
		entry.TransactionID = core.UnknownTransactionID
	}
	if strings.TrimSpace(string(entry.Action)) == "" {
		return nil, fmt.Errorf("sqlstore: audit action is required")
	}
	return newAuditEntryRecord(entry), nil
}

func auditRecordsToDomain(records []*auditEntryRecord) []core.AuditEntry {
	out := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
