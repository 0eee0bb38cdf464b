package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-dcb/core"
	dcbmigrations "github.com/goliatone/go-dcb/migrations"
	sqlstore "github.com/goliatone/go-dcb/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-dcb-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"dcb_transactions", "dcb_audit_entries", "dcb_service_point_expiration_periods"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestTransactionStore_CreateIsAtomicAndUnique(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	transactions := factory.TransactionStore()
	audit := factory.AuditStore()

	tx := sampleTransaction("tx-create", core.StatusCreated)
	created, err := transactions.Create(ctx, tx, auditEntry("a-1", tx.ID, core.AuditActionCreate, tx.CreatedAt))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Patron.Barcode != "P-100" || created.Item.MaterialType != "book" || !created.SelfBorrowing {
		t.Fatalf("expected round-tripped transaction, got %+v", created)
	}

	_, err = transactions.Create(ctx, tx, auditEntry("a-2", tx.ID, core.AuditActionCreate, tx.CreatedAt))
	if !errors.Is(err, core.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}
	entries, err := audit.ListByTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "a-1" {
		t.Fatalf("expected the rolled back duplicate to leave one entry, got %+v", entries)
	}

	exists, err := transactions.Exists(ctx, tx.ID)
	if err != nil || !exists {
		t.Fatalf("expected transaction to exist, got %v %v", exists, err)
	}
	exists, err = transactions.Exists(ctx, "missing")
	if err != nil || exists {
		t.Fatalf("expected missing transaction, got %v %v", exists, err)
	}
	if _, err := transactions.Get(ctx, "missing"); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransactionStore_UpdateChecksExpectedStatus(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	transactions := factory.TransactionStore()
	audit := factory.AuditStore()

	tx := sampleTransaction("tx-update", core.StatusCreated)
	if _, err := transactions.Create(ctx, tx, auditEntry("c-1", tx.ID, core.AuditActionCreate, tx.CreatedAt)); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := tx.WithStatus(core.StatusOpen, tx.CreatedAt.Add(time.Minute))
	next.CreatedAt = time.Time{}
	updated, err := transactions.Update(ctx, next, core.StatusCreated, auditEntry("u-1", tx.ID, core.AuditActionUpdate, next.UpdatedAt))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != core.StatusOpen {
		t.Fatalf("expected OPEN, got %s", updated.Status)
	}
	if !updated.CreatedAt.Equal(tx.CreatedAt) {
		t.Fatalf("expected created_at preserved, got %s want %s", updated.CreatedAt, tx.CreatedAt)
	}

	stale := tx.WithStatus(core.StatusOpen, tx.CreatedAt.Add(2*time.Minute))
	_, err = transactions.Update(ctx, stale, core.StatusCreated, auditEntry("u-2", tx.ID, core.AuditActionUpdate, stale.UpdatedAt))
	if !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}
	_, err = transactions.Update(ctx, sampleTransaction("tx-missing", core.StatusOpen), core.StatusCreated, auditEntry("u-3", "tx-missing", core.AuditActionUpdate, stale.UpdatedAt))
	if !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	entries, err := audit.ListByTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 || entries[1].ID != "u-1" {
		t.Fatalf("expected create and one committed update, got %+v", entries)
	}
	stored, err := transactions.Get(ctx, tx.ID)
	if err != nil || stored.Status != core.StatusOpen {
		t.Fatalf("expected stored OPEN, got %+v %v", stored, err)
	}
}

func TestTransactionStore_FindByRequestAndItem(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	transactions := factory.TransactionStore()

	seed := []core.Transaction{
		withRequest(sampleTransaction("tx-b", core.StatusExpired), "req-1"),
		withRequest(sampleTransaction("tx-a", core.StatusExpired), "req-2"),
		withRequest(sampleTransaction("tx-c", core.StatusOpen), "req-3"),
	}
	for idx, tx := range seed {
		if _, err := transactions.Create(ctx, tx, auditEntry(fmt.Sprintf("c-%d", idx), tx.ID, core.AuditActionCreate, tx.CreatedAt)); err != nil {
			t.Fatalf("create %s: %v", tx.ID, err)
		}
	}

	found, err := transactions.FindByRequestID(ctx, "req-1")
	if err != nil || found.ID != "tx-b" {
		t.Fatalf("expected tx-b, got %+v %v", found, err)
	}
	if _, err := transactions.FindByRequestID(ctx, " "); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected blank request id to miss, got %v", err)
	}
	expired, err := transactions.ListByItem(ctx, "item-1", core.StatusExpired)
	if err != nil {
		t.Fatalf("list by item: %v", err)
	}
	if len(expired) != 2 || expired[0].ID != "tx-a" || expired[1].ID != "tx-b" {
		t.Fatalf("expected expired transactions sorted by id, got %+v", expired)
	}
}

func TestAuditStore_ListUpdatesWindowAndPaging(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	audit := factory.AuditStore()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for idx := 0; idx < 4; idx++ {
		entry := auditEntry(fmt.Sprintf("u-%d", idx), "tx-1", core.AuditActionUpdate, base.Add(time.Duration(3-idx)*time.Hour))
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := audit.Append(ctx, auditEntry("err-1", "tx-1", core.AuditActionError, base.Add(2*time.Hour))); err != nil {
		t.Fatalf("append error entry: %v", err)
	}

	page, err := audit.ListUpdates(ctx, core.AuditHistoryFilter{
		From:  base.Add(time.Hour),
		To:    base.Add(3 * time.Hour),
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected three updates in window, got %d", page.Total)
	}
	if len(page.Entries) != 2 || page.Entries[0].ID != "u-2" || page.Entries[1].ID != "u-1" {
		t.Fatalf("expected chronological first page, got %+v", page.Entries)
	}

	page, err = audit.ListUpdates(ctx, core.AuditHistoryFilter{
		From:   base.Add(time.Hour),
		To:     base.Add(3 * time.Hour),
		Offset: 2,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "u-0" {
		t.Fatalf("expected last update on second page, got %+v", page.Entries)
	}

	if err := audit.Append(ctx, core.AuditEntry{TransactionID: "tx-1"}); err == nil {
		t.Fatalf("expected audit entry without action to be rejected")
	}
}

func TestAuditStore_ListUpdatesSkipsNonStatusChangesAndKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	audit := factory.AuditStore()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"z-first", "m-second", "a-third"} {
		if err := audit.Append(ctx, auditEntry(id, "tx-1", core.AuditActionUpdate, at)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	barcodeOnly := auditEntry("barcode", "tx-1", core.AuditActionUpdate, at)
	barcodeOnly.PreviousStatus = core.StatusCreated
	barcodeOnly.Status = core.StatusCreated
	if err := audit.Append(ctx, barcodeOnly); err != nil {
		t.Fatalf("append barcode update: %v", err)
	}

	page, err := audit.ListUpdates(ctx, core.AuditHistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	if page.Total != 3 || len(page.Entries) != 3 {
		t.Fatalf("expected three status changes, got total=%d entries=%+v", page.Total, page.Entries)
	}
	for idx, want := range []string{"z-first", "m-second", "a-third"} {
		if page.Entries[idx].ID != want {
			t.Fatalf("expected %s at %d, got %s", want, idx, page.Entries[idx].ID)
		}
	}
	if page.Entries[0].PreviousStatus != core.StatusCreated || page.Entries[0].Status != core.StatusOpen {
		t.Fatalf("expected statuses round-tripped, got %+v", page.Entries[0])
	}

	trail, err := audit.ListByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("list by transaction: %v", err)
	}
	if len(trail) != 4 || trail[3].ID != "barcode" {
		t.Fatalf("expected full trail in insert order, got %+v", trail)
	}
}

func TestHoldShelfExpiryStore_PutReplacesOverride(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.HoldShelfExpiryStore()

	if _, found, err := store.Get(ctx); err != nil || found {
		t.Fatalf("expected no override, got %v %v", found, err)
	}
	if err := store.Put(ctx, core.HoldShelfExpiryPeriod{Duration: 2, IntervalID: "Fortnights"}); err == nil {
		t.Fatalf("expected invalid interval to be rejected")
	}
	if err := store.Put(ctx, core.HoldShelfExpiryPeriod{Duration: 2, IntervalID: "Weeks"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, core.HoldShelfExpiryPeriod{Duration: 5, IntervalID: "Days"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	period, found, err := store.Get(ctx)
	if err != nil || !found {
		t.Fatalf("expected override, got %v %v", found, err)
	}
	if period.Duration != 5 || period.IntervalID != "Days" {
		t.Fatalf("expected replaced override, got %+v", period)
	}
	var rows int
	if err := factory.DB().NewRaw("SELECT COUNT(*) FROM dcb_service_point_expiration_periods").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected single override row, got %d", rows)
	}
}

func TestService_EventsPersistThroughSQLStores(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	svc, err := core.NewService(core.DefaultConfig(),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(sqlstore.NewRepositoryFactory()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	transactions := svc.Dependencies().TransactionStore
	if transactions == nil {
		t.Fatalf("expected sql transaction store wired from the factory")
	}

	tx := withRequest(sampleTransaction("tx-events", core.StatusAwaitingPickup), "req-events")
	tx.CreatedAt = time.Now().UTC().Add(-time.Hour)
	tx.UpdatedAt = tx.CreatedAt
	if _, err := transactions.Create(ctx, tx, auditEntry("c-events", tx.ID, core.AuditActionCreate, tx.CreatedAt)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.HandleRequestExpired(ctx, "req-events"); err != nil {
		t.Fatalf("request expired: %v", err)
	}
	if err := svc.HandleItemCheckedIn(ctx, "item-1"); err != nil {
		t.Fatalf("item checked in: %v", err)
	}
	status, err := transactions.Get(ctx, tx.ID)
	if err != nil || status.Status != core.StatusClosed {
		t.Fatalf("expected CLOSED, got %+v %v", status, err)
	}

	page, err := svc.ListStatusHistory(ctx, core.HistoryQuery{PageSize: 10})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.TotalRecords != 2 || len(page.Items) != 2 {
		t.Fatalf("expected two status changes, got %+v", page)
	}
	if page.Items[0].Status != core.StatusExpired || page.Items[1].Status != core.StatusClosed {
		t.Fatalf("expected EXPIRED then CLOSED, got %+v", page.Items)
	}
	if page.Items[1].PreviousStatus != core.StatusExpired {
		t.Fatalf("expected previous status EXPIRED, got %s", page.Items[1].PreviousStatus)
	}
}

func sampleTransaction(id string, status core.Status) core.Transaction {
	created := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	return core.Transaction{
		ID:     id,
		Role:   core.RoleBorrower,
		Status: status,
		Patron: core.PatronRef{ID: "patron-1", Barcode: "P-100", Group: "staff"},
		Item: core.ItemRef{
			ID:                 "item-1",
			Barcode:            "I-100",
			Title:              "Distributed Systems",
			MaterialType:       "book",
			LendingLibraryCode: "LIB1",
		},
		Pickup:        core.PickupRef{ServicePointID: "sp-pickup", ServicePointName: "Main desk", LibraryCode: "LIB2"},
		SelfBorrowing: true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func withRequest(tx core.Transaction, requestID string) core.Transaction {
	tx.RequestID = requestID
	return tx
}

func auditEntry(id string, transactionID string, action core.AuditAction, at time.Time) core.AuditEntry {
	entry := core.AuditEntry{
		ID:            id,
		TransactionID: transactionID,
		Action:        action,
		After:         `{"id":"` + transactionID + `"}`,
		CreatedAt:     at,
	}
	if action == core.AuditActionUpdate {
		entry.PreviousStatus = core.StatusCreated
		entry.Status = core.StatusOpen
	}
	return entry
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:dcb-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	err = dcbmigrations.Register(ctx, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, dcbmigrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
