package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-dcb/adapters/gocommand"
	"github.com/goliatone/go-dcb/adapters/gojob"
	"github.com/goliatone/go-dcb/adapters/gologger"
	dcbcommand "github.com/goliatone/go-dcb/command"
	"github.com/goliatone/go-dcb/core"
	dcbquery "github.com/goliatone/go-dcb/query"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("dcb", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	events := gojob.NewEventEnqueuer(gojob.NewEnqueuerAdapter(enqueueProbe))
	if err := events.HandleRequestExpired(ctx, "req-1"); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != core.JobIDRequestExpired {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	svc := newCompatService(t, core.NewMemoryStore())
	subs, err := gocommand.RegisterService(commandAdapter, svc)
	if err != nil {
		t.Fatalf("register service: %v", err)
	}
	defer subs.Unsubscribe()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(dcbcommand.TypeHandleRequestExpired); !ok {
		t.Fatalf("expected command resolver hook to mirror request expired command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_EventCommandsDriveService(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryStore()
	seedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	if _, err := store.Create(ctx, core.Transaction{
		ID:        "tx-1",
		Role:      core.RolePickup,
		Status:    core.StatusAwaitingPickup,
		Item:      core.ItemRef{ID: "item-1", Barcode: "I-1"},
		Patron:    core.PatronRef{ID: "patron-1", Barcode: "P-1"},
		Pickup:    core.PickupRef{ServicePointID: "sp-1"},
		RequestID: "req-1",
		CreatedAt: seedAt,
		UpdatedAt: seedAt,
	}, core.AuditEntry{ID: "audit-0", TransactionID: "tx-1", Action: core.AuditActionCreate, CreatedAt: seedAt}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	svc := newCompatService(t, store)
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterService(adapter, svc)
	if err != nil {
		t.Fatalf("register service: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(ctx, dcbcommand.HandleRequestExpiredMessage{RequestID: "req-1"}); err != nil {
		t.Fatalf("dispatch request expired: %v", err)
	}
	status, err := gocommand.Query[dcbquery.GetStatusMessage, core.TransactionStatus](ctx, dcbquery.GetStatusMessage{TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status.Status != core.StatusExpired {
		t.Fatalf("expected EXPIRED after request expired event, got %s", status.Status)
	}

	if err := gocommand.Dispatch(ctx, dcbcommand.HandleItemCheckedInMessage{ItemID: "item-1"}); err != nil {
		t.Fatalf("dispatch item checked in: %v", err)
	}
	status, err = gocommand.Query[dcbquery.GetStatusMessage, core.TransactionStatus](ctx, dcbquery.GetStatusMessage{TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status.Status != core.StatusClosed {
		t.Fatalf("expected CLOSED after item checked in event, got %s", status.Status)
	}
}

func newCompatService(t *testing.T, store *core.MemoryStore) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithTransactionStore(store),
		core.WithAuditStore(store),
		core.WithLogger(compatLogger{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
