package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// stepClock advances one second per reading so audit timestamps are
// strictly ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("audit-%03d", s.next)
}

// fakeGateway is an in-memory circulation platform that records every
// mutating call in order.
type fakeGateway struct {
	mu       sync.Mutex
	items    map[string]InventoryItem
	users    map[string]User
	requests map[string]CirculationRequest
	loans    map[string]Loan
	records  map[RecordKind][]Record
	calls    []string
	nextID   int

	findItemMisses   int
	createRequestErr error
	checkInErr       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		items:    map[string]InventoryItem{},
		users:    map[string]User{},
		requests: map[string]CirculationRequest{},
		loans:    map[string]Loan{},
		records:  map[RecordKind][]Record{},
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) addRecord(kind RecordKind, record Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[kind] = append(g.records[kind], record)
}

func (g *fakeGateway) FindItem(_ context.Context, id string) (InventoryItem, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[id]
	if ok && g.findItemMisses > 0 {
		g.findItemMisses--
		return InventoryItem{}, false, nil
	}
	return item, ok, nil
}

func (g *fakeGateway) CreateItem(_ context.Context, item InventoryItem) (InventoryItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_item:" + item.ID)
	g.items[item.ID] = item
	return item, nil
}

func (g *fakeGateway) UpdateItem(_ context.Context, item InventoryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[item.ID]; !ok {
		return &UpstreamError{Operation: "update_item", StatusCode: 404}
	}
	g.record("update_item:" + item.Barcode)
	g.items[item.ID] = item
	return nil
}

func (g *fakeGateway) FindUser(_ context.Context, id string) (User, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	user, ok := g.users[id]
	return user, ok, nil
}

func (g *fakeGateway) CreateUser(_ context.Context, user User) (User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_user:" + user.ID)
	g.users[user.ID] = user
	return user, nil
}

func (g *fakeGateway) CreateRequest(_ context.Context, req CirculationRequest) (CirculationRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createRequestErr != nil {
		return CirculationRequest{}, g.createRequestErr
	}
	g.nextID++
	req.ID = fmt.Sprintf("request-%d", g.nextID)
	req.Status = RequestStatusOpenNotYetFilled
	g.record("create_request:" + string(req.RequestType) + "@" + req.PickupServicePointID)
	g.requests[req.ID] = req
	return req, nil
}

func (g *fakeGateway) FindRequest(_ context.Context, id string) (CirculationRequest, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.requests[id]
	return req, ok, nil
}

func (g *fakeGateway) UpdateRequest(_ context.Context, req CirculationRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update_request:" + req.Status)
	g.requests[req.ID] = req
	return nil
}

func (g *fakeGateway) CheckIn(_ context.Context, req CheckInRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkInErr != nil {
		return g.checkInErr
	}
	g.record("check_in:" + req.ItemBarcode + "@" + req.ServicePointID)
	return nil
}

func (g *fakeGateway) CheckOut(_ context.Context, req CheckOutRequest) (Loan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("check_out:" + req.ItemBarcode + "@" + req.ServicePointID)
	var itemID string
	for id, item := range g.items {
		if item.Barcode == req.ItemBarcode {
			itemID = id
		}
	}
	loan := Loan{ID: "loan-" + itemID, ItemID: itemID, Status: "Open", RenewalLimit: 2}
	g.loans[itemID] = loan
	return loan, nil
}

func (g *fakeGateway) FindOpenLoan(_ context.Context, itemID string) (Loan, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loan, ok := g.loans[itemID]
	return loan, ok, nil
}

func (g *fakeGateway) RenewLoan(_ context.Context, itemID string, userID string) (Loan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loan, ok := g.loans[itemID]
	if !ok {
		return Loan{}, &UpstreamError{Operation: "renew", StatusCode: 422, Message: "no open loan"}
	}
	g.record("renew:" + itemID + ":" + userID)
	loan.RenewalCount++
	g.loans[itemID] = loan
	return loan, nil
}

func (g *fakeGateway) SetRenewalBlock(_ context.Context, loanID string, blocked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(fmt.Sprintf("renewal_block:%s:%t", loanID, blocked))
	for itemID, loan := range g.loans {
		if loan.ID == loanID {
			loan.RenewalsBlocked = blocked
			g.loans[itemID] = loan
		}
	}
	return nil
}

func (g *fakeGateway) FindRecord(ctx context.Context, kind RecordKind, field string, value string) (Record, bool, error) {
	records, _, err := g.ListRecords(ctx, kind, field, value, 0, 1)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

func (g *fakeGateway) ListRecords(_ context.Context, kind RecordKind, field string, value string, offset int, limit int) ([]Record, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	matched := []Record{}
	for _, record := range g.records[kind] {
		if recordMatches(record, field, value) {
			matched = append(matched, record)
		}
	}
	total := len(matched)
	if offset >= total {
		return []Record{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]Record(nil), matched[offset:end]...), total, nil
}

func (g *fakeGateway) CreateRecord(_ context.Context, kind RecordKind, record Record) (Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_record:" + string(kind))
	g.records[kind] = append(g.records[kind], record)
	return record, nil
}

func recordMatches(record Record, field string, value string) bool {
	switch field {
	case "":
		return true
	case "id":
		return record.ID == value
	case recordFieldCode:
		return record.Code == value
	case recordFieldName:
		return strings.EqualFold(record.Name, value)
	default:
		return record.Field(field) == value
	}
}

type staticResources struct {
	records map[RecordKind]Record
}

func (s staticResources) Resolve(_ context.Context, kind RecordKind) (Record, error) {
	record, ok := s.records[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: shared %s", ErrNotFound, kind)
	}
	return record, nil
}

func defaultTestResources() staticResources {
	return staticResources{records: map[RecordKind]Record{
		RecordServicePoint:       {ID: "sp-dcb", Name: "DCB", Code: "000"},
		RecordLocation:           {ID: "loc-dcb", Name: "DCB", Code: "000"},
		RecordInstance:           {ID: "inst-dcb", Name: "DCB_INSTANCE"},
		RecordHolding:            {ID: "hold-dcb"},
		RecordLoanType:           {ID: "lt-dcb", Name: "DCB Can circulate"},
		RecordCancellationReason: {ID: "cr-dcb", Name: "DCB Cancelled"},
	}}
}

type testEnv struct {
	svc     *Service
	gateway *fakeGateway
	store   *MemoryStore
	clock   *stepClock
}

func newTestEnv(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	gateway := newFakeGateway()
	gateway.addRecord(RecordPatronGroup, Record{ID: "pg-staff", Name: "staff", Fields: map[string]any{recordFieldGroup: "staff"}})
	gateway.addRecord(RecordMaterialType, Record{ID: "mt-book", Name: "book"})
	gateway.addRecord(RecordMaterialType, Record{ID: "mt-dvd", Name: "dvd"})

	store := NewMemoryStore()
	clock := newStepClock()
	ids := &sequenceIDs{}
	base := []Option{
		WithGateway(gateway),
		WithTransactionStore(store),
		WithAuditStore(store),
		WithSharedResources(defaultTestResources()),
		WithClock(clock.Now),
		WithIDGenerator(ids.Next),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testEnv{svc: svc, gateway: gateway, store: store, clock: clock}
}

func borrowerRequest() CreateTransactionRequest {
	return CreateTransactionRequest{
		Role:   RoleBorrower,
		Patron: PatronRef{ID: "patron-1", Barcode: "P-100", Group: "staff"},
		Item: ItemRef{
			ID:                 "item-1",
			Barcode:            "I-100",
			Title:              "Dune",
			MaterialType:       "dvd",
			LendingLibraryCode: "REMOTE",
		},
		Pickup: PickupRef{ServicePointID: "sp-pickup", ServicePointName: "Main desk"},
	}
}

func lenderRequest() CreateTransactionRequest {
	return CreateTransactionRequest{
		Role:   RoleLender,
		Patron: PatronRef{ID: "patron-9", Barcode: "P-900", Group: "staff"},
		Item:   ItemRef{ID: "item-9", Barcode: "I-900"},
	}
}

func auditActions(entries []AuditEntry) []AuditAction {
	out := make([]AuditAction, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Action)
	}
	return out
}

func equalStrings(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}
