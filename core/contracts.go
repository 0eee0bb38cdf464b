package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

const (
	ItemStatusAvailable      = "Available"
	ItemStatusInTransit      = "In transit"
	ItemStatusAwaitingPickup = "Awaiting pickup"
	ItemStatusCheckedOut     = "Checked out"
)

type InventoryItem struct {
	ID                  string
	Barcode             string
	Status              string
	HoldingsRecordID    string
	InstanceID          string
	EffectiveLocationID string
	MaterialTypeID      string
	PermanentLoanTypeID string
	Title               string
}

const UserTypeDCB = "dcb"

type User struct {
	ID            string
	Barcode       string
	PatronGroupID string
	Type          string
	FirstName     string
	LastName      string
	Active        bool
}

type RequestType string

const (
	RequestTypePage RequestType = "Page"
	RequestTypeHold RequestType = "Hold"
)

const (
	RequestStatusOpenNotYetFilled = "Open - Not yet filled"
	RequestStatusClosedCancelled  = "Closed - Cancelled"
)

type CirculationRequest struct {
	ID                    string
	RequestType           RequestType
	RequestLevel          string
	ItemID                string
	InstanceID            string
	HoldingsRecordID      string
	RequesterID           string
	PickupServicePointID  string
	FulfillmentPreference string
	Status                string
	CancellationReasonID  string
	CancelledDate         *time.Time
	RequestDate           time.Time
}

func (r CirculationRequest) IsOpen() bool {
	return len(r.Status) >= 4 && r.Status[:4] == "Open"
}

type CheckInRequest struct {
	ItemBarcode    string
	ServicePointID string
	CheckInDate    time.Time
}

type CheckOutRequest struct {
	ItemBarcode    string
	UserBarcode    string
	ServicePointID string
}

type Loan struct {
	ID                string
	ItemID            string
	UserID            string
	Status            string
	RenewalCount      int
	RenewalLimit      int
	UnlimitedRenewals bool
	RenewalsBlocked   bool
}

// RenewalInfo derives the remaining renewal allowance from the loan and its
// policy limit.
func (l Loan) RenewalInfo() RenewalInfo {
	info := RenewalInfo{
		RenewalCount:    l.RenewalCount,
		RenewalMaxCount: l.RenewalLimit,
		Unlimited:       l.UnlimitedRenewals,
		Blocked:         l.RenewalsBlocked,
	}
	info.Renewable = !l.RenewalsBlocked && (l.UnlimitedRenewals || l.RenewalCount < l.RenewalLimit)
	return info
}

// RecordKind identifies a reference record collection on the host platform.
type RecordKind string

const (
	RecordInstitution        RecordKind = "institution"
	RecordCampus             RecordKind = "campus"
	RecordLibrary            RecordKind = "library"
	RecordLocation           RecordKind = "location"
	RecordInstanceType       RecordKind = "instance_type"
	RecordInstance           RecordKind = "instance"
	RecordHoldingsSource     RecordKind = "holdings_source"
	RecordHolding            RecordKind = "holding"
	RecordLoanType           RecordKind = "loan_type"
	RecordMaterialType       RecordKind = "material_type"
	RecordPatronGroup        RecordKind = "patron_group"
	RecordServicePoint       RecordKind = "service_point"
	RecordCalendar           RecordKind = "calendar"
	RecordCancellationReason RecordKind = "cancellation_reason"
)

// Record is a generic reference record. Fields carries the kind specific
// attributes beyond id, name and code.
type Record struct {
	ID     string
	Name   string
	Code   string
	Fields map[string]any
}

func (r Record) Field(key string) string {
	if len(r.Fields) == 0 {
		return ""
	}
	value, ok := r.Fields[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return text
}

func (r Record) Clone() Record {
	out := r
	out.Fields = cloneFields(r.Fields)
	return out
}

type CirculationGateway interface {
	FindItem(ctx context.Context, id string) (InventoryItem, bool, error)
	CreateItem(ctx context.Context, item InventoryItem) (InventoryItem, error)
	UpdateItem(ctx context.Context, item InventoryItem) error

	FindUser(ctx context.Context, id string) (User, bool, error)
	CreateUser(ctx context.Context, user User) (User, error)

	CreateRequest(ctx context.Context, req CirculationRequest) (CirculationRequest, error)
	FindRequest(ctx context.Context, id string) (CirculationRequest, bool, error)
	UpdateRequest(ctx context.Context, req CirculationRequest) error

	CheckIn(ctx context.Context, req CheckInRequest) error
	CheckOut(ctx context.Context, req CheckOutRequest) (Loan, error)

	FindOpenLoan(ctx context.Context, itemID string) (Loan, bool, error)
	RenewLoan(ctx context.Context, itemID string, userID string) (Loan, error)
	SetRenewalBlock(ctx context.Context, loanID string, blocked bool) error

	FindRecord(ctx context.Context, kind RecordKind, field string, value string) (Record, bool, error)
	ListRecords(ctx context.Context, kind RecordKind, field string, value string, offset int, limit int) ([]Record, int, error)
	CreateRecord(ctx context.Context, kind RecordKind, record Record) (Record, error)
}

type TransactionStore interface {
	// Create inserts the transaction and its CREATE entry atomically.
	Create(ctx context.Context, tx Transaction, entry AuditEntry) (Transaction, error)
	Get(ctx context.Context, id string) (Transaction, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Update persists next only while the stored status equals expected.
	Update(ctx context.Context, next Transaction, expected Status, entry AuditEntry) (Transaction, error)
	FindByRequestID(ctx context.Context, requestID string) (Transaction, error)
	ListByItem(ctx context.Context, itemID string, status Status) ([]Transaction, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry AuditEntry) error
	ListByTransaction(ctx context.Context, transactionID string) ([]AuditEntry, error)
	ListUpdates(ctx context.Context, filter AuditHistoryFilter) (AuditPage, error)
}

type HoldShelfExpiryPeriod struct {
	Duration   int
	IntervalID string
}

type HoldShelfExpiryStore interface {
	Get(ctx context.Context) (HoldShelfExpiryPeriod, bool, error)
	Put(ctx context.Context, period HoldShelfExpiryPeriod) error
}

type StoreProvider interface {
	TransactionStore() TransactionStore
	AuditStore() AuditStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SharedResourceProvider resolves the virtual library records hosting
// placeholder items.
type SharedResourceProvider interface {
	Resolve(ctx context.Context, kind RecordKind) (Record, error)
}

type SharedResourceBootstrapper interface {
	Bootstrap(ctx context.Context) (BootstrapReport, error)
}

type ResourceOutcome string

const (
	ResourceOutcomeFound   ResourceOutcome = "FOUND"
	ResourceOutcomeCreated ResourceOutcome = "CREATED"
	ResourceOutcomeDefault ResourceOutcome = "DEFAULT"
	ResourceOutcomeError   ResourceOutcome = "ERROR"
	ResourceOutcomeSkipped ResourceOutcome = "SKIPPED"
)

type ResourceReport struct {
	Kind    RecordKind      `json:"kind"`
	Outcome ResourceOutcome `json:"outcome"`
	ID      string          `json:"id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type BootstrapReport struct {
	Resources []ResourceReport `json:"resources"`
}

func (r BootstrapReport) Outcome(kind RecordKind) (ResourceReport, bool) {
	for _, item := range r.Resources {
		if item.Kind == kind {
			return item, true
		}
	}
	return ResourceReport{}, false
}

func (r BootstrapReport) Failed() bool {
	for _, item := range r.Resources {
		if item.Outcome == ResourceOutcomeError || item.Outcome == ResourceOutcomeSkipped {
			return true
		}
	}
	return false
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
