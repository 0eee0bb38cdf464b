package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTransactionNotFound    = errors.New("core: transaction not found")
	ErrDuplicateTransaction   = errors.New("core: duplicate transaction")
	ErrInvalidTransition      = errors.New("core: invalid status transition")
	ErrInvalidState           = errors.New("core: operation not allowed in current state")
	ErrInvalidRole            = errors.New("core: invalid transaction role")
	ErrConcurrentModification = errors.New("core: transaction modified concurrently")
	ErrNotFound               = errors.New("core: referenced record not found")
	ErrBootstrapIncomplete    = errors.New("core: shared resource bootstrap incomplete")
)

// UnknownTransactionID is the audit key used when the attempted transaction
// was never created.
const UnknownTransactionID = "unknown"

type Role string

const (
	RoleLender          Role = "LENDER"
	RoleBorrower        Role = "BORROWER"
	RolePickup          Role = "PICKUP"
	RoleBorrowingPickup Role = "BORROWING_PICKUP"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLender, RoleBorrower, RolePickup, RoleBorrowingPickup:
		return true
	default:
		return false
	}
}

// ParseRole accepts role names case-insensitively, with dashes or
// underscores.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	role := Role(normalized)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
	return role, nil
}

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusOpen           Status = "OPEN"
	StatusAwaitingPickup Status = "AWAITING_PICKUP"
	StatusItemCheckedOut Status = "ITEM_CHECKED_OUT"
	StatusItemCheckedIn  Status = "ITEM_CHECKED_IN"
	StatusClosed         Status = "CLOSED"
	StatusCancelled      Status = "CANCELLED"
	StatusExpired        Status = "EXPIRED"
	StatusError          Status = "ERROR"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusOpen, StatusAwaitingPickup, StatusItemCheckedOut,
		StatusItemCheckedIn, StatusClosed, StatusCancelled, StatusExpired, StatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether ordinary status-change requests are rejected.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, value)
	}
	return status, nil
}

type PatronRef struct {
	ID        string `json:"id"`
	Barcode   string `json:"barcode"`
	Group     string `json:"group,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type ItemRef struct {
	ID                 string `json:"id"`
	Barcode            string `json:"barcode"`
	Title              string `json:"title,omitempty"`
	MaterialType       string `json:"materialType,omitempty"`
	LendingLibraryCode string `json:"lendingLibraryCode,omitempty"`
	LocationCode       string `json:"locationCode,omitempty"`
}

type PickupRef struct {
	ServicePointID   string `json:"servicePointId,omitempty"`
	ServicePointName string `json:"servicePointName,omitempty"`
	LibraryCode      string `json:"libraryCode,omitempty"`
}

type Transaction struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	Patron         PatronRef `json:"patron"`
	Item           ItemRef   `json:"item"`
	Pickup         PickupRef `json:"pickup"`
	RequestID      string    `json:"requestId,omitempty"`
	ServicePointID string    `json:"servicePointId,omitempty"`
	SelfBorrowing  bool      `json:"selfBorrowing"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// WithStatus returns a copy moved to status at now.
func (t Transaction) WithStatus(status Status, now time.Time) Transaction {
	next := t
	next.Status = status
	next.UpdatedAt = now
	return next
}

// UsesPlaceholderItem reports whether the item on this transaction is a
// virtual record owned by the engine.
func (t Transaction) UsesPlaceholderItem() bool {
	return t.Role != RoleLender && !t.SelfBorrowing
}

type CreateTransactionRequest struct {
	Role          Role      `json:"role"`
	Patron        PatronRef `json:"patron"`
	Item          ItemRef   `json:"item"`
	Pickup        PickupRef `json:"pickup"`
	SelfBorrowing bool      `json:"selfBorrowing"`
}

func (r CreateTransactionRequest) Validate() error {
	role, err := ParseRole(string(r.Role))
	if err != nil {
		return err
	}
	if strings.TrimSpace(r.Item.ID) == "" {
		return fmt.Errorf("core: item id is required")
	}
	if strings.TrimSpace(r.Item.Barcode) == "" {
		return fmt.Errorf("core: item barcode is required")
	}
	if strings.TrimSpace(r.Patron.ID) == "" {
		return fmt.Errorf("core: patron id is required")
	}
	if strings.TrimSpace(r.Patron.Barcode) == "" {
		return fmt.Errorf("core: patron barcode is required")
	}
	if role != RoleLender && strings.TrimSpace(r.Pickup.ServicePointID) == "" {
		return fmt.Errorf("core: pickup service point id is required for role %s", role)
	}
	return nil
}

type TransactionSummary struct {
	Status Status    `json:"status"`
	Item   ItemRef   `json:"item"`
	Patron PatronRef `json:"patron"`
}

type StatusResponse struct {
	Status Status `json:"status"`
}

type RenewalInfo struct {
	RenewalCount    int  `json:"renewalCount"`
	RenewalMaxCount int  `json:"renewalMaxCount"`
	Unlimited       bool `json:"unlimited"`
	Blocked         bool `json:"blocked"`
	Renewable       bool `json:"renewable"`
}

type TransactionStatus struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	Role          Role         `json:"role"`
	Item          ItemRef      `json:"item"`
	Renewal       *RenewalInfo `json:"renewal,omitempty"`
	SelfBorrowing bool         `json:"selfBorrowing"`
}

type AuditAction string

const (
	AuditActionCreate         AuditAction = "CREATE"
	AuditActionUpdate         AuditAction = "UPDATE"
	AuditActionError          AuditAction = "ERROR"
	AuditActionDuplicateError AuditAction = "DUPLICATE_ERROR"
)

// AuditEntry is one immutable row of the audit trail. PreviousStatus and
// Status are only set on UPDATE entries.
type AuditEntry struct {
	ID             string
	TransactionID  string
	Action         AuditAction
	PreviousStatus Status
	Status         Status
	Before         string
	After          string
	ErrorMessage   string
	CreatedAt      time.Time
}

// StatusChanged reports whether an UPDATE entry moved the transaction to a
// different status.
func (e AuditEntry) StatusChanged() bool {
	return e.Action == AuditActionUpdate && e.PreviousStatus != e.Status
}

type AuditHistoryFilter struct {
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

type AuditPage struct {
	Entries []AuditEntry
	Total   int
}

type HistoryQuery struct {
	From       time.Time
	To         time.Time
	PageNumber int
	PageSize   int
}

type StatusHistoryItem struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transactionId"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	PreviousStatus Status    `json:"previousStatus,omitempty"`
	ChangedAt      time.Time `json:"changedAt"`
}

type StatusHistoryPage struct {
	Items             []StatusHistoryItem `json:"transactions"`
	TotalRecords      int                 `json:"totalRecords"`
	PageNumber        int                 `json:"currentPageNumber"`
	PageSize          int                 `json:"currentPageSize"`
	MaximumPageNumber int                 `json:"maximumPageNumber"`
}
