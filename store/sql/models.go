package sqlstore

import (
	"time"

	"github.com/goliatone/go-dcb/core"
	"github.com/uptrace/bun"
)

type transactionRecord struct {
	bun.BaseModel `bun:"table:dcb_transactions,alias:dtx"`

	ID                     string    `bun:"id,pk"`
	Role                   string    `bun:"role,notnull"`
	Status                 string    `bun:"status,notnull"`
	PatronID               string    `bun:"patron_id,notnull"`
	PatronBarcode          string    `bun:"patron_barcode,notnull"`
	PatronGroup            string    `bun:"patron_group,notnull"`
	PatronFirstName        string    `bun:"patron_first_name,notnull"`
	PatronLastName         string    `bun:"patron_last_name,notnull"`
	ItemID                 string    `bun:"item_id,notnull"`
	ItemBarcode            string    `bun:"item_barcode,notnull"`
	ItemTitle              string    `bun:"item_title,notnull"`
	ItemMaterialType       string    `bun:"item_material_type,notnull"`
	ItemLendingLibraryCode string    `bun:"item_lending_library_code,notnull"`
	ItemLocationCode       string    `bun:"item_location_code,notnull"`
	PickupServicePointID   string    `bun:"pickup_service_point_id,notnull"`
	PickupServicePointName string    `bun:"pickup_service_point_name,notnull"`
	PickupLibraryCode      string    `bun:"pickup_library_code,notnull"`
	RequestID              string    `bun:"request_id,notnull"`
	ServicePointID         string    `bun:"service_point_id,notnull"`
	SelfBorrowing          bool      `bun:"self_borrowing,notnull"`
	CreatedAt              time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEntryRecord struct {
	bun.BaseModel `bun:"table:dcb_audit_entries,alias:dae"`

	ID             string    `bun:"id,pk"`
	Seq            int64     `bun:"seq,scanonly"`
	TransactionID  string    `bun:"transaction_id,notnull"`
	Action         string    `bun:"action,notnull"`
	PreviousStatus string    `bun:"previous_status,notnull"`
	Status         string    `bun:"status,notnull"`
	Before         string    `bun:"before_state,notnull"`
	After          string    `bun:"after_state,notnull"`
	ErrorMessage   string    `bun:"error_message,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type expirationPeriodRecord struct {
	bun.BaseModel `bun:"table:dcb_service_point_expiration_periods,alias:dsp"`

	ID         string    `bun:"id,pk"`
	Duration   int       `bun:"duration,notnull"`
	IntervalID string    `bun:"interval_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newTransactionRecord(tx core.Transaction) *transactionRecord {
	return &transactionRecord{
		ID:                     tx.ID,
		Role:                   string(tx.Role),
		Status:                 string(tx.Status),
		PatronID:               tx.Patron.ID,
		PatronBarcode:          tx.Patron.Barcode,
		PatronGroup:            tx.Patron.Group,
		PatronFirstName:        tx.Patron.FirstName,
		PatronLastName:         tx.Patron.LastName,
		ItemID:                 tx.Item.ID,
		ItemBarcode:            tx.Item.Barcode,
		ItemTitle:              tx.Item.Title,
		ItemMaterialType:       tx.Item.MaterialType,
		ItemLendingLibraryCode: tx.Item.LendingLibraryCode,
		ItemLocationCode:       tx.Item.LocationCode,
		PickupServicePointID:   tx.Pickup.ServicePointID,
		PickupServicePointName: tx.Pickup.ServicePointName,
		PickupLibraryCode:      tx.Pickup.LibraryCode,
		RequestID:              tx.RequestID,
		ServicePointID:         tx.ServicePointID,
		SelfBorrowing:          tx.SelfBorrowing,
		CreatedAt:              tx.CreatedAt.UTC(),
		UpdatedAt:              tx.UpdatedAt.UTC(),
	}
}

func (r *transactionRecord) toDomain() core.Transaction {
	if r == nil {
		return core.Transaction{}
	}
	return core.Transaction{
		ID:     r.ID,
		Role:   core.Role(r.Role),
		Status: core.Status(r.Status),
		Patron: core.PatronRef{
			ID:        r.PatronID,
			Barcode:   r.PatronBarcode,
			Group:     r.PatronGroup,
			FirstName: r.PatronFirstName,
			LastName:  r.PatronLastName,
		},
		Item: core.ItemRef{
			ID:                 r.ItemID,
			Barcode:            r.ItemBarcode,
			Title:              r.ItemTitle,
			MaterialType:       r.ItemMaterialType,
			LendingLibraryCode: r.ItemLendingLibraryCode,
			LocationCode:       r.ItemLocationCode,
		},
		Pickup: core.PickupRef{
			ServicePointID:   r.PickupServicePointID,
			ServicePointName: r.PickupServicePointName,
			LibraryCode:      r.PickupLibraryCode,
		},
		RequestID:      r.RequestID,
		ServicePointID: r.ServicePointID,
		SelfBorrowing:  r.SelfBorrowing,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newAuditEntryRecord(entry core.AuditEntry) *auditEntryRecord {
	return &auditEntryRecord{
		ID:             entry.ID,
		TransactionID:  entry.TransactionID,
		Action:         string(entry.Action),
		PreviousStatus: string(entry.PreviousStatus),
		Status:         string(entry.Status),
		Before:         entry.Before,
		After:          entry.After,
		ErrorMessage:   entry.ErrorMessage,
		CreatedAt:      entry.CreatedAt.UTC(),
	}
}

func (r *auditEntryRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:             r.ID,
		TransactionID:  r.TransactionID,
		Action:         core.AuditAction(r.Action),
		PreviousStatus: core.Status(r.PreviousStatus),
		Status:         core.Status(r.Status),
		Before:         r.Before,
		After:          r.After,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func (r *expirationPeriodRecord) toDomain() core.HoldShelfExpiryPeriod {
	if r == nil {
		return core.HoldShelfExpiryPeriod{}
	}
	return core.HoldShelfExpiryPeriod{
		Duration:   r.Duration,
		IntervalID: r.IntervalID,
	}
}
