package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	requestLevelItem         = "Item"
	fulfillmentHoldShelf     = "Hold Shelf"
	fallbackMaterialTypeName = "book"
	recordFieldCode          = "code"
	recordFieldName          = "name"
	recordFieldGroup         = "group"
	recordFieldLibraryID     = "libraryId"
)

// RoleOrchestrator runs the circulation side effects of one role. Create
// returns the transaction to persist; ApplyStatus performs exactly one hop.
type RoleOrchestrator interface {
	Role() Role
	Create(ctx context.Context, id string, req CreateTransactionRequest) (Transaction, error)
	ApplyStatus(ctx context.Context, tx Transaction, target Status) error
}

// circulationSteps holds the gateway calls shared by every role.
type circulationSteps struct {
	gateway   CirculationGateway
	resources SharedResourceProvider
	retry     ReadRetryPolicy
	sleep     Sleeper
	clock     func() time.Time
}

func (c circulationSteps) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock().UTC()
}

func (c circulationSteps) ready() error {
	if c.gateway == nil {
		return fmt.Errorf("core: circulation gateway is required")
	}
	return nil
}

func (c circulationSteps) shared(ctx context.Context, kind RecordKind) (Record, error) {
	if c.resources == nil {
		return Record{}, fmt.Errorf("core: shared resource provider is required for %s", kind)
	}
	record, err := c.resources.Resolve(ctx, kind)
	if err != nil {
		return Record{}, fmt.Errorf("core: resolve shared %s: %w", kind, err)
	}
	return record, nil
}

// resolvePatron finds the patron user or registers a DCB-typed user in the
// patron group named on the request.
func (c circulationSteps) resolvePatron(ctx context.Context, patron PatronRef) (User, error) {
	user, found, err := c.gateway.FindUser(ctx, patron.ID)
	if err != nil {
		return User{}, err
	}
	if found {
		return user, nil
	}
	groupName := strings.TrimSpace(patron.Group)
	if groupName == "" {
		return User{}, fmt.Errorf("core: patron group is required to register patron %s", patron.ID)
	}
	group, found, err := c.gateway.FindRecord(ctx, RecordPatronGroup, recordFieldGroup, groupName)
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, fmt.Errorf("%w: patron group %q", ErrNotFound, groupName)
	}
	return c.gateway.CreateUser(ctx, User{
		ID:            patron.ID,
		Barcode:       patron.Barcode,
		PatronGroupID: group.ID,
		Type:          UserTypeDCB,
		FirstName:     patron.FirstName,
		LastName:      patron.LastName,
		Active:        true,
	})
}

func (c circulationSteps) findRealItem(ctx context.Context, ref ItemRef) (InventoryItem, error) {
	item, found, err := c.gateway.FindItem(ctx, ref.ID)
	if err != nil {
		return InventoryItem{}, err
	}
	if !found {
		return InventoryItem{}, fmt.Errorf("%w: item %s", ErrNotFound, ref.ID)
	}
	return item, nil
}

// resolvePlaceholderItem reuses the virtual item for ref or creates it on
// the shared DCB holding.
func (c circulationSteps) resolvePlaceholderItem(ctx context.Context, ref ItemRef) (InventoryItem, error) {
	existing, found, err := c.gateway.FindItem(ctx, ref.ID)
	if err != nil {
		return InventoryItem{}, err
	}
	if found {
		return existing, nil
	}

	holding, err := c.shared(ctx, RecordHolding)
	if err != nil {
		return InventoryItem{}, err
	}
	instance, err := c.shared(ctx, RecordInstance)
	if err != nil {
		return InventoryItem{}, err
	}
	loanType, err := c.shared(ctx, RecordLoanType)
	if err != nil {
		return InventoryItem{}, err
	}
	location, err := c.resolveShadowLocation(ctx, ref)
	if err != nil {
		return InventoryItem{}, err
	}
	materialType, err := c.resolveMaterialType(ctx, ref.MaterialType)
	if err != nil {
		return InventoryItem{}, err
	}

	return c.gateway.CreateItem(ctx, InventoryItem{
		ID:                  ref.ID,
		Barcode:             ref.Barcode,
		Status:              ItemStatusInTransit,
		HoldingsRecordID:    holding.ID,
		InstanceID:          instance.ID,
		EffectiveLocationID: location.ID,
		MaterialTypeID:      materialType.ID,
		PermanentLoanTypeID: loanType.ID,
		Title:               ref.Title,
	})
}

// resolveShadowLocation picks the location hosting a placeholder item: the
// exact location code, then a location coded like the lending library, then
// the first location of that library, then the DCB location.
func (c circulationSteps) resolveShadowLocation(ctx context.Context, ref ItemRef) (Record, error) {
	if code := strings.TrimSpace(ref.LocationCode); code != "" {
		location, found, err := c.gateway.FindRecord(ctx, RecordLocation, recordFieldCode, code)
		if err != nil {
			return Record{}, err
		}
		if found {
			return location, nil
		}
	}
	if libraryCode := strings.TrimSpace(ref.LendingLibraryCode); libraryCode != "" {
		location, found, err := c.gateway.FindRecord(ctx, RecordLocation, recordFieldCode, libraryCode)
		if err != nil {
			return Record{}, err
		}
		if found {
			return location, nil
		}
		library, found, err := c.gateway.FindRecord(ctx, RecordLibrary, recordFieldCode, libraryCode)
		if err != nil {
			return Record{}, err
		}
		if found {
			locations, _, err := c.gateway.ListRecords(ctx, RecordLocation, recordFieldLibraryID, library.ID, 0, 1)
			if err != nil {
				return Record{}, err
			}
			if len(locations) > 0 {
				return locations[0], nil
			}
		}
	}
	return c.shared(ctx, RecordLocation)
}

func (c circulationSteps) resolveMaterialType(ctx context.Context, name string) (Record, error) {
	candidates := []string{fallbackMaterialTypeName}
	if trimmed := strings.TrimSpace(name); trimmed != "" && !strings.EqualFold(trimmed, fallbackMaterialTypeName) {
		candidates = []string{trimmed, fallbackMaterialTypeName}
	}
	for _, candidate := range candidates {
		record, found, err := c.gateway.FindRecord(ctx, RecordMaterialType, recordFieldName, candidate)
		if err != nil {
			return Record{}, err
		}
		if found {
			return record, nil
		}
	}
	return Record{}, fmt.Errorf("%w: material type %q", ErrNotFound, name)
}

// requestTypeFor pages items that are on the shelf and holds the rest.
func requestTypeFor(item InventoryItem) RequestType {
	if item.Status == ItemStatusAvailable {
		return RequestTypePage
	}
	return RequestTypeHold
}

func (c circulationSteps) placeRequest(
	ctx context.Context,
	kind RequestType,
	item InventoryItem,
	requester User,
	pickupServicePointID string,
) (CirculationRequest, error) {
	return c.gateway.CreateRequest(ctx, CirculationRequest{
		RequestType:           kind,
		RequestLevel:          requestLevelItem,
		ItemID:                item.ID,
		InstanceID:            item.InstanceID,
		HoldingsRecordID:      item.HoldingsRecordID,
		RequesterID:           requester.ID,
		PickupServicePointID:  pickupServicePointID,
		FulfillmentPreference: fulfillmentHoldShelf,
		RequestDate:           c.now(),
	})
}

func (c circulationSteps) checkIn(ctx context.Context, tx Transaction, servicePointID string) error {
	return c.gateway.CheckIn(ctx, CheckInRequest{
		ItemBarcode:    tx.Item.Barcode,
		ServicePointID: servicePointID,
		CheckInDate:    c.now(),
	})
}

// checkInAndRefetch checks the item in and waits until the platform serves
// the updated item record.
func (c circulationSteps) checkInAndRefetch(ctx context.Context, tx Transaction, servicePointID string) error {
	if err := c.checkIn(ctx, tx, servicePointID); err != nil {
		return err
	}
	_, _, err := retryRead(ctx, c.retry, c.sleep, OpRefetchItemAfterCheckIn, func(ctx context.Context) (InventoryItem, bool, error) {
		return c.gateway.FindItem(ctx, tx.Item.ID)
	})
	return err
}

func (c circulationSteps) checkOutAndRefetch(ctx context.Context, tx Transaction, servicePointID string) error {
	if _, err := c.gateway.CheckOut(ctx, CheckOutRequest{
		ItemBarcode:    tx.Item.Barcode,
		UserBarcode:    tx.Patron.Barcode,
		ServicePointID: servicePointID,
	}); err != nil {
		return err
	}
	_, _, err := retryRead(ctx, c.retry, c.sleep, OpRefetchLoanAfterCheckOut, func(ctx context.Context) (Loan, bool, error) {
		return c.gateway.FindOpenLoan(ctx, tx.Item.ID)
	})
	return err
}

// cancelRequest closes the underlying request. Requests that are no longer
// open are left untouched.
func (c circulationSteps) cancelRequest(ctx context.Context, tx Transaction) error {
	requestID := strings.TrimSpace(tx.RequestID)
	if requestID == "" {
		return nil
	}
	request, found, err := c.gateway.FindRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if !request.IsOpen() {
		return nil
	}
	reason, err := c.shared(ctx, RecordCancellationReason)
	if err != nil {
		return err
	}
	cancelledAt := c.now()
	request.Status = RequestStatusClosedCancelled
	request.CancellationReasonID = reason.ID
	request.CancelledDate = &cancelledAt
	return c.gateway.UpdateRequest(ctx, request)
}

func (c circulationSteps) newTransaction(
	id string,
	role Role,
	req CreateTransactionRequest,
	item InventoryItem,
	request CirculationRequest,
	servicePointID string,
) Transaction {
	now := c.now()
	ref := req.Item
	if strings.TrimSpace(ref.Title) == "" {
		ref.Title = item.Title
	}
	return Transaction{
		ID:             id,
		Role:           role,
		Status:         StatusCreated,
		Patron:         req.Patron,
		Item:           ref,
		Pickup:         req.Pickup,
		RequestID:      request.ID,
		ServicePointID: servicePointID,
		SelfBorrowing:  req.SelfBorrowing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// createWithPlaceholder is the creation path shared by the borrowing side
// roles: patron, placeholder item, then a hold at the real pickup point.
func (c circulationSteps) createWithPlaceholder(ctx context.Context, role Role, id string, req CreateTransactionRequest) (Transaction, error) {
	if err := c.ready(); err != nil {
		return Transaction{}, err
	}
	patron, err := c.resolvePatron(ctx, req.Patron)
	if err != nil {
		return Transaction{}, err
	}
	item, err := c.resolvePlaceholderItem(ctx, req.Item)
	if err != nil {
		return Transaction{}, err
	}
	dcbServicePoint, err := c.shared(ctx, RecordServicePoint)
	if err != nil {
		return Transaction{}, err
	}
	request, err := c.placeRequest(ctx, RequestTypeHold, item, patron, req.Pickup.ServicePointID)
	if err != nil {
		return Transaction{}, err
	}
	return c.newTransaction(id, role, req, item, request, dcbServicePoint.ID), nil
}
