package gateway

import (
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
)

type idRef struct {
	ID string `json:"id,omitempty"`
}

type nameRef struct {
	Name string `json:"name,omitempty"`
}

type itemDTO struct {
	ID                string   `json:"id,omitempty"`
	Barcode           string   `json:"barcode,omitempty"`
	Status            *nameRef `json:"status,omitempty"`
	HoldingsRecordID  string   `json:"holdingsRecordId,omitempty"`
	InstanceID        string   `json:"instanceId,omitempty"`
	EffectiveLocation *idRef   `json:"effectiveLocation,omitempty"`
	PermanentLocation *idRef   `json:"permanentLocation,omitempty"`
	MaterialType      *idRef   `json:"materialType,omitempty"`
	PermanentLoanType *idRef   `json:"permanentLoanType,omitempty"`
	Title             string   `json:"title,omitempty"`
}

func newItemDTO(item core.InventoryItem) itemDTO {
	dto := itemDTO{
		ID:               item.ID,
		Barcode:          item.Barcode,
		HoldingsRecordID: item.HoldingsRecordID,
		InstanceID:       item.InstanceID,
		Title:            item.Title,
	}
	if item.Status != "" {
		dto.Status = &nameRef{Name: item.Status}
	}
	if item.EffectiveLocationID != "" {
		dto.PermanentLocation = &idRef{ID: item.EffectiveLocationID}
	}
	if item.MaterialTypeID != "" {
		dto.MaterialType = &idRef{ID: item.MaterialTypeID}
	}
	if item.PermanentLoanTypeID != "" {
		dto.PermanentLoanType = &idRef{ID: item.PermanentLoanTypeID}
	}
	return dto
}

func (d itemDTO) toDomain() core.InventoryItem {
	item := core.InventoryItem{
		ID:               d.ID,
		Barcode:          d.Barcode,
		HoldingsRecordID: d.HoldingsRecordID,
		InstanceID:       d.InstanceID,
		Title:            d.Title,
	}
	if d.Status != nil {
		item.Status = d.Status.Name
	}
	switch {
	case d.EffectiveLocation != nil:
		item.EffectiveLocationID = d.EffectiveLocation.ID
	case d.PermanentLocation != nil:
		item.EffectiveLocationID = d.PermanentLocation.ID
	}
	if d.MaterialType != nil {
		item.MaterialTypeID = d.MaterialType.ID
	}
	if d.PermanentLoanType != nil {
		item.PermanentLoanTypeID = d.PermanentLoanType.ID
	}
	return item
}

type personalDTO struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type userDTO struct {
	ID          string       `json:"id,omitempty"`
	Barcode     string       `json:"barcode,omitempty"`
	PatronGroup string       `json:"patronGroup,omitempty"`
	Type        string       `json:"type,omitempty"`
	Active      bool         `json:"active"`
	Personal    *personalDTO `json:"personal,omitempty"`
}

func newUserDTO(user core.User) userDTO {
	dto := userDTO{
		ID:          user.ID,
		Barcode:     user.Barcode,
		PatronGroup: user.PatronGroupID,
		Type:        user.Type,
		Active:      user.Active,
	}
	if user.FirstName != "" || user.LastName != "" {
		dto.Personal = &personalDTO{FirstName: user.FirstName, LastName: user.LastName}
	}
	return dto
}

func (d userDTO) toDomain() core.User {
	user := core.User{
		ID:            d.ID,
		Barcode:       d.Barcode,
		PatronGroupID: d.PatronGroup,
		Type:          d.Type,
		Active:        d.Active,
	}
	if d.Personal != nil {
		user.FirstName = d.Personal.FirstName
		user.LastName = d.Personal.LastName
	}
	return user
}

type requestDTO struct {
	ID                    string     `json:"id,omitempty"`
	RequestType           string     `json:"requestType,omitempty"`
	RequestLevel          string     `json:"requestLevel,omitempty"`
	ItemID                string     `json:"itemId,omitempty"`
	InstanceID            string     `json:"instanceId,omitempty"`
	HoldingsRecordID      string     `json:"holdingsRecordId,omitempty"`
	RequesterID           string     `json:"requesterId,omitempty"`
	PickupServicePointID  string     `json:"pickupServicePointId,omitempty"`
	FulfillmentPreference string     `json:"fulfillmentPreference,omitempty"`
	Status                string     `json:"status,omitempty"`
	CancellationReasonID  string     `json:"cancellationReasonId,omitempty"`
	CancelledDate         *time.Time `json:"cancelledDate,omitempty"`
	RequestDate           *time.Time `json:"requestDate,omitempty"`
}

func newRequestDTO(req core.CirculationRequest) requestDTO {
	dto := requestDTO{
		ID:                    req.ID,
		RequestType:           string(req.RequestType),
		RequestLevel:          req.RequestLevel,
		ItemID:                req.ItemID,
		InstanceID:            req.InstanceID,
		HoldingsRecordID:      req.HoldingsRecordID,
		RequesterID:           req.RequesterID,
		PickupServicePointID:  req.PickupServicePointID,
		FulfillmentPreference: req.FulfillmentPreference,
		Status:                req.Status,
		CancellationReasonID:  req.CancellationReasonID,
		CancelledDate:         req.CancelledDate,
	}
	if !req.RequestDate.IsZero() {
		requestDate := req.RequestDate.UTC()
		dto.RequestDate = &requestDate
	}
	return dto
}

func (d requestDTO) toDomain() core.CirculationRequest {
	req := core.CirculationRequest{
		ID:                    d.ID,
		RequestType:           core.RequestType(d.RequestType),
		RequestLevel:          d.RequestLevel,
		ItemID:                d.ItemID,
		InstanceID:            d.InstanceID,
		HoldingsRecordID:      d.HoldingsRecordID,
		RequesterID:           d.RequesterID,
		PickupServicePointID:  d.PickupServicePointID,
		FulfillmentPreference: d.FulfillmentPreference,
		Status:                d.Status,
		CancellationReasonID:  d.CancellationReasonID,
		CancelledDate:         d.CancelledDate,
	}
	if d.RequestDate != nil {
		req.RequestDate = d.RequestDate.UTC()
	}
	return req
}

type checkInDTO struct {
	ItemBarcode    string    `json:"itemBarcode"`
	ServicePointID string    `json:"servicePointId"`
	CheckInDate    time.Time `json:"checkInDate"`
}

type checkOutDTO struct {
	ItemBarcode    string `json:"itemBarcode"`
	UserBarcode    string `json:"userBarcode"`
	ServicePointID string `json:"servicePointId"`
}

type renewDTO struct {
	ItemID string `json:"itemId"`
	UserID string `json:"userId"`
}

type loanDTO struct {
	ID              string   `json:"id"`
	ItemID          string   `json:"itemId"`
	UserID          string   `json:"userId"`
	Status          *nameRef `json:"status,omitempty"`
	Action          string   `json:"action,omitempty"`
	RenewalCount    int      `json:"renewalCount"`
	LoanPolicyID    string   `json:"loanPolicyId,omitempty"`
	RenewalsBlocked bool     `json:"renewalsBlocked,omitempty"`
}

func (d loanDTO) toDomain() core.Loan {
	loan := core.Loan{
		ID:              d.ID,
		ItemID:          d.ItemID,
		UserID:          d.UserID,
		RenewalCount:    d.RenewalCount,
		RenewalsBlocked: d.RenewalsBlocked,
	}
	if d.Status != nil {
		loan.Status = d.Status.Name
	}
	return loan
}

type loanPolicyDTO struct {
	ID             string `json:"id"`
	Renewable      bool   `json:"renewable"`
	RenewalsPolicy *struct {
		Unlimited     bool `json:"unlimited"`
		NumberAllowed int  `json:"numberAllowed"`
	} `json:"renewalsPolicy,omitempty"`
}

// applyTo copies the renewal limits onto loan. A non-renewable policy
// allows zero renewals.
func (d loanPolicyDTO) applyTo(loan core.Loan) core.Loan {
	if !d.Renewable || d.RenewalsPolicy == nil {
		loan.RenewalLimit = 0
		loan.UnlimitedRenewals = false
		return loan
	}
	loan.UnlimitedRenewals = d.RenewalsPolicy.Unlimited
	loan.RenewalLimit = d.RenewalsPolicy.NumberAllowed
	return loan
}

type loanCollectionDTO struct {
	Loans        []loanDTO `json:"loans"`
	TotalRecords int       `json:"totalRecords"`
}

type platformErrorDTO struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

func (d platformErrorDTO) text() string {
	messages := make([]string, 0, len(d.Errors)+1)
	if strings.TrimSpace(d.Message) != "" {
		messages = append(messages, strings.TrimSpace(d.Message))
	}
	for _, entry := range d.Errors {
		if strings.TrimSpace(entry.Message) != "" {
			messages = append(messages, strings.TrimSpace(entry.Message))
		}
	}
	return strings.Join(messages, "; ")
}
