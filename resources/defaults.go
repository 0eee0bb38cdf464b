package resources

import "github.com/goliatone/go-dcb/core"

// Well-known identifiers of the virtual DCB library. They are stable across
// tenants so concurrent provisioning converges on the same records.
const (
	InstitutionID        = "9d1b77e4-f02e-4b7f-b296-3f2042ddac54"
	CampusID             = "9d1b77e5-f02e-4b7f-b296-3f2042ddac54"
	LibraryID            = "9d1b77e6-f02e-4b7f-b296-3f2042ddac54"
	LocationID           = "9d1b77e7-f02e-4b7f-b296-3f2042ddac54"
	ServicePointID       = "9d1b77e8-f02e-4b7f-b296-3f2042ddac54"
	CalendarID           = "9d1b77e9-f02e-4b7f-b296-3f2042ddac54"
	InstanceTypeID       = "9d18a02f-5897-4c31-9106-c9abb5c7ae8b"
	InstanceID           = "9d1b77e8-f02e-4b7f-b296-3f2042ddac55"
	HoldingsSourceID     = "9d1b77e8-f02e-4b7f-b296-3f2042ddac56"
	HoldingID            = "10cd3a5a-d36f-4c7a-bc4f-e1ae3cf820c9"
	LoanTypeID           = "4dec5417-0765-4767-bed6-b363a2d7d4e2"
	CancellationReasonID = "50ed35b2-1397-4e83-a76b-642adf91ca2a"
)

const (
	DCBName                = "DCB"
	DCBCode                = "000"
	InstanceTitle          = "DCB_INSTANCE"
	InstanceTypeName       = "dcb"
	InstanceSource         = "FOLIO"
	HoldingsSourceName     = "FOLIO"
	LoanTypeName           = "DCB Can circulate"
	CalendarName           = "DCB Calendar"
	CancellationReasonName = "DCB Cancelled"
)

// Field keys carried in core.Record.Fields.
const (
	FieldInstitutionID       = "institutionId"
	FieldCampusID            = "campusId"
	FieldLibraryID           = "libraryId"
	FieldPrimaryServicePoint = "primaryServicePoint"
	FieldServicePointIDs     = "servicePointIds"
	FieldInstanceTypeID      = "instanceTypeId"
	FieldInstanceID          = "instanceId"
	FieldPermanentLocationID = "permanentLocationId"
	FieldSourceID            = "sourceId"
	FieldSource              = "source"
	FieldDiscoveryName       = "discoveryDisplayName"
	FieldPickupLocation      = "pickupLocation"
	FieldHoldShelfExpiry     = "holdShelfExpiryPeriod"
	FieldServicePointID      = "servicePointId"
	FieldDescription         = "description"
	fieldID                  = "id"
)

// DefaultRecord returns the canonical record of kind without consulting the
// platform. ok is false for kinds the virtual library does not own.
func DefaultRecord(kind core.RecordKind) (core.Record, bool) {
	switch kind {
	case core.RecordInstitution:
		return core.Record{ID: InstitutionID, Name: DCBName, Code: DCBCode}, true
	case core.RecordCampus:
		return core.Record{ID: CampusID, Name: DCBName, Code: DCBCode, Fields: map[string]any{
			FieldInstitutionID: InstitutionID,
		}}, true
	case core.RecordLibrary:
		return core.Record{ID: LibraryID, Name: DCBName, Code: DCBCode, Fields: map[string]any{
			FieldCampusID: CampusID,
		}}, true
	case core.RecordLocation:
		return core.Record{ID: LocationID, Name: DCBName, Code: DCBCode, Fields: map[string]any{
			FieldInstitutionID:       InstitutionID,
			FieldCampusID:            CampusID,
			FieldLibraryID:           LibraryID,
			FieldPrimaryServicePoint: ServicePointID,
			FieldServicePointIDs:     []string{ServicePointID},
		}}, true
	case core.RecordServicePoint:
		return core.Record{ID: ServicePointID, Name: DCBName, Code: DCBCode, Fields: map[string]any{
			FieldDiscoveryName:  DCBName,
			FieldPickupLocation: true,
		}}, true
	case core.RecordCalendar:
		return core.Record{ID: CalendarID, Name: CalendarName, Fields: map[string]any{
			FieldServicePointID: ServicePointID,
		}}, true
	case core.RecordInstanceType:
		return core.Record{ID: InstanceTypeID, Name: InstanceTypeName, Code: InstanceTypeName, Fields: map[string]any{
			FieldSource: "local",
		}}, true
	case core.RecordInstance:
		return core.Record{ID: InstanceID, Name: InstanceTitle, Fields: map[string]any{
			FieldInstanceTypeID: InstanceTypeID,
			FieldSource:         InstanceSource,
		}}, true
	case core.RecordHoldingsSource:
		return core.Record{ID: HoldingsSourceID, Name: HoldingsSourceName}, true
	case core.RecordHolding:
		return core.Record{ID: HoldingID, Fields: map[string]any{
			FieldInstanceID:          InstanceID,
			FieldPermanentLocationID: LocationID,
			FieldSourceID:            HoldingsSourceID,
		}}, true
	case core.RecordLoanType:
		return core.Record{ID: LoanTypeID, Name: LoanTypeName}, true
	case core.RecordCancellationReason:
		return core.Record{ID: CancellationReasonID, Name: CancellationReasonName, Fields: map[string]any{
			FieldDescription: CancellationReasonName,
		}}, true
	default:
		return core.Record{}, false
	}
}
