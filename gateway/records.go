package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-dcb/core"
)

// recordEndpoint describes where a reference record kind lives and how its
// name is keyed in the platform JSON.
type recordEndpoint struct {
	path          string
	collectionKey string
	nameKey       string
}

var recordEndpoints = map[core.RecordKind]recordEndpoint{
	core.RecordInstitution:        {path: "/location-units/institutions", collectionKey: "locinsts", nameKey: "name"},
	core.RecordCampus:             {path: "/location-units/campuses", collectionKey: "loccamps", nameKey: "name"},
	core.RecordLibrary:            {path: "/location-units/libraries", collectionKey: "loclibs", nameKey: "name"},
	core.RecordLocation:           {path: "/locations", collectionKey: "locations", nameKey: "name"},
	core.RecordInstanceType:       {path: "/instance-types", collectionKey: "instanceTypes", nameKey: "name"},
	core.RecordInstance:           {path: "/instance-storage/instances", collectionKey: "instances", nameKey: "title"},
	core.RecordHoldingsSource:     {path: "/holdings-sources", collectionKey: "holdingsRecordsSources", nameKey: "name"},
	core.RecordHolding:            {path: "/holdings-storage/holdings", collectionKey: "holdingsRecords"},
	core.RecordLoanType:           {path: "/loan-types", collectionKey: "loantypes", nameKey: "name"},
	core.RecordMaterialType:       {path: "/material-types", collectionKey: "mtypes", nameKey: "name"},
	core.RecordPatronGroup:        {path: "/groups", collectionKey: "usergroups", nameKey: "group"},
	core.RecordServicePoint:       {path: "/service-points", collectionKey: "servicepoints", nameKey: "name"},
	core.RecordCalendar:           {path: "/calendar/calendars", collectionKey: "calendars", nameKey: "name"},
	core.RecordCancellationReason: {path: "/cancellation-reason-storage/cancellation-reasons", collectionKey: "cancellationReasons", nameKey: "name"},
}

func endpointFor(kind core.RecordKind) (recordEndpoint, error) {
	endpoint, ok := recordEndpoints[kind]
	if !ok {
		return recordEndpoint{}, fmt.Errorf("gateway: unsupported record kind %q", kind)
	}
	return endpoint, nil
}

// FindRecord looks a record up by id, or by an exact CQL match on field.
func (g *FolioGateway) FindRecord(ctx context.Context, kind core.RecordKind, field string, value string) (core.Record, bool, error) {
	endpoint, err := endpointFor(kind)
	if err != nil {
		return core.Record{}, false, err
	}
	field = strings.TrimSpace(field)
	if field == "" || field == "id" {
		raw := map[string]any{}
		found, err := g.findByID(ctx, "find_"+string(kind), endpoint.path, value, &raw)
		if err != nil || !found {
			return core.Record{}, found, err
		}
		return endpoint.toRecord(raw), true, nil
	}
	records, _, err := g.ListRecords(ctx, kind, field, value, 0, 1)
	if err != nil {
		return core.Record{}, false, err
	}
	if len(records) == 0 {
		return core.Record{}, false, nil
	}
	return records[0], true, nil
}

func (g *FolioGateway) ListRecords(ctx context.Context, kind core.RecordKind, field string, value string, offset int, limit int) ([]core.Record, int, error) {
	endpoint, err := endpointFor(kind)
	if err != nil {
		return nil, 0, err
	}
	query := paging(offset, limit)
	if strings.TrimSpace(field) != "" {
		query["query"] = cqlExact(field, value)
	}
	collection := map[string]any{}
	if _, err := g.call(ctx, "list_"+string(kind), http.MethodGet, endpoint.path, query, nil, &collection); err != nil {
		return nil, 0, err
	}
	items, _ := collection[endpoint.collectionKey].([]any)
	records := make([]core.Record, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, endpoint.toRecord(raw))
	}
	total := len(records)
	if count, ok := collection["totalRecords"].(float64); ok {
		total = int(count)
	}
	return records, total, nil
}

// CreateRecord posts the record and returns the stored representation. A
// platform that answers 201 without a body gets the submitted record back.
func (g *FolioGateway) CreateRecord(ctx context.Context, kind core.RecordKind, record core.Record) (core.Record, error) {
	endpoint, err := endpointFor(kind)
	if err != nil {
		return core.Record{}, err
	}
	created := map[string]any{}
	if _, err := g.call(ctx, "create_"+string(kind), http.MethodPost, endpoint.path, nil, endpoint.fromRecord(record), &created); err != nil {
		return core.Record{}, err
	}
	if len(created) == 0 {
		return record.Clone(), nil
	}
	return endpoint.toRecord(created), nil
}

func (e recordEndpoint) toRecord(raw map[string]any) core.Record {
	record := core.Record{Fields: map[string]any{}}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := raw[key]
		switch {
		case key == "id":
			record.ID = stringValue(value)
		case key == "code":
			record.Code = stringValue(value)
		case e.nameKey != "" && key == e.nameKey:
			record.Name = stringValue(value)
		default:
			record.Fields[key] = value
		}
	}
	return record
}

func (e recordEndpoint) fromRecord(record core.Record) map[string]any {
	payload := make(map[string]any, len(record.Fields)+3)
	for key, value := range record.Fields {
		payload[key] = value
	}
	if record.ID != "" {
		payload["id"] = record.ID
	}
	if record.Code != "" {
		payload["code"] = record.Code
	}
	if record.Name != "" && e.nameKey != "" {
		payload[e.nameKey] = record.Name
	}
	return payload
}

func stringValue(value any) string {
	if value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}
