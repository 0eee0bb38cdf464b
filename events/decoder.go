package events

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type Kind string

const (
	KindRequestExpired Kind = "REQUEST_EXPIRED"
	KindItemCheckedIn  Kind = "ITEM_CHECKED_IN"
)

// RequestStatusPickupExpired is the circulation request status the platform
// sets when a hold shelf period runs out.
const RequestStatusPickupExpired = "Closed - Pickup expired"

const (
	defaultRequestTopicSuffix = "circulation.request"
	defaultCheckInTopicSuffix = "circulation.check-in"
)

// Event is a lifecycle signal extracted from a platform domain event.
type Event struct {
	Kind      Kind
	RequestID string
	ItemID    string
	Topic     string
}

// Decoder classifies topics by suffix so tenant and environment prefixes do
// not need configuring.
type Decoder struct {
	RequestTopicSuffix string
	CheckInTopicSuffix string
}

type domainEvent struct {
	Type     string           `json:"type"`
	TenantID string           `json:"tenant"`
	Data     domainEventDelta `json:"data"`
}

type domainEventDelta struct {
	New map[string]any `json:"new"`
	Old map[string]any `json:"old"`
}

// Decode returns ok=false for events that do not drive the lifecycle.
func (d Decoder) Decode(topic string, payload []byte) (Event, bool, error) {
	topic = strings.TrimSpace(topic)
	switch {
	case strings.HasSuffix(topic, d.requestSuffix()):
		return decodeRequestEvent(topic, payload)
	case strings.HasSuffix(topic, d.checkInSuffix()):
		return decodeCheckInEvent(topic, payload)
	default:
		return Event{}, false, nil
	}
}

func (d Decoder) requestSuffix() string {
	if suffix := strings.TrimSpace(d.RequestTopicSuffix); suffix != "" {
		return suffix
	}
	return defaultRequestTopicSuffix
}

func (d Decoder) checkInSuffix() string {
	if suffix := strings.TrimSpace(d.CheckInTopicSuffix); suffix != "" {
		return suffix
	}
	return defaultCheckInTopicSuffix
}

func decodeRequestEvent(topic string, payload []byte) (Event, bool, error) {
	event, err := unmarshalDomainEvent(payload)
	if err != nil {
		return Event{}, false, err
	}
	if !strings.EqualFold(event.Type, "UPDATED") {
		return Event{}, false, nil
	}
	if field(event.Data.New, "status") != RequestStatusPickupExpired {
		return Event{}, false, nil
	}
	if field(event.Data.Old, "status") == RequestStatusPickupExpired {
		return Event{}, false, nil
	}
	requestID := field(event.Data.New, "id")
	if requestID == "" {
		return Event{}, false, fmt.Errorf("events: request event on %s has no request id", topic)
	}
	return Event{Kind: KindRequestExpired, RequestID: requestID, Topic: topic}, true, nil
}

func decodeCheckInEvent(topic string, payload []byte) (Event, bool, error) {
	event, err := unmarshalDomainEvent(payload)
	if err != nil {
		return Event{}, false, err
	}
	if !strings.EqualFold(event.Type, "CREATED") {
		return Event{}, false, nil
	}
	itemID := field(event.Data.New, "itemId")
	if itemID == "" {
		return Event{}, false, fmt.Errorf("events: check-in event on %s has no item id", topic)
	}
	return Event{Kind: KindItemCheckedIn, ItemID: itemID, Topic: topic}, true, nil
}

func unmarshalDomainEvent(payload []byte) (domainEvent, error) {
	var event domainEvent
	if len(payload) == 0 {
		return event, fmt.Errorf("events: empty payload")
	}
	if err := codec.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("events: decode domain event: %w", err)
	}
	return event, nil
}

func field(values map[string]any, key string) string {
	if values == nil {
		return ""
	}
	text, _ := values[key].(string)
	return strings.TrimSpace(text)
}
