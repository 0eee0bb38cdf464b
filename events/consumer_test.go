package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-dcb/core"
	"github.com/segmentio/kafka-go"
)

func TestConsumerDispatchesAndCommits(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Topic: "folio.diku.circulation.request", Offset: 1, Value: []byte(`{"type":"UPDATED","data":{"new":{"id":"req-1","status":"Closed - Pickup expired"}}}`)},
		{Topic: "folio.diku.circulation.check-in", Offset: 2, Value: []byte(`{"type":"CREATED","data":{"new":{"itemId":"item-1"}}}`)},
		{Topic: "folio.diku.inventory.item", Offset: 3, Value: []byte(`{}`)},
	}}
	sink := &recordingSink{}
	consumer, err := NewConsumer(reader, sink)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	if err := consumer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.calls) != 2 || sink.calls[0] != "expired:req-1" || sink.calls[1] != "checked_in:item-1" {
		t.Fatalf("unexpected sink calls: %v", sink.calls)
	}
	if len(reader.committed) != 3 {
		t.Fatalf("expected every offset committed, got %v", reader.committed)
	}
}

func TestConsumerUsesConfiguredDecoder(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Topic: "folio.diku.circulation.request", Offset: 1, Value: []byte(`{"type":"UPDATED","data":{"new":{"id":"req-1","status":"Closed - Pickup expired"}}}`)},
		{Topic: "tenant-a.dcb.requests", Offset: 2, Value: []byte(`{"type":"UPDATED","data":{"new":{"id":"req-2","status":"Closed - Pickup expired"}}}`)},
	}}
	sink := &recordingSink{}
	consumer, err := NewConsumer(reader, sink, WithDecoder(Decoder{RequestTopicSuffix: "dcb.requests"}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	if err := consumer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.calls) != 1 || sink.calls[0] != "expired:req-2" {
		t.Fatalf("expected only the configured request topic dispatched, got %v", sink.calls)
	}
	if len(reader.committed) != 2 {
		t.Fatalf("expected both offsets committed, got %v", reader.committed)
	}
}

func TestConsumerCommitsUndecodableMessages(t *testing.T) {
	reader := &fakeReader{}
	consumer, err := NewConsumer(reader, &recordingSink{})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.HandleMessage(context.Background(), kafka.Message{Topic: "a.circulation.request", Offset: 9, Value: []byte("not json")}); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 9 {
		t.Fatalf("expected malformed message to be committed, got %v", reader.committed)
	}
}

func TestConsumerRetriesServerSideFailures(t *testing.T) {
	reader := &fakeReader{}
	sink := &recordingSink{failures: []error{
		&core.UpstreamError{Operation: "update_request", StatusCode: 503, Message: "unavailable"},
		&core.UpstreamError{Operation: "update_request", StatusCode: 503, Message: "unavailable"},
	}}
	var delays []time.Duration
	consumer, err := NewConsumer(reader, sink,
		WithRetry(3, core.ExponentialBackoffScheduler{Initial: time.Second, Max: time.Minute}),
		WithSleeper(func(_ context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	msg := kafka.Message{Topic: "x.circulation.check-in", Offset: 4, Value: []byte(`{"type":"CREATED","data":{"new":{"itemId":"item-4"}}}`)}
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(sink.calls) != 3 {
		t.Fatalf("expected three attempts, got %v", sink.calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
	if len(reader.committed) != 1 {
		t.Fatalf("expected offset committed after success")
	}
}

func TestConsumerDoesNotRetryClientSideFailures(t *testing.T) {
	reader := &fakeReader{}
	sink := &recordingSink{failures: []error{
		&core.UpstreamError{Operation: "update_request", StatusCode: 422, Message: "rejected"},
	}}
	consumer, err := NewConsumer(reader, sink, WithSleeper(func(context.Context, time.Duration) error {
		t.Fatalf("client-side failure must not be retried")
		return nil
	}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	msg := kafka.Message{Topic: "x.circulation.check-in", Offset: 5, Value: []byte(`{"type":"CREATED","data":{"new":{"itemId":"item-5"}}}`)}
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(sink.calls) != 1 || len(reader.committed) != 1 {
		t.Fatalf("expected one attempt and a commit, calls=%v committed=%v", sink.calls, reader.committed)
	}
}

func TestConsumerSurfacesCommitAndFetchErrors(t *testing.T) {
	reader := &fakeReader{commitErr: errors.New("broker gone")}
	consumer, err := NewConsumer(reader, &recordingSink{})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.HandleMessage(context.Background(), kafka.Message{Topic: "other"}); err == nil {
		t.Fatalf("expected commit error")
	}

	failing := &fakeReader{fetchErr: errors.New("connection refused")}
	consumer, err = NewConsumer(failing, &recordingSink{})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.Run(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
}

func TestNewConsumerValidation(t *testing.T) {
	if _, err := NewConsumer(nil, &recordingSink{}); err == nil {
		t.Fatalf("expected missing reader error")
	}
	if _, err := NewConsumer(&fakeReader{}, nil); err == nil {
		t.Fatalf("expected missing sink error")
	}
	if _, err := NewKafkaConsumer(core.EventsConfig{}, &recordingSink{}); err == nil {
		t.Fatalf("expected missing brokers error")
	}
	if _, err := NewKafkaConsumer(core.EventsConfig{Brokers: []string{"localhost:9092"}, Topics: []string{"t"}}, &recordingSink{}); err == nil {
		t.Fatalf("expected missing group id error")
	}
}

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	commitErr error
	fetchErr  error
	closed    bool
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type recordingSink struct {
	calls    []string
	failures []error
}

func (s *recordingSink) HandleRequestExpired(_ context.Context, requestID string) error {
	s.calls = append(s.calls, "expired:"+requestID)
	return s.next()
}

func (s *recordingSink) HandleItemCheckedIn(_ context.Context, itemID string) error {
	s.calls = append(s.calls, "checked_in:"+itemID)
	return s.next()
}

func (s *recordingSink) next() error {
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

var _ MessageReader = (*kafka.Reader)(nil)

var _ Sink = (*core.Service)(nil)
