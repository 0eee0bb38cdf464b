package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-dcb/core"
)

func TestGetStatusQuery_QueryDelegates(t *testing.T) {
	expected := core.TransactionStatus{
		ID:     "tx-1",
		Status: core.StatusItemCheckedOut,
		Role:   core.RoleLender,
		Item:   core.ItemRef{ID: "item-1", Barcode: "I-1"},
		Renewal: &core.RenewalInfo{
			RenewalCount:    1,
			RenewalMaxCount: 2,
			Renewable:       true,
		},
	}
	called := false
	reader := stubStatusReader{
		getStatusFn: func(_ context.Context, id string) (core.TransactionStatus, error) {
			called = true
			if id != "tx-1" {
				t.Fatalf("unexpected transaction id %q", id)
			}
			return expected, nil
		},
	}

	result, err := NewGetStatusQuery(reader).Query(context.Background(), GetStatusMessage{TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !called {
		t.Fatalf("expected status reader invocation")
	}
	if result.Status != core.StatusItemCheckedOut || result.Renewal == nil || result.Renewal.RenewalMaxCount != 2 {
		t.Fatalf("unexpected status result: %#v", result)
	}
}

func TestListStatusHistoryQuery_QueryDelegates(t *testing.T) {
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	expected := core.StatusHistoryPage{
		Items: []core.StatusHistoryItem{
			{ID: "a-1", TransactionID: "tx-1", Role: core.RoleBorrower, Status: core.StatusOpen, PreviousStatus: core.StatusCreated},
		},
		TotalRecords: 1,
		PageNumber:   0,
		PageSize:     10,
	}
	called := false
	reader := stubStatusReader{
		listHistoryFn: func(_ context.Context, query core.HistoryQuery) (core.StatusHistoryPage, error) {
			called = true
			if !query.From.Equal(from) || !query.To.Equal(to) || query.PageSize != 10 {
				t.Fatalf("unexpected history query: %#v", query)
			}
			return expected, nil
		},
	}

	result, err := NewListStatusHistoryQuery(reader).Query(context.Background(), ListStatusHistoryMessage{
		Query: core.HistoryQuery{From: from, To: to, PageSize: 10},
	})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if !called {
		t.Fatalf("expected history reader invocation")
	}
	if result.TotalRecords != 1 || len(result.Items) != 1 || result.Items[0].PreviousStatus != core.StatusCreated {
		t.Fatalf("unexpected history result: %#v", result)
	}
}

func TestQueryMessageValidation(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "status valid", msg: GetStatusMessage{TransactionID: "tx-1"}},
		{name: "status blank id", msg: GetStatusMessage{TransactionID: " "}, wantErr: true},
		{name: "history defaults", msg: ListStatusHistoryMessage{}},
		{name: "history negative page", msg: ListStatusHistoryMessage{Query: core.HistoryQuery{PageNumber: -1}}, wantErr: true},
		{name: "history negative size", msg: ListStatusHistoryMessage{Query: core.HistoryQuery{PageSize: -5}}, wantErr: true},
		{
			name:    "history inverted window",
			msg:     ListStatusHistoryMessage{Query: core.HistoryQuery{From: now, To: now.Add(-time.Hour)}},
			wantErr: true,
		},
		{
			name: "history open ended window",
			msg:  ListStatusHistoryMessage{Query: core.HistoryQuery{From: now}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

type stubStatusReader struct {
	getStatusFn   func(ctx context.Context, id string) (core.TransactionStatus, error)
	listHistoryFn func(ctx context.Context, query core.HistoryQuery) (core.StatusHistoryPage, error)
}

func (s stubStatusReader) GetStatus(ctx context.Context, id string) (core.TransactionStatus, error) {
	if s.getStatusFn == nil {
		return core.TransactionStatus{}, fmt.Errorf("get status not configured")
	}
	return s.getStatusFn(ctx, id)
}

func (s stubStatusReader) ListStatusHistory(ctx context.Context, query core.HistoryQuery) (core.StatusHistoryPage, error) {
	if s.listHistoryFn == nil {
		return core.StatusHistoryPage{}, fmt.Errorf("list history not configured")
	}
	return s.listHistoryFn(ctx, query)
}
