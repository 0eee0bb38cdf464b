package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dcb/core"
)

func validCreateRequest() core.CreateTransactionRequest {
	return core.CreateTransactionRequest{
		Role:   core.RoleBorrower,
		Patron: core.PatronRef{ID: "patron-1", Barcode: "P-1", Group: "staff"},
		Item:   core.ItemRef{ID: "item-1", Barcode: "I-1", Title: "Dune", LendingLibraryCode: "LEND"},
		Pickup: core.PickupRef{ServicePointID: "sp-1", ServicePointName: "Main desk"},
	}
}

func TestCreateTransactionCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.TransactionSummary{
		Status: core.StatusCreated,
		Item:   core.ItemRef{ID: "item-1", Barcode: "I-1"},
		Patron: core.PatronRef{ID: "patron-1", Barcode: "P-1"},
	}
	called := false

	svc := stubMutatingService{
		createTransactionFn: func(_ context.Context, id string, req core.CreateTransactionRequest) (core.TransactionSummary, error) {
			called = true
			if id != "tx-1" {
				t.Fatalf("expected transaction tx-1, got %q", id)
			}
			if req.Role != core.RoleBorrower || req.Item.ID != "item-1" {
				t.Fatalf("unexpected create request: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCreateTransactionCommand(svc)
	collector := gocmd.NewResult[core.TransactionSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CreateTransactionMessage{TransactionID: "tx-1", Request: validCreateRequest()})
	if err != nil {
		t.Fatalf("execute create transaction: %v", err)
	}
	if !called {
		t.Fatalf("expected create transaction invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Status != core.StatusCreated || result.Item.Barcode != "I-1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("status change", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			requestStatusChangeFn: func(_ context.Context, id string, target core.Status) (core.StatusResponse, error) {
				called = true
				if id != "tx-1" || target != core.StatusItemCheckedOut {
					t.Fatalf("unexpected status change: %q %q", id, target)
				}
				return core.StatusResponse{Status: target}, nil
			},
		}
		collector := gocmd.NewResult[core.StatusResponse]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		cmd := NewRequestStatusChangeCommand(svc)
		if err := cmd.Execute(ctx, RequestStatusChangeMessage{TransactionID: "tx-1", Status: core.StatusItemCheckedOut}); err != nil {
			t.Fatalf("execute status change: %v", err)
		}
		if !called {
			t.Fatalf("expected status change invocation")
		}
		result, ok := collector.Load()
		if !ok || result.Status != core.StatusItemCheckedOut {
			t.Fatalf("unexpected status change result: %#v", result)
		}
	})

	t.Run("patch item details", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			patchItemDetailsFn: func(_ context.Context, id string, barcode string) error {
				called = true
				if id != "tx-1" || barcode != "NEW-1" {
					t.Fatalf("unexpected patch payload: %q %q", id, barcode)
				}
				return nil
			},
		}
		cmd := NewPatchItemDetailsCommand(svc)
		if err := cmd.Execute(context.Background(), PatchItemDetailsMessage{TransactionID: "tx-1", ItemBarcode: "NEW-1"}); err != nil {
			t.Fatalf("execute patch: %v", err)
		}
		if !called {
			t.Fatalf("expected patch invocation")
		}
	})

	t.Run("renew", func(t *testing.T) {
		expected := core.RenewalInfo{RenewalCount: 1, RenewalMaxCount: 3, Renewable: true}
		svc := stubMutatingService{
			renewFn: func(_ context.Context, id string) (core.RenewalInfo, error) {
				if id != "tx-1" {
					t.Fatalf("unexpected renew id %q", id)
				}
				return expected, nil
			},
		}
		collector := gocmd.NewResult[core.RenewalInfo]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRenewCommand(svc).Execute(ctx, RenewMessage{TransactionID: "tx-1"}); err != nil {
			t.Fatalf("execute renew: %v", err)
		}
		result, ok := collector.Load()
		if !ok || result != expected {
			t.Fatalf("unexpected renew result: %#v", result)
		}
	})

	t.Run("block and unblock renewal", func(t *testing.T) {
		var calls []string
		svc := stubMutatingService{
			blockRenewalFn: func(_ context.Context, id string) error {
				calls = append(calls, "block:"+id)
				return nil
			},
			unblockRenewalFn: func(_ context.Context, id string) error {
				calls = append(calls, "unblock:"+id)
				return nil
			},
		}
		if err := NewBlockRenewalCommand(svc).Execute(context.Background(), BlockRenewalMessage{TransactionID: "tx-1"}); err != nil {
			t.Fatalf("execute block: %v", err)
		}
		if err := NewUnblockRenewalCommand(svc).Execute(context.Background(), UnblockRenewalMessage{TransactionID: "tx-1"}); err != nil {
			t.Fatalf("execute unblock: %v", err)
		}
		if len(calls) != 2 || calls[0] != "block:tx-1" || calls[1] != "unblock:tx-1" {
			t.Fatalf("unexpected renewal block calls: %v", calls)
		}
	})

	t.Run("service errors propagate", func(t *testing.T) {
		svc := stubMutatingService{
			renewFn: func(context.Context, string) (core.RenewalInfo, error) {
				return core.RenewalInfo{}, core.ErrInvalidState
			},
		}
		collector := gocmd.NewResult[core.RenewalInfo]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewRenewCommand(svc).Execute(ctx, RenewMessage{TransactionID: "tx-1"})
		if err != core.ErrInvalidState {
			t.Fatalf("expected invalid state, got %v", err)
		}
		if _, ok := collector.Load(); ok {
			t.Fatalf("expected no stored result on failure")
		}
	})
}

func TestEventCommands_DelegateToService(t *testing.T) {
	var calls []string
	svc := stubEventService{
		requestExpiredFn: func(_ context.Context, requestID string) error {
			calls = append(calls, "expired:"+requestID)
			return nil
		},
		itemCheckedInFn: func(_ context.Context, itemID string) error {
			calls = append(calls, "checked_in:"+itemID)
			return nil
		},
	}
	if err := NewHandleRequestExpiredCommand(svc).Execute(context.Background(), HandleRequestExpiredMessage{RequestID: "req-1"}); err != nil {
		t.Fatalf("execute request expired: %v", err)
	}
	if err := NewHandleItemCheckedInCommand(svc).Execute(context.Background(), HandleItemCheckedInMessage{ItemID: "item-1"}); err != nil {
		t.Fatalf("execute item checked in: %v", err)
	}
	if len(calls) != 2 || calls[0] != "expired:req-1" || calls[1] != "checked_in:item-1" {
		t.Fatalf("unexpected event calls: %v", calls)
	}
}

func TestBootstrapCommand_StoresPartialReport(t *testing.T) {
	report := core.BootstrapReport{Resources: []core.ResourceReport{
		{Kind: core.RecordInstitution, Outcome: core.ResourceOutcomeFound, ID: "inst-1"},
		{Kind: core.RecordCampus, Outcome: core.ResourceOutcomeError, Error: "platform down"},
	}}
	svc := stubBootstrapService{
		bootstrapFn: func(context.Context) (core.BootstrapReport, error) {
			return report, fmt.Errorf("bootstrap incomplete")
		},
	}
	collector := gocmd.NewResult[core.BootstrapReport]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewBootstrapSharedResourcesCommand(svc).Execute(ctx, BootstrapSharedResourcesMessage{})
	if err == nil {
		t.Fatalf("expected bootstrap error")
	}
	stored, ok := collector.Load()
	if !ok || len(stored.Resources) != 2 || !stored.Failed() {
		t.Fatalf("expected partial report stored, got %#v", stored)
	}
}

func TestMessageValidation(t *testing.T) {
	invalidRole := validCreateRequest()
	invalidRole.Role = core.Role("COURIER")

	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name:    "create transaction valid",
			msg:     CreateTransactionMessage{TransactionID: "tx-1", Request: validCreateRequest()},
			wantErr: false,
		},
		{
			name:    "create transaction missing id",
			msg:     CreateTransactionMessage{Request: validCreateRequest()},
			wantErr: true,
		},
		{
			name:    "create transaction invalid role",
			msg:     CreateTransactionMessage{TransactionID: "tx-1", Request: invalidRole},
			wantErr: true,
		},
		{
			name:    "status change valid",
			msg:     RequestStatusChangeMessage{TransactionID: "tx-1", Status: core.StatusOpen},
			wantErr: false,
		},
		{
			name:    "status change unknown status",
			msg:     RequestStatusChangeMessage{TransactionID: "tx-1", Status: core.Status("LOST")},
			wantErr: true,
		},
		{
			name:    "patch missing barcode",
			msg:     PatchItemDetailsMessage{TransactionID: "tx-1", ItemBarcode: "  "},
			wantErr: true,
		},
		{
			name:    "renew missing id",
			msg:     RenewMessage{},
			wantErr: true,
		},
		{
			name:    "block renewal valid",
			msg:     BlockRenewalMessage{TransactionID: "tx-1"},
			wantErr: false,
		},
		{
			name:    "unblock renewal missing id",
			msg:     UnblockRenewalMessage{},
			wantErr: true,
		},
		{
			name:    "request expired missing request",
			msg:     HandleRequestExpiredMessage{},
			wantErr: true,
		},
		{
			name:    "item checked in valid",
			msg:     HandleItemCheckedInMessage{ItemID: "item-1"},
			wantErr: false,
		},
		{
			name:    "bootstrap always valid",
			msg:     BootstrapSharedResourcesMessage{},
			wantErr: false,
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

type stubMutatingService struct {
	createTransactionFn   func(ctx context.Context, id string, req core.CreateTransactionRequest) (core.TransactionSummary, error)
	requestStatusChangeFn func(ctx context.Context, id string, target core.Status) (core.StatusResponse, error)
	patchItemDetailsFn    func(ctx context.Context, id string, barcode string) error
	renewFn               func(ctx context.Context, id string) (core.RenewalInfo, error)
	blockRenewalFn        func(ctx context.Context, id string) error
	unblockRenewalFn      func(ctx context.Context, id string) error
}

func (s stubMutatingService) CreateTransaction(ctx context.Context, id string, req core.CreateTransactionRequest) (core.TransactionSummary, error) {
	if s.createTransactionFn == nil {
		return core.TransactionSummary{}, fmt.Errorf("create transaction not configured")
	}
	return s.createTransactionFn(ctx, id, req)
}

func (s stubMutatingService) RequestStatusChange(ctx context.Context, id string, target core.Status) (core.StatusResponse, error) {
	if s.requestStatusChangeFn == nil {
		return core.StatusResponse{}, fmt.Errorf("status change not configured")
	}
	return s.requestStatusChangeFn(ctx, id, target)
}

func (s stubMutatingService) PatchItemDetails(ctx context.Context, id string, barcode string) error {
	if s.patchItemDetailsFn == nil {
		return fmt.Errorf("patch item details not configured")
	}
	return s.patchItemDetailsFn(ctx, id, barcode)
}

func (s stubMutatingService) Renew(ctx context.Context, id string) (core.RenewalInfo, error) {
	if s.renewFn == nil {
		return core.RenewalInfo{}, fmt.Errorf("renew not configured")
	}
	return s.renewFn(ctx, id)
}

func (s stubMutatingService) BlockRenewal(ctx context.Context, id string) error {
	if s.blockRenewalFn == nil {
		return fmt.Errorf("block renewal not configured")
	}
	return s.blockRenewalFn(ctx, id)
}

func (s stubMutatingService) UnblockRenewal(ctx context.Context, id string) error {
	if s.unblockRenewalFn == nil {
		return fmt.Errorf("unblock renewal not configured")
	}
	return s.unblockRenewalFn(ctx, id)
}

type stubEventService struct {
	requestExpiredFn func(ctx context.Context, requestID string) error
	itemCheckedInFn  func(ctx context.Context, itemID string) error
}

func (s stubEventService) HandleRequestExpired(ctx context.Context, requestID string) error {
	if s.requestExpiredFn == nil {
		return fmt.Errorf("request expired not configured")
	}
	return s.requestExpiredFn(ctx, requestID)
}

func (s stubEventService) HandleItemCheckedIn(ctx context.Context, itemID string) error {
	if s.itemCheckedInFn == nil {
		return fmt.Errorf("item checked in not configured")
	}
	return s.itemCheckedInFn(ctx, itemID)
}

type stubBootstrapService struct {
	bootstrapFn func(ctx context.Context) (core.BootstrapReport, error)
}

func (s stubBootstrapService) BootstrapSharedResources(ctx context.Context) (core.BootstrapReport, error) {
	if s.bootstrapFn == nil {
		return core.BootstrapReport{}, fmt.Errorf("bootstrap not configured")
	}
	return s.bootstrapFn(ctx)
}
