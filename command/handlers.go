package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dcb/core"
)

// MutatingService is the write side of the transaction lifecycle engine.
type MutatingService interface {
	CreateTransaction(ctx context.Context, id string, req core.CreateTransactionRequest) (core.TransactionSummary, error)
	RequestStatusChange(ctx context.Context, id string, target core.Status) (core.StatusResponse, error)
	PatchItemDetails(ctx context.Context, id string, barcode string) error
	Renew(ctx context.Context, id string) (core.RenewalInfo, error)
	BlockRenewal(ctx context.Context, id string) error
	UnblockRenewal(ctx context.Context, id string) error
}

type EventService interface {
	HandleRequestExpired(ctx context.Context, requestID string) error
	HandleItemCheckedIn(ctx context.Context, itemID string) error
}

type BootstrapService interface {
	BootstrapSharedResources(ctx context.Context) (core.BootstrapReport, error)
}

type CreateTransactionCommand struct {
	service MutatingService
}

func NewCreateTransactionCommand(service MutatingService) *CreateTransactionCommand {
	return &CreateTransactionCommand{service: service}
}

func (c *CreateTransactionCommand) Execute(ctx context.Context, msg CreateTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	out, err := c.service.CreateTransaction(ctx, msg.TransactionID, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestStatusChangeCommand struct {
	service MutatingService
}

func NewRequestStatusChangeCommand(service MutatingService) *RequestStatusChangeCommand {
	return &RequestStatusChangeCommand{service: service}
}

func (c *RequestStatusChangeCommand) Execute(ctx context.Context, msg RequestStatusChangeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	out, err := c.service.RequestStatusChange(ctx, msg.TransactionID, msg.Status)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PatchItemDetailsCommand struct {
	service MutatingService
}

func NewPatchItemDetailsCommand(service MutatingService) *PatchItemDetailsCommand {
	return &PatchItemDetailsCommand{service: service}
}

func (c *PatchItemDetailsCommand) Execute(ctx context.Context, msg PatchItemDetailsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transaction service is required")
	}
	return c.service.PatchItemDetails(ctx, msg.TransactionID, msg.ItemBarcode)
}

type RenewCommand struct {
	service MutatingService
}

func NewRenewCommand(service MutatingService) *RenewCommand {
	return &RenewCommand{service: service}
}

func (c *RenewCommand) Execute(ctx context.Context, msg RenewMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: renewal service is required")
	}
	out, err := c.service.Renew(ctx, msg.TransactionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BlockRenewalCommand struct {
	service MutatingService
}

func NewBlockRenewalCommand(service MutatingService) *BlockRenewalCommand {
	return &BlockRenewalCommand{service: service}
}

func (c *BlockRenewalCommand) Execute(ctx context.Context, msg BlockRenewalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: renewal service is required")
	}
	return c.service.BlockRenewal(ctx, msg.TransactionID)
}

type UnblockRenewalCommand struct {
	service MutatingService
}

func NewUnblockRenewalCommand(service MutatingService) *UnblockRenewalCommand {
	return &UnblockRenewalCommand{service: service}
}

func (c *UnblockRenewalCommand) Execute(ctx context.Context, msg UnblockRenewalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: renewal service is required")
	}
	return c.service.UnblockRenewal(ctx, msg.TransactionID)
}

type HandleRequestExpiredCommand struct {
	service EventService
}

func NewHandleRequestExpiredCommand(service EventService) *HandleRequestExpiredCommand {
	return &HandleRequestExpiredCommand{service: service}
}

func (c *HandleRequestExpiredCommand) Execute(ctx context.Context, msg HandleRequestExpiredMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	return c.service.HandleRequestExpired(ctx, msg.RequestID)
}

type HandleItemCheckedInCommand struct {
	service EventService
}

func NewHandleItemCheckedInCommand(service EventService) *HandleItemCheckedInCommand {
	return &HandleItemCheckedInCommand{service: service}
}

func (c *HandleItemCheckedInCommand) Execute(ctx context.Context, msg HandleItemCheckedInMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	return c.service.HandleItemCheckedIn(ctx, msg.ItemID)
}

type BootstrapSharedResourcesCommand struct {
	service BootstrapService
}

func NewBootstrapSharedResourcesCommand(service BootstrapService) *BootstrapSharedResourcesCommand {
	return &BootstrapSharedResourcesCommand{service: service}
}

// Execute stores the report even when the bootstrap fails part way.
func (c *BootstrapSharedResourcesCommand) Execute(ctx context.Context, _ BootstrapSharedResourcesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bootstrap service is required")
	}
	out, err := c.service.BootstrapSharedResources(ctx)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
