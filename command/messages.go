package command

import (
	"strings"

	"github.com/goliatone/go-dcb/core"
)

const (
	TypeCreateTransaction     = "dcb.command.transaction.create"
	TypeRequestStatusChange   = "dcb.command.transaction.status_change"
	TypePatchItemDetails      = "dcb.command.transaction.patch_item"
	TypeRenew                 = "dcb.command.loan.renew"
	TypeBlockRenewal          = "dcb.command.loan.block_renewal"
	TypeUnblockRenewal        = "dcb.command.loan.unblock_renewal"
	TypeHandleRequestExpired  = "dcb.command.event.request_expired"
	TypeHandleItemCheckedIn   = "dcb.command.event.item_checked_in"
	TypeBootstrapSharedRecord = "dcb.command.shared_resources.bootstrap"
)

type CreateTransactionMessage struct {
	TransactionID string
	Request       core.CreateTransactionRequest
}

func (CreateTransactionMessage) Type() string { return TypeCreateTransaction }

func (m CreateTransactionMessage) Validate() error {
	if err := validateTransactionID(m.TransactionID); err != nil {
		return err
	}
	return commandWrapValidation(m.Request.Validate(), "command: invalid create transaction request")
}

type RequestStatusChangeMessage struct {
	TransactionID string
	Status        core.Status
}

func (RequestStatusChangeMessage) Type() string { return TypeRequestStatusChange }

func (m RequestStatusChangeMessage) Validate() error {
	if err := validateTransactionID(m.TransactionID); err != nil {
		return err
	}
	if !m.Status.Valid() {
		return commandValidationError("status", "status is unknown")
	}
	return nil
}

type PatchItemDetailsMessage struct {
	TransactionID string
	ItemBarcode   string
}

func (PatchItemDetailsMessage) Type() string { return TypePatchItemDetails }

func (m PatchItemDetailsMessage) Validate() error {
	if err := validateTransactionID(m.TransactionID); err != nil {
		return err
	}
	if strings.TrimSpace(m.ItemBarcode) == "" {
		return commandValidationError("item.barcode", "item barcode is required")
	}
	return nil
}

type RenewMessage struct {
	TransactionID string
}

func (RenewMessage) Type() string { return TypeRenew }

func (m RenewMessage) Validate() error { return validateTransactionID(m.TransactionID) }

type BlockRenewalMessage struct {
	TransactionID string
}

func (BlockRenewalMessage) Type() string { return TypeBlockRenewal }

func (m BlockRenewalMessage) Validate() error { return validateTransactionID(m.TransactionID) }

type UnblockRenewalMessage struct {
	TransactionID string
}

func (UnblockRenewalMessage) Type() string { return TypeUnblockRenewal }

func (m UnblockRenewalMessage) Validate() error { return validateTransactionID(m.TransactionID) }

type HandleRequestExpiredMessage struct {
	RequestID string
}

func (HandleRequestExpiredMessage) Type() string { return TypeHandleRequestExpired }

func (m HandleRequestExpiredMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return commandValidationError("request_id", "request id is required")
	}
	return nil
}

type HandleItemCheckedInMessage struct {
	ItemID string
}

func (HandleItemCheckedInMessage) Type() string { return TypeHandleItemCheckedIn }

func (m HandleItemCheckedInMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return commandValidationError("item_id", "item id is required")
	}
	return nil
}

type BootstrapSharedResourcesMessage struct{}

func (BootstrapSharedResourcesMessage) Type() string { return TypeBootstrapSharedRecord }

func (BootstrapSharedResourcesMessage) Validate() error { return nil }

func validateTransactionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("transaction_id", "transaction id is required")
	}
	return nil
}
