package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateTransactionMessage]        = (*CreateTransactionCommand)(nil)
	_ gocmd.Commander[RequestStatusChangeMessage]      = (*RequestStatusChangeCommand)(nil)
	_ gocmd.Commander[PatchItemDetailsMessage]         = (*PatchItemDetailsCommand)(nil)
	_ gocmd.Commander[RenewMessage]                    = (*RenewCommand)(nil)
	_ gocmd.Commander[BlockRenewalMessage]             = (*BlockRenewalCommand)(nil)
	_ gocmd.Commander[UnblockRenewalMessage]           = (*UnblockRenewalCommand)(nil)
	_ gocmd.Commander[HandleRequestExpiredMessage]     = (*HandleRequestExpiredCommand)(nil)
	_ gocmd.Commander[HandleItemCheckedInMessage]      = (*HandleItemCheckedInCommand)(nil)
	_ gocmd.Commander[BootstrapSharedResourcesMessage] = (*BootstrapSharedResourcesCommand)(nil)
)
