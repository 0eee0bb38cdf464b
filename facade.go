package dcb

import (
	"fmt"

	"github.com/goliatone/go-dcb/adapters/gocommand"
	dcbcommand "github.com/goliatone/go-dcb/command"
	dcbquery "github.com/goliatone/go-dcb/query"
)

type CommandQueryService interface {
	dcbcommand.MutatingService
	dcbcommand.EventService
	dcbcommand.BootstrapService
	dcbquery.TransactionStatusReader
	dcbquery.StatusHistoryReader
}

type Commands struct {
	CreateTransaction    *dcbcommand.CreateTransactionCommand
	RequestStatusChange  *dcbcommand.RequestStatusChangeCommand
	PatchItemDetails     *dcbcommand.PatchItemDetailsCommand
	Renew                *dcbcommand.RenewCommand
	BlockRenewal         *dcbcommand.BlockRenewalCommand
	UnblockRenewal       *dcbcommand.UnblockRenewalCommand
	HandleRequestExpired *dcbcommand.HandleRequestExpiredCommand
	HandleItemCheckedIn  *dcbcommand.HandleItemCheckedInCommand
	Bootstrap            *dcbcommand.BootstrapSharedResourcesCommand
}

type Queries struct {
	GetStatus         *dcbquery.GetStatusQuery
	ListStatusHistory *dcbquery.ListStatusHistoryQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	historyReader dcbquery.StatusHistoryReader
}

// WithHistoryReader serves status history from a reader other than the
// service, such as a read replica.
func WithHistoryReader(reader dcbquery.StatusHistoryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.historyReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("dcb: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	var history dcbquery.StatusHistoryReader = service
	if cfg.historyReader != nil {
		history = cfg.historyReader
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateTransaction:    dcbcommand.NewCreateTransactionCommand(service),
		RequestStatusChange:  dcbcommand.NewRequestStatusChangeCommand(service),
		PatchItemDetails:     dcbcommand.NewPatchItemDetailsCommand(service),
		Renew:                dcbcommand.NewRenewCommand(service),
		BlockRenewal:         dcbcommand.NewBlockRenewalCommand(service),
		UnblockRenewal:       dcbcommand.NewUnblockRenewalCommand(service),
		HandleRequestExpired: dcbcommand.NewHandleRequestExpiredCommand(service),
		HandleItemCheckedIn:  dcbcommand.NewHandleItemCheckedInCommand(service),
		Bootstrap:            dcbcommand.NewBootstrapSharedResourcesCommand(service),
	}
	facade.queries = Queries{
		GetStatus:         dcbquery.NewGetStatusQuery(service),
		ListStatusHistory: dcbquery.NewListStatusHistoryQuery(history),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every handler on the go-command dispatcher through
// adapter. Callers release the handlers with Subscriptions.Unsubscribe.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil || f.service == nil {
		return nil, fmt.Errorf("dcb: facade is not configured")
	}
	return gocommand.RegisterService(adapter, f.service)
}
