package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	dcbcommand "github.com/goliatone/go-dcb/command"
	dcbquery "github.com/goliatone/go-dcb/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so lifecycle events can be processed asynchronously.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// TransactionService is everything the DCB handlers delegate to.
// *core.Service satisfies it.
type TransactionService interface {
	dcbcommand.MutatingService
	dcbcommand.EventService
	dcbcommand.BootstrapService
	dcbquery.TransactionStatusReader
	dcbquery.StatusHistoryReader
}

// Subscriptions groups dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterService registers and subscribes every DCB command and query
// handler backed by svc. On failure the subscriptions made so far are
// released.
func RegisterService(adapter *RegistryAdapter, svc TransactionService, runnerOpts ...runner.Option) (Subscriptions, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: transaction service is required")
	}
	var subs Subscriptions
	register := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	steps := []func() error{
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewCreateTransactionCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewRequestStatusChangeCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewPatchItemDetailsCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewRenewCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewBlockRenewalCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewUnblockRenewalCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewHandleRequestExpiredCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewHandleItemCheckedInCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe(adapter, dcbcommand.NewBootstrapSharedResourcesCommand(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery(adapter, dcbquery.NewGetStatusQuery(svc), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery(adapter, dcbquery.NewListStatusHistoryQuery(svc), runnerOpts...))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
