package resources

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/goliatone/go-dcb/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultHoldShelfDuration = 10
	defaultHoldShelfInterval = "Days"
)

type Config struct {
	// Verify resolves records live instead of trusting the canonical
	// defaults.
	Verify          bool
	HoldShelfExpiry core.HoldShelfExpiryPeriod
}

func ConfigFromCore(cfg core.Config) Config {
	return Config{
		Verify:          cfg.SharedResources.Verify,
		HoldShelfExpiry: cfg.HoldShelfExpiry.Period(),
	}
}

type Option func(*Resolver)

func WithConfig(cfg Config) Option {
	return func(r *Resolver) {
		r.config = cfg
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithHoldShelfExpiryStore(store core.HoldShelfExpiryStore) Option {
	return func(r *Resolver) {
		r.expiry = store
	}
}

// Resolver provisions and resolves the virtual library records that host
// placeholder items. It implements core.SharedResourceProvider and
// core.SharedResourceBootstrapper.
type Resolver struct {
	gateway    core.CirculationGateway
	config     Config
	expiry     core.HoldShelfExpiryStore
	logger     core.Logger
	strategies map[core.RecordKind]Strategy[core.Record]
	order      []core.RecordKind
	mu         sync.Mutex
}

func NewResolver(gateway core.CirculationGateway, opts ...Option) (*Resolver, error) {
	if gateway == nil {
		return nil, fmt.Errorf("resources: circulation gateway is required")
	}
	r := &Resolver{gateway: gateway}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	_, logger := glog.Resolve("dcb.resources", nil, r.logger)
	r.logger = glog.Ensure(logger)

	r.strategies = r.buildStrategies()
	order, err := topologicalOrder(r.strategies, declaredOrder)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// Order returns the bootstrap order.
func (r *Resolver) Order() []core.RecordKind {
	return slices.Clone(r.order)
}

// Resolve returns the shared record of kind. Fast mode answers from the
// canonical defaults; verified mode resolves its dependencies and then finds
// or creates it on the platform.
func (r *Resolver) Resolve(ctx context.Context, kind core.RecordKind) (core.Record, error) {
	strategy, ok := r.strategies[kind]
	if !ok {
		return core.Record{}, fmt.Errorf("%w: %s is not a shared resource", core.ErrNotFound, kind)
	}
	if !r.config.Verify {
		record, _ := strategy.Fallback()
		return record, nil
	}
	record, _, err := r.resolveLive(ctx, kind, map[core.RecordKind]bool{})
	return record, err
}

func (r *Resolver) resolveLive(ctx context.Context, kind core.RecordKind, visiting map[core.RecordKind]bool) (core.Record, core.ResourceOutcome, error) {
	if visiting[kind] {
		return core.Record{}, core.ResourceOutcomeError, fmt.Errorf("resources: dependency cycle at %s", kind)
	}
	visiting[kind] = true
	defer delete(visiting, kind)

	strategy := r.strategies[kind]
	deps := Dependencies{}
	for _, dep := range strategy.DependsOn {
		record, _, err := r.resolveLive(ctx, dep, visiting)
		if err != nil {
			return core.Record{}, core.ResourceOutcomeError, err
		}
		deps[dep] = record
	}
	return strategy.FindOrCreate(ctx, deps)
}

// Bootstrap provisions every shared resource in dependency order. Each
// resource is reported on its own; dependents of a failure are SKIPPED. A
// report with failures comes back with an ErrBootstrapIncomplete error.
func (r *Resolver) Bootstrap(ctx context.Context) (core.BootstrapReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := core.BootstrapReport{Resources: make([]core.ResourceReport, 0, len(r.order))}
	provisioned := Dependencies{}
	var failures []error
	for _, kind := range r.order {
		strategy := r.strategies[kind]
		entry := core.ResourceReport{Kind: kind}

		deps := Dependencies{}
		var missing core.RecordKind
		for _, dep := range strategy.DependsOn {
			record, ok := provisioned[dep]
			if !ok {
				missing = dep
				break
			}
			deps[dep] = record
		}
		if missing != "" {
			entry.Outcome = core.ResourceOutcomeSkipped
			entry.Error = fmt.Sprintf("dependency %s was not provisioned", missing)
			r.logger.Warn("shared resource skipped", "kind", string(kind), "dependency", string(missing))
			failures = append(failures, fmt.Errorf("%s: %s", kind, entry.Error))
			report.Resources = append(report.Resources, entry)
			continue
		}

		record, outcome, err := strategy.FindOrCreate(ctx, deps)
		entry.Outcome = outcome
		if err != nil {
			entry.Outcome = core.ResourceOutcomeError
			entry.Error = err.Error()
			r.logger.Error("shared resource provisioning failed", "kind", string(kind), "error", err.Error())
			failures = append(failures, fmt.Errorf("%s: %w", kind, err))
			report.Resources = append(report.Resources, entry)
			continue
		}
		entry.ID = strategy.Identity(record)
		provisioned[kind] = record
		r.logger.Info("shared resource ready", "kind", string(kind), "outcome", string(outcome), "id", entry.ID)
		report.Resources = append(report.Resources, entry)
	}
	if len(failures) > 0 {
		return report, fmt.Errorf("%w: %w", core.ErrBootstrapIncomplete, errors.Join(failures...))
	}
	return report, nil
}

// HoldShelfExpiry returns the stored override, falling back to configuration
// and then to 10 Days.
func (r *Resolver) HoldShelfExpiry(ctx context.Context) core.HoldShelfExpiryPeriod {
	if r.expiry != nil {
		period, found, err := r.expiry.Get(ctx)
		if err != nil {
			r.logger.Warn("hold shelf expiry lookup failed", "error", err.Error())
		} else if found {
			return period
		}
	}
	if r.config.HoldShelfExpiry.Duration > 0 && r.config.HoldShelfExpiry.IntervalID != "" {
		return r.config.HoldShelfExpiry
	}
	return core.HoldShelfExpiryPeriod{Duration: defaultHoldShelfDuration, IntervalID: defaultHoldShelfInterval}
}

var declaredOrder = []core.RecordKind{
	core.RecordServicePoint,
	core.RecordCalendar,
	core.RecordInstitution,
	core.RecordCampus,
	core.RecordLibrary,
	core.RecordLocation,
	core.RecordInstanceType,
	core.RecordInstance,
	core.RecordHoldingsSource,
	core.RecordHolding,
	core.RecordLoanType,
	core.RecordCancellationReason,
}

func (r *Resolver) buildStrategies() map[core.RecordKind]Strategy[core.Record] {
	strategies := map[core.RecordKind]Strategy[core.Record]{}
	add := func(kind core.RecordKind, dependsOn []core.RecordKind, build func(ctx context.Context, deps Dependencies) core.Record) {
		strategies[kind] = r.recordStrategy(kind, dependsOn, build)
	}

	add(core.RecordServicePoint, nil, func(ctx context.Context, _ Dependencies) core.Record {
		record, _ := DefaultRecord(core.RecordServicePoint)
		period := r.HoldShelfExpiry(ctx)
		record.Fields[FieldHoldShelfExpiry] = map[string]any{
			"duration":   period.Duration,
			"intervalId": period.IntervalID,
		}
		return record
	})
	add(core.RecordCalendar, []core.RecordKind{core.RecordServicePoint}, func(_ context.Context, deps Dependencies) core.Record {
		record, _ := DefaultRecord(core.RecordCalendar)
		record.Fields[FieldServicePointID] = deps[core.RecordServicePoint].ID
		return record
	})
	add(core.RecordInstitution, nil, staticBuild(core.RecordInstitution))
	add(core.RecordCampus, []core.RecordKind{core.RecordInstitution}, func(_ context.Context, deps Dependencies) core.Record {
		record, _ := DefaultRecord(core.RecordCampus)
		record.Fields[FieldInstitutionID] = deps[core.RecordInstitution].ID
		return record
	})
	add(core.RecordLibrary, []core.RecordKind{core.RecordCampus}, func(_ context.Context, deps Dependencies) core.Record {
		record, _ := DefaultRecord(core.RecordLibrary)
		record.Fields[FieldCampusID] = deps[core.RecordCampus].ID
		return record
	})
	add(core.RecordLocation,
		[]core.RecordKind{core.RecordInstitution, core.RecordCampus, core.RecordLibrary, core.RecordServicePoint},
		func(_ context.Context, deps Dependencies) core.Record {
			record, _ := DefaultRecord(core.RecordLocation)
			servicePoint := deps[core.RecordServicePoint].ID
			record.Fields[FieldInstitutionID] = deps[core.RecordInstitution].ID
			record.Fields[FieldCampusID] = deps[core.RecordCampus].ID
			record.Fields[FieldLibraryID] = deps[core.RecordLibrary].ID
			record.Fields[FieldPrimaryServicePoint] = servicePoint
			record.Fields[FieldServicePointIDs] = []string{servicePoint}
			return record
		})
	add(core.RecordInstanceType, nil, staticBuild(core.RecordInstanceType))
	add(core.RecordInstance, []core.RecordKind{core.RecordInstanceType}, func(_ context.Context, deps Dependencies) core.Record {
		record, _ := DefaultRecord(core.RecordInstance)
		record.Fields[FieldInstanceTypeID] = deps[core.RecordInstanceType].ID
		return record
	})
	add(core.RecordHoldingsSource, nil, staticBuild(core.RecordHoldingsSource))
	add(core.RecordHolding,
		[]core.RecordKind{core.RecordHoldingsSource, core.RecordInstance, core.RecordLocation},
		func(_ context.Context, deps Dependencies) core.Record {
			record, _ := DefaultRecord(core.RecordHolding)
			record.Fields[FieldInstanceID] = deps[core.RecordInstance].ID
			record.Fields[FieldPermanentLocationID] = deps[core.RecordLocation].ID
			record.Fields[FieldSourceID] = deps[core.RecordHoldingsSource].ID
			return record
		})
	add(core.RecordLoanType, nil, staticBuild(core.RecordLoanType))
	add(core.RecordCancellationReason, nil, staticBuild(core.RecordCancellationReason))
	return strategies
}

func staticBuild(kind core.RecordKind) func(context.Context, Dependencies) core.Record {
	return func(context.Context, Dependencies) core.Record {
		record, _ := DefaultRecord(kind)
		return record
	}
}

// recordStrategy finds the record by its well-known id and creates it from
// build when absent.
func (r *Resolver) recordStrategy(
	kind core.RecordKind,
	dependsOn []core.RecordKind,
	build func(ctx context.Context, deps Dependencies) core.Record,
) Strategy[core.Record] {
	canonical, _ := DefaultRecord(kind)
	return Strategy[core.Record]{
		Kind:      kind,
		DependsOn: dependsOn,
		Find: func(ctx context.Context, _ Dependencies) (core.Record, bool, error) {
			return r.gateway.FindRecord(ctx, kind, fieldID, canonical.ID)
		},
		Create: func(ctx context.Context, deps Dependencies) (core.Record, error) {
			record := build(ctx, deps)
			if record.Fields == nil {
				record.Fields = map[string]any{}
			}
			return r.gateway.CreateRecord(ctx, kind, record)
		},
		Default: func() core.Record {
			record, _ := DefaultRecord(kind)
			return record
		},
		ID: func(record core.Record) string {
			return record.ID
		},
	}
}

// topologicalOrder sorts kinds so every dependency precedes its dependents,
// keeping declared order among independent kinds.
func topologicalOrder(strategies map[core.RecordKind]Strategy[core.Record], declared []core.RecordKind) ([]core.RecordKind, error) {
	placed := map[core.RecordKind]bool{}
	order := make([]core.RecordKind, 0, len(declared))
	for len(order) < len(declared) {
		progressed := false
		for _, kind := range declared {
			if placed[kind] {
				continue
			}
			ready := true
			for _, dep := range strategies[kind].DependsOn {
				if _, known := strategies[dep]; !known {
					return nil, fmt.Errorf("resources: %s depends on unknown %s", kind, dep)
				}
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[kind] = true
				order = append(order, kind)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("resources: shared resource dependencies form a cycle")
		}
	}
	return order, nil
}
