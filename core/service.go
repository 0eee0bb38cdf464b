package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// TransactionService is the produced surface of the lifecycle engine.
type TransactionService interface {
	CreateTransaction(ctx context.Context, id string, req CreateTransactionRequest) (TransactionSummary, error)
	RequestStatusChange(ctx context.Context, id string, target Status) (StatusResponse, error)
	GetStatus(ctx context.Context, id string) (TransactionStatus, error)
	ListStatusHistory(ctx context.Context, query HistoryQuery) (StatusHistoryPage, error)
	PatchItemDetails(ctx context.Context, id string, barcode string) error
	Renew(ctx context.Context, id string) (RenewalInfo, error)
	BlockRenewal(ctx context.Context, id string) error
	UnblockRenewal(ctx context.Context, id string) error
	HandleRequestExpired(ctx context.Context, requestID string) error
	HandleItemCheckedIn(ctx context.Context, itemID string) error
	BootstrapSharedResources(ctx context.Context) (BootstrapReport, error)
}

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	gateway           CirculationGateway
	transactions      TransactionStore
	auditStore        AuditStore
	sharedResources   SharedResourceProvider
	bootstrapper      SharedResourceBootstrapper
	planner           StatusTransitionPlanner
	audit             auditRecorder
	clock             func() time.Time
	sleeper           Sleeper
	retryPolicy       ReadRetryPolicy
	orchestrators     map[Role]RoleOrchestrator
	selfBorrowing     map[Role]RoleOrchestrator
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Gateway           CirculationGateway
	TransactionStore  TransactionStore
	AuditStore        AuditStore
	SharedResources   SharedResourceProvider
	Bootstrapper      SharedResourceBootstrapper
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("dcb", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("dcb"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if builder.sleeper == nil {
		builder.sleeper = contextSleep
	}
	if builder.idGenerator == nil {
		builder.idGenerator = uuid.NewString
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.transactionStore == nil || builder.auditStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			applyStoreProvider(&builder, stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			applyStoreProvider(&builder, stores)
		}
	}
	if builder.transactionStore == nil || builder.auditStore == nil {
		memory := NewMemoryStore()
		if builder.transactionStore == nil {
			builder.transactionStore = memory
		}
		if builder.auditStore == nil {
			builder.auditStore = memory
		}
	}
	if builder.bootstrapper == nil {
		if bootstrapper, ok := builder.sharedResources.(SharedResourceBootstrapper); ok {
			builder.bootstrapper = bootstrapper
		}
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		gateway:           builder.gateway,
		transactions:      builder.transactionStore,
		auditStore:        builder.auditStore,
		sharedResources:   builder.sharedResources,
		bootstrapper:      builder.bootstrapper,
		planner:           StatusTransitionPlanner{},
		audit: auditRecorder{
			store: builder.auditStore,
			clock: builder.clock,
			newID: builder.idGenerator,
		},
		clock:       builder.clock,
		sleeper:     builder.sleeper,
		retryPolicy: finalConfig.ReadRetryPolicy(),
	}
	svc.registerOrchestrators()
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func applyStoreProvider(builder *serviceBuilder, stores StoreProvider) {
	if stores == nil {
		return
	}
	if builder.transactionStore == nil {
		builder.transactionStore = stores.TransactionStore()
	}
	if builder.auditStore == nil {
		builder.auditStore = stores.AuditStore()
	}
}

func (s *Service) registerOrchestrators() {
	steps := circulationSteps{
		gateway:   s.gateway,
		resources: s.sharedResources,
		retry:     s.retryPolicy,
		sleep:     s.sleeper,
		clock:     s.clock,
	}
	borrower := borrowerOrchestrator{steps: steps}
	pickup := pickupOrchestrator{steps: steps}
	s.orchestrators = map[Role]RoleOrchestrator{
		RoleLender:          lenderOrchestrator{steps: steps},
		RoleBorrower:        borrower,
		RolePickup:          pickup,
		RoleBorrowingPickup: borrowingPickupOrchestrator{borrower: borrower, pickup: pickup},
	}
	s.selfBorrowing = map[Role]RoleOrchestrator{}
	for _, role := range []Role{RoleBorrower, RolePickup, RoleBorrowingPickup} {
		s.selfBorrowing[role] = selfBorrowingOrchestrator{
			role:     role,
			steps:    steps,
			statuses: s.orchestrators[role],
		}
	}
}

// orchestratorFor selects the strategy once per request. LENDER always
// works on the real item, so the self-borrowing flag does not apply to it.
func (s *Service) orchestratorFor(role Role, selfBorrowing bool) (RoleOrchestrator, error) {
	if selfBorrowing {
		if orchestrator, ok := s.selfBorrowing[role]; ok {
			return orchestrator, nil
		}
	}
	orchestrator, ok := s.orchestrators[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return orchestrator, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Gateway:           s.gateway,
		TransactionStore:  s.transactions,
		AuditStore:        s.auditStore,
		SharedResources:   s.sharedResources,
		Bootstrapper:      s.bootstrapper,
	}
}

func (s *Service) CreateTransaction(ctx context.Context, id string, req CreateTransactionRequest) (summary TransactionSummary, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	fields := map[string]any{
		"transaction_id": id,
		"role":           string(req.Role),
		"self_borrowing": req.SelfBorrowing,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_transaction", err, fields)
	}()

	attempt := createAttempt{TransactionID: id, Request: req}
	fail := func(cause error) (TransactionSummary, error) {
		s.recordFailure(ctx, id, nil, attempt, cause)
		return TransactionSummary{}, s.mapError(cause)
	}

	if id == "" {
		return fail(fmt.Errorf("core: transaction id is required"))
	}
	if req.Role, err = ParseRole(string(req.Role)); err != nil {
		return fail(err)
	}
	fields["role"] = string(req.Role)
	if err = req.Validate(); err != nil {
		return fail(err)
	}
	exists, err := s.transactions.Exists(ctx, id)
	if err != nil {
		return fail(err)
	}
	if exists {
		return fail(fmt.Errorf("%w: %s", ErrDuplicateTransaction, id))
	}

	orchestrator, err := s.orchestratorFor(req.Role, req.SelfBorrowing)
	if err != nil {
		return fail(err)
	}
	tx, err := orchestrator.Create(ctx, id, req)
	if err != nil {
		return fail(err)
	}
	entry, err := s.audit.createEntry(tx)
	if err != nil {
		return fail(err)
	}
	stored, err := s.transactions.Create(ctx, tx, entry)
	if err != nil {
		return fail(err)
	}
	fields["request_id"] = stored.RequestID
	return TransactionSummary{Status: stored.Status, Item: stored.Item, Patron: stored.Patron}, nil
}

// RequestStatusChange walks every intermediate status between the stored
// status and target, persisting and auditing each hop before the next.
func (s *Service) RequestStatusChange(ctx context.Context, id string, target Status) (response StatusResponse, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	fields := map[string]any{
		"transaction_id": id,
		"target_status":  string(target),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "request_status_change", err, fields)
	}()

	current, err := s.transactions.Get(ctx, id)
	if err != nil {
		s.recordFailure(ctx, id, nil, statusAttempt{TransactionID: id, To: target}, err)
		return StatusResponse{}, s.mapError(err)
	}
	fields["role"] = string(current.Role)
	fields["current_status"] = string(current.Status)

	hops, err := s.planner.Plan(current.Status, target, current.Role)
	if err != nil {
		s.recordFailure(ctx, id, current, statusAttempt{TransactionID: id, From: current.Status, To: target}, err)
		return StatusResponse{}, s.mapError(err)
	}
	orchestrator, err := s.orchestratorFor(current.Role, current.SelfBorrowing)
	if err != nil {
		s.recordFailure(ctx, id, current, statusAttempt{TransactionID: id, From: current.Status, To: target}, err)
		return StatusResponse{}, s.mapError(err)
	}

	for _, next := range hops {
		if err = orchestrator.ApplyStatus(ctx, current, next); err != nil {
			s.recordFailure(ctx, id, current, statusAttempt{TransactionID: id, From: current.Status, To: next}, err)
			return StatusResponse{}, s.mapError(err)
		}
		updated, persistErr := s.persistHop(ctx, current, next)
		if persistErr != nil {
			err = persistErr
			s.recordFailure(ctx, id, current, statusAttempt{TransactionID: id, From: current.Status, To: next}, err)
			return StatusResponse{}, s.mapError(err)
		}
		current = updated
	}
	fields["hops"] = len(hops)
	return StatusResponse{Status: current.Status}, nil
}

// persistHop stores before moved to next, guarded by before's status, with
// one UPDATE entry carrying both snapshots.
func (s *Service) persistHop(ctx context.Context, before Transaction, next Status) (Transaction, error) {
	after := before.WithStatus(next, s.now())
	entry, err := s.audit.updateEntry(before, after)
	if err != nil {
		return Transaction{}, err
	}
	return s.transactions.Update(ctx, after, before.Status, entry)
}

func (s *Service) GetStatus(ctx context.Context, id string) (status TransactionStatus, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	fields := map[string]any{"transaction_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_status", err, fields)
	}()

	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return TransactionStatus{}, s.mapError(err)
	}
	fields["role"] = string(tx.Role)
	status = TransactionStatus{
		ID:            tx.ID,
		Status:        tx.Status,
		Role:          tx.Role,
		Item:          tx.Item,
		SelfBorrowing: tx.SelfBorrowing,
	}
	if tx.Status != StatusItemCheckedOut || s.gateway == nil {
		return status, nil
	}
	loan, found, err := s.gateway.FindOpenLoan(ctx, tx.Item.ID)
	if err != nil {
		return TransactionStatus{}, s.mapError(err)
	}
	if found {
		info := loan.RenewalInfo()
		status.Renewal = &info
	}
	return status, nil
}

func (s *Service) ListStatusHistory(ctx context.Context, query HistoryQuery) (page StatusHistoryPage, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"page_number": query.PageNumber,
		"page_size":   query.PageSize,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_status_history", err, fields)
	}()

	query, err = s.normalizeHistoryQuery(query)
	if err != nil {
		return StatusHistoryPage{}, s.mapError(err)
	}
	result, err := s.auditStore.ListUpdates(ctx, AuditHistoryFilter{
		From:   query.From,
		To:     query.To,
		Offset: query.PageNumber * query.PageSize,
		Limit:  query.PageSize,
	})
	if err != nil {
		return StatusHistoryPage{}, s.mapError(err)
	}

	page = StatusHistoryPage{
		Items:             make([]StatusHistoryItem, 0, len(result.Entries)),
		TotalRecords:      result.Total,
		PageNumber:        query.PageNumber,
		PageSize:          query.PageSize,
		MaximumPageNumber: maximumPageNumber(result.Total, query.PageSize),
	}
	for _, entry := range result.Entries {
		item, decodeErr := historyItemFromEntry(entry)
		if decodeErr != nil {
			err = decodeErr
			return StatusHistoryPage{}, s.mapError(err)
		}
		page.Items = append(page.Items, item)
	}
	fields["total_records"] = result.Total
	return page, nil
}

func (s *Service) normalizeHistoryQuery(query HistoryQuery) (HistoryQuery, error) {
	if query.PageNumber < 0 {
		return HistoryQuery{}, fmt.Errorf("core: page number must be zero or greater")
	}
	if query.PageSize == 0 {
		query.PageSize = s.config.History.DefaultPageSize
	}
	if query.PageSize < 1 || query.PageSize > s.config.History.MaxPageSize {
		return HistoryQuery{}, fmt.Errorf("core: page size must be between 1 and %d", s.config.History.MaxPageSize)
	}
	if query.To.IsZero() {
		query.To = s.now()
	}
	if !query.From.IsZero() && query.From.After(query.To) {
		return HistoryQuery{}, fmt.Errorf("core: history window is invalid: from is after to")
	}
	return query, nil
}

// maximumPageNumber is the last zero-based page index for total records.
func maximumPageNumber(total int, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total+pageSize-1)/pageSize - 1
}

func historyItemFromEntry(entry AuditEntry) (StatusHistoryItem, error) {
	after, err := decodeTransactionSnapshot(entry.After)
	if err != nil {
		return StatusHistoryItem{}, err
	}
	before, err := decodeTransactionSnapshot(entry.Before)
	if err != nil {
		return StatusHistoryItem{}, err
	}
	return StatusHistoryItem{
		ID:             entry.ID,
		TransactionID:  entry.TransactionID,
		Role:           after.Role,
		Status:         after.Status,
		PreviousStatus: before.Status,
		ChangedAt:      entry.CreatedAt,
	}, nil
}

// PatchItemDetails replaces the barcode of a placeholder item before the
// transaction leaves CREATED.
func (s *Service) PatchItemDetails(ctx context.Context, id string, barcode string) (err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	barcode = strings.TrimSpace(barcode)
	fields := map[string]any{"transaction_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "patch_item_details", err, fields)
	}()

	attempt := operationAttempt{
		TransactionID: id,
		Operation:     "patch_item_details",
		Details:       map[string]any{"itemBarcode": barcode},
	}
	if barcode == "" {
		err = fmt.Errorf("core: item barcode is required")
		s.recordFailure(ctx, id, nil, attempt, err)
		return s.mapError(err)
	}
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		s.recordFailure(ctx, id, nil, attempt, err)
		return s.mapError(err)
	}
	fields["role"] = string(tx.Role)
	if tx.Status != StatusCreated || !tx.UsesPlaceholderItem() {
		err = invalidStateError("patch item details", tx, "requires status CREATED on a placeholder item role")
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}
	if err = s.requireGateway(); err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}

	item, found, err := s.gateway.FindItem(ctx, tx.Item.ID)
	if err == nil && !found {
		err = fmt.Errorf("%w: item %s", ErrNotFound, tx.Item.ID)
	}
	if err == nil {
		item.Barcode = barcode
		err = s.gateway.UpdateItem(ctx, item)
	}
	if err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}

	after := tx
	after.Item.Barcode = barcode
	after.UpdatedAt = s.now()
	entry, err := s.audit.updateEntry(tx, after)
	if err == nil {
		_, err = s.transactions.Update(ctx, after, tx.Status, entry)
	}
	if err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}
	return nil
}

func (s *Service) Renew(ctx context.Context, id string) (info RenewalInfo, err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	fields := map[string]any{"transaction_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "renew", err, fields)
	}()

	attempt := operationAttempt{TransactionID: id, Operation: "renew"}
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		s.recordFailure(ctx, id, nil, attempt, err)
		return RenewalInfo{}, s.mapError(err)
	}
	fields["role"] = string(tx.Role)
	if tx.Status != StatusItemCheckedOut || tx.Role != RoleLender {
		err = invalidStateError("renew", tx, "requires status ITEM_CHECKED_OUT and role LENDER")
		s.recordFailure(ctx, id, tx, attempt, err)
		return RenewalInfo{}, s.mapError(err)
	}
	if err = s.requireGateway(); err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return RenewalInfo{}, s.mapError(err)
	}

	if _, err = s.gateway.RenewLoan(ctx, tx.Item.ID, tx.Patron.ID); err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return RenewalInfo{}, s.mapError(err)
	}
	loan, attempts, err := retryRead(ctx, s.retryPolicy, s.sleeper, OpRefetchLoanAfterRenew, func(ctx context.Context) (Loan, bool, error) {
		return s.gateway.FindOpenLoan(ctx, tx.Item.ID)
	})
	fields["read_attempts"] = attempts
	if err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return RenewalInfo{}, s.mapError(err)
	}
	return loan.RenewalInfo(), nil
}

func (s *Service) BlockRenewal(ctx context.Context, id string) error {
	return s.setRenewalBlock(ctx, id, true)
}

func (s *Service) UnblockRenewal(ctx context.Context, id string) error {
	return s.setRenewalBlock(ctx, id, false)
}

func (s *Service) setRenewalBlock(ctx context.Context, id string, blocked bool) (err error) {
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	operation := "unblock_renewal"
	if blocked {
		operation = "block_renewal"
	}
	fields := map[string]any{"transaction_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	attempt := operationAttempt{TransactionID: id, Operation: operation}
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		s.recordFailure(ctx, id, nil, attempt, err)
		return s.mapError(err)
	}
	fields["role"] = string(tx.Role)
	if tx.Status != StatusItemCheckedOut {
		err = invalidStateError(strings.ReplaceAll(operation, "_", " "), tx, "requires status ITEM_CHECKED_OUT")
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}
	if err = s.requireGateway(); err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}

	loan, found, err := s.gateway.FindOpenLoan(ctx, tx.Item.ID)
	if err == nil && !found {
		err = fmt.Errorf("%w: open loan for item %s", ErrNotFound, tx.Item.ID)
	}
	if err == nil {
		err = s.gateway.SetRenewalBlock(ctx, loan.ID, blocked)
	}
	if err != nil {
		s.recordFailure(ctx, id, tx, attempt, err)
		return s.mapError(err)
	}
	return nil
}

// HandleRequestExpired moves the transaction owning requestID from
// AWAITING_PICKUP to EXPIRED. Unknown requests and other statuses are
// ignored.
func (s *Service) HandleRequestExpired(ctx context.Context, requestID string) (err error) {
	startedAt := time.Now().UTC()
	requestID = strings.TrimSpace(requestID)
	fields := map[string]any{"request_id": requestID}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_request_expired", err, fields)
	}()

	tx, err := s.transactions.FindByRequestID(ctx, requestID)
	if errors.Is(err, ErrTransactionNotFound) {
		fields["ignored"] = "no transaction"
		return nil
	}
	if err != nil {
		return s.mapError(err)
	}
	fields["transaction_id"] = tx.ID
	fields["role"] = string(tx.Role)
	if tx.Status != StatusAwaitingPickup {
		fields["ignored"] = "status " + string(tx.Status)
		s.logWarn(ctx, "request expired event ignored", fields)
		return nil
	}
	if _, err = s.persistHop(ctx, tx, StatusExpired); err != nil {
		s.recordFailure(ctx, tx.ID, tx, statusAttempt{TransactionID: tx.ID, From: tx.Status, To: StatusExpired}, err)
		return s.mapError(err)
	}
	return nil
}

// HandleItemCheckedIn closes every EXPIRED transaction on itemID.
func (s *Service) HandleItemCheckedIn(ctx context.Context, itemID string) (err error) {
	startedAt := time.Now().UTC()
	itemID = strings.TrimSpace(itemID)
	fields := map[string]any{"item_id": itemID}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_item_checked_in", err, fields)
	}()

	expired, err := s.transactions.ListByItem(ctx, itemID, StatusExpired)
	if err != nil {
		return s.mapError(err)
	}
	fields["matched"] = len(expired)
	var failures []error
	for _, tx := range expired {
		if _, hopErr := s.persistHop(ctx, tx, StatusClosed); hopErr != nil {
			s.recordFailure(ctx, tx.ID, tx, statusAttempt{TransactionID: tx.ID, From: tx.Status, To: StatusClosed}, hopErr)
			failures = append(failures, hopErr)
		}
	}
	if len(failures) > 0 {
		err = errors.Join(failures...)
		return s.mapError(err)
	}
	return nil
}

func (s *Service) BootstrapSharedResources(ctx context.Context) (report BootstrapReport, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "bootstrap_shared_resources", err, fields)
	}()

	if s.bootstrapper == nil {
		err = fmt.Errorf("core: shared resource bootstrapper is required")
		return BootstrapReport{}, s.mapError(err)
	}
	report, err = s.bootstrapper.Bootstrap(ctx)
	fields["resources"] = len(report.Resources)
	failed := 0
	for _, item := range report.Resources {
		if item.Outcome == ResourceOutcomeError || item.Outcome == ResourceOutcomeSkipped {
			failed++
			s.logWarn(ctx, "shared resource not provisioned", map[string]any{
				"kind":    string(item.Kind),
				"outcome": string(item.Outcome),
				"error":   item.Error,
			})
		}
	}
	fields["failed"] = failed
	if err == nil && failed > 0 {
		err = fmt.Errorf("%w: %d of %d shared resources not provisioned", ErrBootstrapIncomplete, failed, len(report.Resources))
	}
	if err != nil {
		return report, s.mapError(err)
	}
	return report, nil
}

func (s *Service) requireGateway() error {
	if s.gateway == nil {
		return fmt.Errorf("core: circulation gateway is required")
	}
	return nil
}

// recordFailure appends the ERROR audit entry. A failing audit write is
// logged and never replaces the original error.
func (s *Service) recordFailure(ctx context.Context, transactionID string, before any, attempted any, cause error) {
	if beforeTx, ok := before.(Transaction); ok && beforeTx.ID == "" {
		before = nil
	}
	if err := s.audit.recordFailure(ctx, transactionID, before, attempted, cause); err != nil {
		s.logError(ctx, "audit append failed", map[string]any{
			"transaction_id": transactionID,
			"error":          err.Error(),
			"cause":          cause.Error(),
		})
	}
}

func invalidStateError(operation string, tx Transaction, rule string) error {
	return fmt.Errorf("%w: %s %s: transaction %s is %s with role %s", ErrInvalidState, operation, rule, tx.ID, tx.Status, tx.Role)
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
