package dcb

import "github.com/goliatone/go-dcb/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type TransactionService = core.TransactionService

type ServiceDependencies = core.ServiceDependencies
type CirculationGateway = core.CirculationGateway
type TransactionStore = core.TransactionStore
type AuditStore = core.AuditStore
type SharedResourceProvider = core.SharedResourceProvider
type SharedResourceBootstrapper = core.SharedResourceBootstrapper
type MetricsRecorder = core.MetricsRecorder

type Role = core.Role
type Status = core.Status

type CreateTransactionRequest = core.CreateTransactionRequest
type TransactionSummary = core.TransactionSummary
type StatusResponse = core.StatusResponse
type TransactionStatus = core.TransactionStatus
type RenewalInfo = core.RenewalInfo

type HistoryQuery = core.HistoryQuery
type StatusHistoryPage = core.StatusHistoryPage

type BootstrapReport = core.BootstrapReport

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithGateway           = core.WithGateway
	WithTransactionStore  = core.WithTransactionStore
	WithAuditStore        = core.WithAuditStore
	WithSharedResources   = core.WithSharedResources
	WithBootstrapper      = core.WithBootstrapper
	WithClock             = core.WithClock
	WithSleeper           = core.WithSleeper
	WithIDGenerator       = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
