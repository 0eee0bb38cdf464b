package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Sleeper waits between read-after-write attempts.
type Sleeper func(ctx context.Context, delay time.Duration) error

type serviceBuilder struct {
	runtimeConfig     Config
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
	transactionStore  TransactionStore
	auditStore        AuditStore
	sharedResources   SharedResourceProvider
	bootstrapper      SharedResourceBootstrapper
	clock             func() time.Time
	sleeper           Sleeper
	idGenerator       func() string
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithGateway(gateway CirculationGateway) Option {
	return func(b *serviceBuilder) {
		b.gateway = gateway
	}
}

func WithTransactionStore(store TransactionStore) Option {
	return func(b *serviceBuilder) {
		b.transactionStore = store
	}
}

func WithAuditStore(store AuditStore) Option {
	return func(b *serviceBuilder) {
		b.auditStore = store
	}
}

func WithSharedResources(provider SharedResourceProvider) Option {
	return func(b *serviceBuilder) {
		b.sharedResources = provider
	}
}

func WithBootstrapper(bootstrapper SharedResourceBootstrapper) Option {
	return func(b *serviceBuilder) {
		b.bootstrapper = bootstrapper
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithSleeper(sleeper Sleeper) Option {
	return func(b *serviceBuilder) {
		b.sleeper = sleeper
	}
}

func WithIDGenerator(generator func() string) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("dcb", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           func() time.Time { return time.Now().UTC() },
		sleeper:         contextSleep,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

func contextSleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// YAMLFileConfigLoader reads raw configuration from a YAML document. A
// missing file yields an empty map unless Required is set.
type YAMLFileConfigLoader struct {
	Path     string
	Required bool
}

func (l YAMLFileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap only emits non-zero values unless includeZero is set, so
// an empty runtime layer never shadows loaded values.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.SharedResources.Verify {
		layer["shared_resources"] = map[string]any{
			"verify": cfg.SharedResources.Verify,
		}
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts > 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.Backoff > 0 {
		retry["backoff"] = cfg.Retry.Backoff
	}
	if includeZero || len(cfg.Retry.RetryableStatusCodes) > 0 {
		retry["retryable_status_codes"] = append([]int(nil), cfg.Retry.RetryableStatusCodes...)
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	holdShelf := map[string]any{}
	if includeZero || cfg.HoldShelfExpiry.Duration > 0 {
		holdShelf["duration"] = cfg.HoldShelfExpiry.Duration
	}
	if includeZero || strings.TrimSpace(cfg.HoldShelfExpiry.IntervalID) != "" {
		holdShelf["interval_id"] = cfg.HoldShelfExpiry.IntervalID
	}
	if len(holdShelf) > 0 {
		layer["hold_shelf_expiry"] = holdShelf
	}

	history := map[string]any{}
	if includeZero || cfg.History.DefaultPageSize > 0 {
		history["default_page_size"] = cfg.History.DefaultPageSize
	}
	if includeZero || cfg.History.MaxPageSize > 0 {
		history["max_page_size"] = cfg.History.MaxPageSize
	}
	if len(history) > 0 {
		layer["history"] = history
	}

	gateway := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Gateway.BaseURL) != "" {
		gateway["base_url"] = cfg.Gateway.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.Tenant) != "" {
		gateway["tenant"] = cfg.Gateway.Tenant
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.Token) != "" {
		gateway["token"] = cfg.Gateway.Token
	}
	if includeZero || cfg.Gateway.Timeout > 0 {
		gateway["timeout"] = cfg.Gateway.Timeout
	}
	if len(gateway) > 0 {
		layer["gateway"] = gateway
	}

	events := map[string]any{}
	if includeZero || len(cfg.Events.Brokers) > 0 {
		events["brokers"] = append([]string(nil), cfg.Events.Brokers...)
	}
	if includeZero || strings.TrimSpace(cfg.Events.GroupID) != "" {
		events["group_id"] = cfg.Events.GroupID
	}
	if includeZero || len(cfg.Events.Topics) > 0 {
		events["topics"] = append([]string(nil), cfg.Events.Topics...)
	}
	if includeZero || strings.TrimSpace(cfg.Events.RequestTopicSuffix) != "" {
		events["request_topic_suffix"] = cfg.Events.RequestTopicSuffix
	}
	if includeZero || strings.TrimSpace(cfg.Events.CheckInTopicSuffix) != "" {
		events["check_in_topic_suffix"] = cfg.Events.CheckInTopicSuffix
	}
	if len(events) > 0 {
		layer["events"] = events
	}
	return layer
}
