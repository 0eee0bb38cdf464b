package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// expirationPeriodRowID keys the single override row.
const expirationPeriodRowID = "00000000-0000-0000-0000-00000000dcb1"

const holdShelfExpiryCacheKey = "go-dcb::hold_shelf_expiry::v1"

// HoldShelfExpiryStore reads and writes the service point hold shelf
// override in dcb_service_point_expiration_periods.
type HoldShelfExpiryStore struct {
	db   *bun.DB
	repo repository.Repository[*expirationPeriodRecord]
}

func NewHoldShelfExpiryStore(db *bun.DB) (*HoldShelfExpiryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*expirationPeriodRecord](db, expirationPeriodHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid expiration period repository wiring: %w", err)
		}
	}
	return &HoldShelfExpiryStore{db: db, repo: repo}, nil
}

func (s *HoldShelfExpiryStore) Get(ctx context.Context) (core.HoldShelfExpiryPeriod, bool, error) {
	if s == nil || s.repo == nil {
		return core.HoldShelfExpiryPeriod{}, false, fmt.Errorf("sqlstore: hold shelf expiry store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.HoldShelfExpiryPeriod{}, false, err
	}
	if len(records) == 0 {
		return core.HoldShelfExpiryPeriod{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *HoldShelfExpiryStore) Put(ctx context.Context, period core.HoldShelfExpiryPeriod) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: hold shelf expiry store is not configured")
	}
	period.IntervalID = strings.TrimSpace(period.IntervalID)
	if err := (core.HoldShelfExpiryConfig{Duration: period.Duration, IntervalID: period.IntervalID}).Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, dbTx bun.Tx) error {
		exists, err := dbTx.NewSelect().
			Model((*expirationPeriodRecord)(nil)).
			Where("?TableAlias.id = ?", expirationPeriodRowID).
			Exists(ctx)
		if err != nil {
			return err
		}
		record := &expirationPeriodRecord{
			ID:         expirationPeriodRowID,
			Duration:   period.Duration,
			IntervalID: period.IntervalID,
			UpdatedAt:  now,
		}
		if !exists {
			record.CreatedAt = now
			_, err = dbTx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = dbTx.NewUpdate().
			Model(record).
			Column("duration", "interval_id", "updated_at").
			Where("id = ?", expirationPeriodRowID).
			Exec(ctx)
		return err
	})
}

type cachedExpiryPeriod struct {
	Period core.HoldShelfExpiryPeriod
	Found  bool
}

// CachedHoldShelfExpiryStore fronts a HoldShelfExpiryStore with a
// go-repository-cache service. Put invalidates the cached value.
type CachedHoldShelfExpiryStore struct {
	base  core.HoldShelfExpiryStore
	cache repositorycache.CacheService
}

func NewCachedHoldShelfExpiryStore(
	base core.HoldShelfExpiryStore,
	cacheService repositorycache.CacheService,
) (*CachedHoldShelfExpiryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base hold shelf expiry store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: hold shelf expiry cache service is required")
	}
	return &CachedHoldShelfExpiryStore{base: base, cache: cacheService}, nil
}

func (s *CachedHoldShelfExpiryStore) Get(ctx context.Context) (core.HoldShelfExpiryPeriod, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.HoldShelfExpiryPeriod{}, false, fmt.Errorf("sqlstore: cached hold shelf expiry store is not configured")
	}
	cached, err := repositorycache.GetOrFetch(ctx, s.cache, holdShelfExpiryCacheKey, func(ctx context.Context) (cachedExpiryPeriod, error) {
		period, found, fetchErr := s.base.Get(ctx)
		if fetchErr != nil {
			return cachedExpiryPeriod{}, fetchErr
		}
		return cachedExpiryPeriod{Period: period, Found: found}, nil
	})
	if err != nil {
		return core.HoldShelfExpiryPeriod{}, false, err
	}
	return cached.Period, cached.Found, nil
}

func (s *CachedHoldShelfExpiryStore) Put(ctx context.Context, period core.HoldShelfExpiryPeriod) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached hold shelf expiry store is not configured")
	}
	if err := s.base.Put(ctx, period); err != nil {
		return err
	}
	return s.cache.Delete(ctx, holdShelfExpiryCacheKey)
}
