package rate

import (
	"context"
	"sort"
	"strings"
	"time"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const defaultCacheTTL = time.Minute

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	repo     repository.Repository[ledger.CategoryRate]
	defaults map[string]Category
	cache    *Cache
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	defaults := make(map[string]Category, len(DefaultCategories))
	for k, v := range DefaultCategories {
		defaults[k] = v
	}

	if p.Config != nil {
		for key, raw := range p.Config.Payout.Categories {
			r, err := decimal.NewFromString(raw)
			if err != nil || !r.IsPositive() {
				zap.L().Warn("ignoring invalid category rate from config", zap.String("category", key), zap.String("rate", raw))
				continue
			}
			key = Normalize(key)
			c, ok := defaults[key]
			if !ok {
				c = Category{Key: key, Name: key, Active: true}
			}
			c.DefaultRate = r
			defaults[key] = c
		}
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		repo:     repository.ProvideStore[ledger.CategoryRate](p.DB),
		defaults: defaults,
		cache:    NewCache(defaultCacheTTL),
	}
}

// Normalize turns a category label into its storage key.
func Normalize(category string) string {
	return slug.Make(strings.TrimSpace(category))
}

// GetRate resolves the per-item rate of a category: the override row when
// one exists, the static default otherwise.
func (s *Service) GetRate(ctx context.Context, category string) (decimal.Decimal, bool, error) {
	key := Normalize(category)
	if key == "" {
		return decimal.Zero, false, errutil.ValidationFailed("category is required", nil)
	}

	if e, ok := s.cache.Get(key); ok {
		return e.Rate, e.Active, nil
	}

	// The shared load outlives any single caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.resolve(loadCtx, nil, key)
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, false, res.Err
		}
		e := res.Val.(entry)
		s.cache.Set(key, e)
		return e.Rate, e.Active, nil
	}
}

// ResolveRate reads the category rate straight from the store, bypassing the
// cache. With a non-nil tx the read joins that transaction, so money is
// priced from the row in effect when the transaction runs.
func (s *Service) ResolveRate(ctx context.Context, tx *gorm.DB, category string) (decimal.Decimal, bool, error) {
	key := Normalize(category)
	if key == "" {
		return decimal.Zero, false, errutil.ValidationFailed("category is required", nil)
	}
	e, err := s.resolve(ctx, tx, key)
	if err != nil {
		return decimal.Zero, false, err
	}
	return e.Rate, e.Active, nil
}

func (s *Service) resolve(ctx context.Context, tx *gorm.DB, key string) (entry, error) {
	row, err := s.repo.WithTrx(tx).FindOne(ctx, &ledger.CategoryRate{Category: key})
	if err != nil {
		logger.FromContext(ctx).Error("failed to query category rate", zap.String("category", key), zap.Error(err))
		return entry{}, errutil.Persistence("failed to load category rate", err)
	}
	if row != nil {
		return entry{Rate: row.Rate, Active: row.IsActive, LoadedAt: time.Now()}, nil
	}

	def, ok := s.defaults[key]
	if !ok {
		return entry{}, errutil.NotFound("unknown category "+key, nil)
	}
	return entry{Rate: def.DefaultRate, Active: def.Active, LoadedAt: time.Now()}, nil
}

// SetRate creates or replaces the override of a category.
func (s *Service) SetRate(ctx context.Context, category string, rate decimal.Decimal, subcategory string) (*ledger.CategoryRate, error) {
	key := Normalize(category)
	if key == "" {
		return nil, errutil.ValidationFailed("category is required", nil)
	}
	if !rate.IsPositive() {
		return nil, errutil.ValidationFailed("rate must be greater than zero", nil)
	}

	row, err := s.upsert(ctx, key, func(r *ledger.CategoryRate, created bool) {
		r.Rate = rate
		if subcategory != "" {
			r.Subcategory = subcategory
		}
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("category rate updated", zap.String("category", key), zap.String("rate", rate.String()))
	return row, nil
}

// ToggleCategory flips the active flag, creating an override at the default
// rate when the category had none.
func (s *Service) ToggleCategory(ctx context.Context, category string, active bool) (*ledger.CategoryRate, error) {
	key := Normalize(category)
	if _, known := s.defaults[key]; !known {
		existing, err := s.repo.FindOne(ctx, &ledger.CategoryRate{Category: key})
		if err != nil {
			return nil, errutil.Persistence("failed to load category rate", err)
		}
		if existing == nil {
			return nil, errutil.NotFound("unknown category "+key, nil)
		}
	}

	return s.upsert(ctx, key, func(r *ledger.CategoryRate, created bool) {
		r.IsActive = active
	})
}

func (s *Service) upsert(ctx context.Context, key string, mutate func(r *ledger.CategoryRate, created bool)) (*ledger.CategoryRate, error) {
	defer s.cache.Invalidate(key)

	var out *ledger.CategoryRate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		row, err := repo.FindOne(ctx, &ledger.CategoryRate{Category: key})
		if err != nil {
			return err
		}

		if row == nil {
			def := s.defaults[key]
			row = &ledger.CategoryRate{
				ID:       s.node.Generate().String(),
				Category: key,
				Rate:     def.DefaultRate,
				IsActive: true,
			}
			if _, ok := s.defaults[key]; ok {
				row.IsActive = def.Active
			}
			mutate(row, true)
			out = row
			return repo.Create(ctx, row)
		}

		mutate(row, false)
		out = row
		return tx.Model(&ledger.CategoryRate{}).Where("id = ?", row.ID).Updates(map[string]any{
			"rate":        row.Rate,
			"subcategory": row.Subcategory,
			"is_active":   row.IsActive,
			"updated_at":  time.Now(),
		}).Error
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert category rate", zap.String("category", key), zap.Error(err))
		return nil, errutil.Wrap("failed to save category rate", err)
	}

	return out, nil
}

// ListRates merges the static table with stored overrides.
func (s *Service) ListRates(ctx context.Context) ([]RateView, error) {
	rows, err := s.repo.Find(ctx, nil)
	if err != nil {
		return nil, errutil.Persistence("failed to list category rates", err)
	}

	views := make(map[string]RateView, len(s.defaults)+len(rows))
	for key, def := range s.defaults {
		views[key] = RateView{
			Category:    key,
			Name:        def.Name,
			Rate:        def.DefaultRate,
			DefaultRate: def.DefaultRate,
			IsActive:    def.Active,
		}
	}
	for _, row := range rows {
		v, ok := views[row.Category]
		if !ok {
			v = RateView{Category: row.Category, Name: row.Category}
		}
		updated := row.UpdatedAt
		v.Rate = row.Rate
		v.Subcategory = row.Subcategory
		v.IsActive = row.IsActive
		v.Overridden = true
		v.UpdatedAt = &updated
		views[row.Category] = v
	}

	out := make([]RateView, 0, len(views))
	for _, v := range views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Defaults returns a copy of the static table in effect.
func (s *Service) Defaults() map[string]Category {
	out := make(map[string]Category, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	return out
}
