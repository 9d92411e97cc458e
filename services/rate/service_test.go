package rate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, ledger.Models()...)
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Config: cfg})
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "gmail", Normalize("  Gmail "))
	require.Equal(t, "hot-mail", Normalize("Hot Mail"))
	require.Equal(t, "", Normalize("   "))
}

func TestGetRateDefault(t *testing.T) {
	svc := newTestService(t, nil)

	rate, active, err := svc.GetRate(context.Background(), "Gmail")
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, rate.Equal(decimal.NewFromInt(10)))
}

func TestGetRateUnknownCategory(t *testing.T) {
	svc := newTestService(t, nil)

	_, _, err := svc.GetRate(context.Background(), "yahoo")
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))

	_, _, err = svc.GetRate(context.Background(), "")
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestSetRateOverridesDefault(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	// warm the cache so the override has to invalidate it
	_, _, err := svc.GetRate(ctx, "gmail")
	require.NoError(t, err)

	row, err := svc.SetRate(ctx, "gmail", decimal.RequireFromString("12.5"), "old")
	require.NoError(t, err)
	require.True(t, row.IsActive)

	rate, active, err := svc.GetRate(ctx, "gmail")
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, rate.Equal(decimal.RequireFromString("12.5")))

	row, err = svc.SetRate(ctx, "gmail", decimal.NewFromInt(11), "")
	require.NoError(t, err)
	require.Equal(t, "old", row.Subcategory)

	rate, _, err = svc.GetRate(ctx, "gmail")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(11)))
}

func TestSetRateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.SetRate(ctx, "gmail", decimal.Zero, "")
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	_, err = svc.SetRate(ctx, " ", decimal.NewFromInt(1), "")
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestSetRateNewCategory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.SetRate(ctx, "Yahoo", decimal.NewFromInt(3), "")
	require.NoError(t, err)

	rate, active, err := svc.GetRate(ctx, "yahoo")
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, rate.Equal(decimal.NewFromInt(3)))
}

func TestToggleCategory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	row, err := svc.ToggleCategory(ctx, "facebook", false)
	require.NoError(t, err)
	require.False(t, row.IsActive)
	require.True(t, row.Rate.Equal(decimal.NewFromInt(8)))

	rate, active, err := svc.GetRate(ctx, "facebook")
	require.NoError(t, err)
	require.False(t, active)
	require.True(t, rate.Equal(decimal.NewFromInt(8)))

	_, err = svc.ToggleCategory(ctx, "facebook", true)
	require.NoError(t, err)
	_, active, err = svc.GetRate(ctx, "facebook")
	require.NoError(t, err)
	require.True(t, active)

	_, err = svc.ToggleCategory(ctx, "yahoo", true)
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestListRates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.SetRate(ctx, "outlook", decimal.NewFromInt(9), "")
	require.NoError(t, err)
	_, err = svc.SetRate(ctx, "yahoo", decimal.NewFromInt(2), "")
	require.NoError(t, err)

	views, err := svc.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, views, len(DefaultCategories)+1)

	byKey := map[string]RateView{}
	for i, v := range views {
		if i > 0 {
			require.Less(t, views[i-1].Category, v.Category)
		}
		byKey[v.Category] = v
	}

	require.True(t, byKey["outlook"].Overridden)
	require.True(t, byKey["outlook"].Rate.Equal(decimal.NewFromInt(9)))
	require.True(t, byKey["outlook"].DefaultRate.Equal(decimal.NewFromInt(5)))
	require.False(t, byKey["gmail"].Overridden)
	require.True(t, byKey["yahoo"].Overridden)
}

func TestConfigCategories(t *testing.T) {
	cfg := &config.Config{}
	cfg.Payout.Categories = map[string]string{
		"Gmail":  "15",
		"proton": "4",
		"broken": "abc",
	}
	svc := newTestService(t, cfg)

	defaults := svc.Defaults()
	require.True(t, defaults["gmail"].DefaultRate.Equal(decimal.NewFromInt(15)))
	require.True(t, defaults["proton"].Active)
	require.NotContains(t, defaults, "broken")
	require.True(t, DefaultCategories["gmail"].DefaultRate.Equal(decimal.NewFromInt(10)))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("gmail", entry{Rate: decimal.NewFromInt(1), Active: true, LoadedAt: time.Now()})

	v, ok := c.Get("gmail")
	require.True(t, ok)
	require.True(t, v.Rate.Equal(decimal.NewFromInt(1)))

	c.Set("gmail", entry{Rate: decimal.NewFromInt(1), LoadedAt: time.Now().Add(-time.Second)})
	_, ok = c.Get("gmail")
	require.False(t, ok)

	c.Set("gmail", entry{LoadedAt: time.Now()})
	c.Invalidate("gmail")
	_, ok = c.Get("gmail")
	require.False(t, ok)
}

func TestResolveRateBypassesCache(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t, ledger.Models()...)
	node := testutil.NewNode(t)
	svc := NewService(ServiceParams{DB: db, Node: node})
	other := NewService(ServiceParams{DB: db, Node: node})

	_, _, err := svc.GetRate(ctx, "gmail")
	require.NoError(t, err)

	_, err = other.SetRate(ctx, "gmail", decimal.NewFromInt(25), "")
	require.NoError(t, err)

	cached, _, err := svc.GetRate(ctx, "gmail")
	require.NoError(t, err)
	require.True(t, cached.Equal(decimal.NewFromInt(10)))

	fresh, active, err := svc.ResolveRate(ctx, nil, "Gmail")
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, fresh.Equal(decimal.NewFromInt(25)))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		r, _, err := svc.ResolveRate(ctx, tx, "gmail")
		require.True(t, r.Equal(decimal.NewFromInt(25)))
		return err
	}))

	r, _, err := svc.ResolveRate(ctx, nil, "facebook")
	require.NoError(t, err)
	require.True(t, r.Equal(DefaultCategories["facebook"].DefaultRate))

	_, _, err = svc.ResolveRate(ctx, nil, "yahoo")
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
	_, _, err = svc.ResolveRate(ctx, nil, " ")
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestGetRateCancelledCallerDoesNotPoisonLoad(t *testing.T) {
	svc := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.GetRate(ctx, "gmail")
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}

	r, active, err := svc.GetRate(context.Background(), "gmail")
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, r.Equal(decimal.NewFromInt(10)))
}
