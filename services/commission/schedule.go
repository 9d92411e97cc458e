package commission

import (
	"fmt"
	"strconv"

	"payout-controlplane/pkg/config"

	"github.com/shopspring/decimal"
)

// Schedule is the static commission configuration handed to the engine.
type Schedule struct {
	MaxLevels     int
	Rates         map[int]decimal.Decimal
	ReferralBonus decimal.Decimal
}

func DefaultSchedule() Schedule {
	return Schedule{
		MaxLevels: 5,
		Rates: map[int]decimal.Decimal{
			1: decimal.RequireFromString("0.10"),
			2: decimal.RequireFromString("0.05"),
			3: decimal.RequireFromString("0.03"),
			4: decimal.RequireFromString("0.02"),
			5: decimal.RequireFromString("0.01"),
		},
		ReferralBonus: decimal.NewFromInt(20),
	}
}

// RateFor returns the configured fraction of a level, zero when unset.
func (s Schedule) RateFor(level int) decimal.Decimal {
	if r, ok := s.Rates[level]; ok {
		return r
	}
	return decimal.Zero
}

func (s Schedule) Validate() error {
	if s.MaxLevels < 0 {
		return fmt.Errorf("max levels must not be negative")
	}
	for level, r := range s.Rates {
		if level < 1 {
			return fmt.Errorf("level %d: levels start at 1", level)
		}
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("level %d: rate %s outside [0, 1]", level, r)
		}
	}
	if s.ReferralBonus.IsNegative() {
		return fmt.Errorf("referral bonus must not be negative")
	}
	return nil
}

// ProvideSchedule overlays PAYOUT settings from the config on DefaultSchedule.
func ProvideSchedule(cfg *config.Config) (Schedule, error) {
	s := DefaultSchedule()
	if cfg == nil {
		return s, nil
	}

	p := cfg.Payout
	if p.MaxLevels > 0 {
		s.MaxLevels = p.MaxLevels
	}

	if len(p.CommissionRates) > 0 {
		rates := make(map[int]decimal.Decimal, len(p.CommissionRates))
		for k, v := range p.CommissionRates {
			level, err := strconv.Atoi(k)
			if err != nil {
				return Schedule{}, fmt.Errorf("commission rate key %q: %w", k, err)
			}
			r, err := decimal.NewFromString(v)
			if err != nil {
				return Schedule{}, fmt.Errorf("commission rate level %d: %w", level, err)
			}
			rates[level] = r
		}
		s.Rates = rates
	}

	if p.ReferralBonus != "" {
		b, err := decimal.NewFromString(p.ReferralBonus)
		if err != nil {
			return Schedule{}, fmt.Errorf("referral bonus: %w", err)
		}
		s.ReferralBonus = b
	}

	return s, s.Validate()
}
