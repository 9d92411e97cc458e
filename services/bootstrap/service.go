package bootstrap

import (
	"context"
	"fmt"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/pkg/sequence"
	"payout-controlplane/services/account"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/setting"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	seq      sequence.Generator
	config   *config.Config
	ledger   *ledger.Service
	settings *setting.Service
	accounts *account.Service
	users    repository.Repository[ledger.User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Seq      sequence.Generator
	Config   *config.Config
	Ledger   *ledger.Service
	Settings *setting.Service
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		seq:      p.Seq,
		config:   p.Config,
		ledger:   p.Ledger,
		settings: p.Settings,
		accounts: p.Accounts,
		users:    repository.ProvideStore[ledger.User](p.DB),
	}
}

// Run migrates the schema and seeds everything a fresh installation needs.
// Every step is idempotent.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ledger.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	if err := s.settings.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}
	if err := s.SeedSettings(ctx); err != nil {
		return err
	}
	if err := s.SeedAdmin(ctx); err != nil {
		return err
	}
	return s.SeedSequence(ctx)
}

func (s *Service) SeedSettings(ctx context.Context) error {
	if err := s.settings.SeedDefault(ctx, setting.KeyMaintenanceMode, false, setting.TypeBoolean, "Blocks new submissions while on"); err != nil {
		return fmt.Errorf("seed maintenance mode: %w", err)
	}
	if s.config.AppName != "" {
		if err := s.settings.SeedDefault(ctx, setting.KeyAppName, s.config.AppName, setting.TypeString, "Display name"); err != nil {
			return fmt.Errorf("seed app name: %w", err)
		}
	}
	for _, m := range setting.DefaultPaymentMethods {
		if err := s.settings.SeedDefault(ctx, setting.PaymentKey(m.Key), m.Active, setting.TypeBoolean, m.Name+" payouts"); err != nil {
			return fmt.Errorf("seed payment method %s: %w", m.Key, err)
		}
	}
	return nil
}

// SeedAdmin creates the configured admin account once. Nothing happens when
// no admin username is configured or an admin already exists.
func (s *Service) SeedAdmin(ctx context.Context) error {
	admin := s.config.Admin
	if admin.Username == "" {
		zap.L().Info("[bootstrap] no admin configured, skipping")
		return nil
	}

	existing, err := s.users.FindOne(ctx, &ledger.User{IsAdmin: true})
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if existing != nil {
		zap.L().Info("[bootstrap] admin already exists", zap.String("username", existing.Username))
		return nil
	}

	res, err := s.accounts.Register(ctx, account.RegisterRequest{
		Username:   admin.Username,
		Password:   admin.Password,
		TelegramID: admin.TelegramID,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	if err := s.users.Update(ctx, res.User.ID, map[string]any{"is_admin": true}); err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}

	zap.L().Info("[bootstrap] admin created", zap.String("username", admin.Username), zap.String("user_id", res.User.ID))
	return nil
}

// SeedSequence raises the submission counter above the highest stored
// sequence, so a flushed counter store never hands out a used number.
func (s *Service) SeedSequence(ctx context.Context) error {
	var highest int64
	if err := s.db.WithContext(ctx).Model(&ledger.Submission{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&highest).Error; err != nil {
		return fmt.Errorf("read highest sequence: %w", err)
	}

	if err := s.seq.SeedSubmissionSequence(ctx, highest); err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	zap.L().Info("[bootstrap] submission sequence seeded", zap.Int64("floor", highest))
	return nil
}
