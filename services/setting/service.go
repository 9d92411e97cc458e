package setting

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/featureflags"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyMaintenanceMode = "maintenance_mode"
	KeyMinWithdrawal   = "min_withdrawal_amount"
	KeyAppName         = "app_name"

	// FlagMaintenance is the Flagsmith flag that forces maintenance on.
	FlagMaintenance = "maintenance_mode"
)

func PaymentKey(method string) string {
	return fmt.Sprintf("payment_%s_active", method)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	flags featureflags.FeatureFlag

	settings repository.Repository[Setting]
	notices  repository.Repository[Notice]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Flags featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		flags:    p.Flags,
		settings: repository.ProvideStore[Setting](p.DB),
		notices:  repository.ProvideStore[Notice](p.DB),
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(Models()...)
}

// Get returns the raw setting, nil when unset.
func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	setting, err := s.settings.FindOne(ctx, &Setting{Key: key})
	if err != nil {
		return nil, errutil.Persistence("failed to load setting", err)
	}
	return setting, nil
}

// Value decodes a setting according to its data type. It returns def when
// the setting is missing or cannot be decoded.
func (s *Service) Value(ctx context.Context, key string, def any) any {
	setting, err := s.Get(ctx, key)
	if err != nil || setting == nil {
		return def
	}
	v, err := decode(setting.DataType, setting.Value)
	if err != nil {
		logger.FromContext(ctx).Warn("undecodable setting", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}

func (s *Service) Bool(ctx context.Context, key string, def bool) bool {
	if v, ok := s.Value(ctx, key, def).(bool); ok {
		return v
	}
	return def
}

func decode(t DataType, raw string) (any, error) {
	switch t {
	case TypeInteger:
		return strconv.ParseInt(raw, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case TypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "on":
			return true, nil
		}
		return false, nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return raw, nil
	}
}

func encode(t DataType, value any) (string, error) {
	switch t {
	case TypeJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	}
	return fmt.Sprint(value), nil
}

// Set upserts a typed setting.
func (s *Service) Set(ctx context.Context, key string, value any, t DataType, description string) (*Setting, error) {
	if key == "" {
		return nil, errutil.ValidationFailed("setting key is required", nil)
	}
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeJSON:
	default:
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown setting type %q", t), nil)
	}

	raw, err := encode(t, value)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid setting value", err)
	}
	if _, err := decode(t, raw); err != nil {
		return nil, errutil.ValidationFailed(fmt.Sprintf("value %q is not a valid %s", raw, t), err)
	}

	now := time.Now().UTC()
	setting := &Setting{Key: key, Value: raw, DataType: t, Description: description, CreatedAt: now, UpdatedAt: now}

	columns := []string{"value", "data_type", "updated_at"}
	if description != "" {
		columns = append(columns, "description")
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(setting).Error; err != nil {
		return nil, errutil.Persistence("failed to save setting", err)
	}

	return setting, nil
}

// SeedDefault writes a setting only when it does not exist yet.
func (s *Service) SeedDefault(ctx context.Context, key string, value any, t DataType, description string) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.Set(ctx, key, value, t, description)
	return err
}

// MaintenanceMode is on when the setting is on or the Flagsmith flag is enabled.
func (s *Service) MaintenanceMode(ctx context.Context) bool {
	if s.Bool(ctx, KeyMaintenanceMode, false) {
		return true
	}
	if s.flags == nil {
		return false
	}
	on, err := s.flags.Enabled(ctx, FlagMaintenance)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to read maintenance flag", zap.Error(err))
		return false
	}
	return on
}

func (s *Service) PaymentMethods(ctx context.Context) []PaymentMethod {
	out := make([]PaymentMethod, 0, len(DefaultPaymentMethods))
	for _, m := range DefaultPaymentMethods {
		m.Active = s.Bool(ctx, PaymentKey(m.Key), m.Active)
		out = append(out, m)
	}
	return out
}

func (s *Service) ActivePaymentMethods(ctx context.Context) []PaymentMethod {
	var out []PaymentMethod
	for _, m := range s.PaymentMethods(ctx) {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// PaymentMethod returns the catalog entry with its current activation.
func (s *Service) PaymentMethod(ctx context.Context, key string) (*PaymentMethod, error) {
	for _, m := range s.PaymentMethods(ctx) {
		if m.Key == key {
			return &m, nil
		}
	}
	return nil, errutil.NotFound(fmt.Sprintf("payment method %s not found", key), nil)
}

func (s *Service) SetPaymentMethod(ctx context.Context, key string, active bool) (*PaymentMethod, error) {
	m, err := s.PaymentMethod(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := s.Set(ctx, PaymentKey(key), active, TypeBoolean, fmt.Sprintf("Enable/disable %s payment method", m.Name)); err != nil {
		return nil, err
	}
	m.Active = active

	logger.FromContext(ctx).Info("payment method updated", zap.String("method", key), zap.Bool("active", active))
	return m, nil
}

type CreateNoticeRequest struct {
	Title        string     `json:"title" binding:"required"`
	Content      string     `json:"content" binding:"required"`
	Type         NoticeType `json:"type"`
	Audience     string     `json:"audience"`
	ExpiresHours int        `json:"expires_hours"`
	CreatedBy    string     `json:"-"`
}

func (s *Service) CreateNotice(ctx context.Context, req CreateNoticeRequest) (*Notice, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return nil, errutil.ValidationFailed("title and content are required", nil)
	}
	if req.ExpiresHours < 0 {
		return nil, errutil.ValidationFailed("expires_hours must not be negative", nil)
	}

	if req.Type == "" {
		req.Type = NoticeInfo
	}
	switch req.Type {
	case NoticeInfo, NoticeWarning, NoticeSuccess, NoticeDanger:
	default:
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown notice type %q", req.Type), nil)
	}

	if req.Audience == "" {
		req.Audience = AudienceAll
	}
	switch req.Audience {
	case AudienceAll, AudienceUsers, AudiencePremium, AudienceAdmins:
	default:
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown audience %q", req.Audience), nil)
	}

	now := time.Now().UTC()
	notice := &Notice{
		ID:        s.node.Generate().String(),
		Title:     req.Title,
		Content:   req.Content,
		Type:      req.Type,
		Audience:  req.Audience,
		IsActive:  true,
		CreatedAt: now,
	}
	if req.ExpiresHours > 0 {
		expires := now.Add(time.Duration(req.ExpiresHours) * time.Hour)
		notice.ExpiresAt = &expires
	}
	if req.CreatedBy != "" {
		notice.CreatedBy = &req.CreatedBy
	}

	if err := s.notices.Create(ctx, notice); err != nil {
		return nil, errutil.Persistence("failed to create notice", err)
	}
	return notice, nil
}

// ActiveNotices lists unexpired notices for the audience plus the ones
// addressed to everyone, newest first.
func (s *Service) ActiveNotices(ctx context.Context, audience string) ([]*Notice, error) {
	audiences := []string{AudienceAll}
	if audience != "" && audience != AudienceAll {
		audiences = append(audiences, audience)
	}

	var notices []*Notice
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("target_audience IN ?", audiences).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Order("created_at DESC").
		Find(&notices).Error
	if err != nil {
		return nil, errutil.Persistence("failed to list notices", err)
	}
	return notices, nil
}

func (s *Service) DeactivateNotice(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Notice{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return errutil.Persistence("failed to deactivate notice", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound(fmt.Sprintf("notice %s not found", id), nil)
	}
	return nil
}
