package setting

import (
	"time"
)

type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeFloat   DataType = "float"
	TypeBoolean DataType = "boolean"
	TypeJSON    DataType = "json"
)

type Setting struct {
	Key         string    `gorm:"column:key;primaryKey;size:100" json:"key"`
	Value       string    `gorm:"column:value;type:text;not null" json:"value"`
	DataType    DataType  `gorm:"column:data_type;size:16;not null" json:"data_type"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

type NoticeType string

const (
	NoticeInfo    NoticeType = "info"
	NoticeWarning NoticeType = "warning"
	NoticeSuccess NoticeType = "success"
	NoticeDanger  NoticeType = "danger"
)

const (
	AudienceAll     = "all"
	AudienceUsers   = "users"
	AudiencePremium = "premium"
	AudienceAdmins  = "admins"
)

type Notice struct {
	ID        string     `gorm:"column:id;primaryKey;size:32" json:"id"`
	Title     string     `gorm:"column:title;size:200;not null" json:"title"`
	Content   string     `gorm:"column:content;type:text;not null" json:"content"`
	Type      NoticeType `gorm:"column:notice_type;size:16;not null" json:"type"`
	Audience  string     `gorm:"column:target_audience;size:16;not null" json:"audience"`
	IsActive  bool       `gorm:"column:is_active;index;not null" json:"is_active"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedBy *string    `gorm:"column:created_by;size:32" json:"created_by,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;index" json:"created_at"`
}

// PaymentMethod is a static catalog entry. Activation lives in settings.
type PaymentMethod struct {
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Active bool     `json:"active"`
}

// DefaultPaymentMethods is the catalog with its initial activation.
var DefaultPaymentMethods = []PaymentMethod{
	{Key: "bkash", Name: "bKash", Fields: []string{"account_number"}, Active: true},
	{Key: "nagad", Name: "Nagad", Fields: []string{"account_number"}, Active: true},
	{Key: "rocket", Name: "Rocket", Fields: []string{"account_number"}, Active: true},
	{Key: "binance", Name: "Binance Pay", Fields: []string{"binance_id"}, Active: false},
	{Key: "bank", Name: "Bank Transfer", Fields: []string{"account_name", "account_number", "bank_name", "branch"}, Active: false},
}

func Models() []any {
	return []any{
		&Setting{},
		&Notice{},
	}
}
