package rate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is an entry of the static fallback table.
type Category struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	Active      bool            `json:"active"`
}

var DefaultCategories = map[string]Category{
	"gmail":     {Key: "gmail", Name: "Gmail", DefaultRate: decimal.NewFromInt(10), Active: true},
	"facebook":  {Key: "facebook", Name: "Facebook", DefaultRate: decimal.NewFromInt(8), Active: true},
	"instagram": {Key: "instagram", Name: "Instagram", DefaultRate: decimal.NewFromInt(7), Active: true},
	"tiktok":    {Key: "tiktok", Name: "TikTok", DefaultRate: decimal.NewFromInt(6), Active: true},
	"twitter":   {Key: "twitter", Name: "Twitter", DefaultRate: decimal.NewFromInt(6), Active: true},
	"outlook":   {Key: "outlook", Name: "Outlook", DefaultRate: decimal.NewFromInt(5), Active: true},
}

// RateView is a category as seen by admins: default merged with its override.
type RateView struct {
	Category    string          `json:"category"`
	Name        string          `json:"name"`
	Subcategory string          `json:"subcategory,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	IsActive    bool            `json:"is_active"`
	Overridden  bool            `json:"overridden"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}
