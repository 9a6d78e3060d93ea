package model

import (
	"time"

	"gorm.io/datatypes"
)

// Token is catalog metadata for one SPL token, keyed by mint address.
type Token struct {
	Address     string   `gorm:"primaryKey;type:varchar(64)" json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `gorm:"index" json:"symbol"`
	Decimals    *int     `json:"decimals"`
	DailyVolume *float64 `json:"daily_volume,omitempty"`
	// ListedAt is the upstream created_at, not the row creation time.
	ListedAt *time.Time     `gorm:"column:created_at" json:"created_at,omitempty"`
	FullData datatypes.JSON `json:"-"`
}

// TableName pins the collection name.
func (Token) TableName() string {
	return "tokens"
}

// ValidDecimals reports whether the token carries a usable precision.
func (t *Token) ValidDecimals() bool {
	return t != nil && t.Decimals != nil && *t.Decimals >= 0
}
