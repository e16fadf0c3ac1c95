package models

import "time"

// ConsumedCode marks an authorization code that has already been sent
// to the provider. Codes are single-use: a replayed code is rejected
// locally without another outbound exchange attempt.
type ConsumedCode struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"code" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
}

// TableName specifies the table name for ConsumedCode
func (ConsumedCode) TableName() string {
	return "consumed_codes"
}
