package models

import "time"

// Record is one aggregated geo lookup persisted by an authenticated
// client. Records are append-only: no update or delete paths exist.
type Record struct {
	ID int `json:"id" gorm:"primaryKey;autoIncrement"`

	IP          string   `json:"ip" gorm:"not null"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryCode string   `json:"country_code"`
	CountryName string   `json:"country_name"`
	Capital     string   `json:"capital"`
	Currency    string   `json:"currency"`
	Languages   string   `json:"languages"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Timezone    string   `json:"timezone"`
	Population  *int64   `json:"population,omitempty"`
	AreaKm2     *float64 `json:"area_km2,omitempty"`

	// Sources lists which upstream geo APIs answered, comma-separated.
	Sources string `json:"sources"`

	// authenticatedBy: populated server-side from the request principal,
	// never trusted from the submitted payload.
	AuthEmail    string `json:"auth_email" gorm:"not null"`
	AuthProvider string `json:"auth_provider" gorm:"not null"`
	AuthSubject  string `json:"auth_subject"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Record
func (Record) TableName() string {
	return "records"
}
