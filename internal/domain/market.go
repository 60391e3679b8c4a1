package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Market is a franchise territory owned by exactly one client.
type Market struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID      `gorm:"column:client_id;type:uuid;not null;index" json:"client_id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Territory datatypes.JSON `gorm:"column:territory;type:jsonb" json:"territory,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Market) TableName() string {
	return "markets"
}

// BeforeCreate sets id if not already set (DBs without gen_random_uuid).
func (m *Market) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MarketWithDetails is the market row plus the aggregates shown on the markets table.
type MarketWithDetails struct {
	Market
	PropertyCount int      `json:"propertyCount"`
	Phases        []string `json:"phases"`
	Franchisees   []User   `json:"franchisees"`
}

// FurthestPhase returns the single phase shown for the market, or "" when it has none.
func (m MarketWithDetails) FurthestPhase() string {
	if len(m.Phases) == 0 {
		return ""
	}
	return m.Phases[0]
}

// MarketPropertyCount is one row of the per-market breakdown on the dashboard.
type MarketPropertyCount struct {
	MarketID uuid.UUID `json:"market_id"`
	Name     string    `json:"name"`
	Count    int       `json:"count"`
}

// DashboardStats is the read-only summary rendered on the dashboard page.
type DashboardStats struct {
	TotalMarkets       int                   `json:"totalMarkets"`
	TotalProperties    int                   `json:"totalProperties"`
	RecentProperties   []Property            `json:"recentProperties"`
	PropertiesByMarket []MarketPropertyCount `json:"propertiesByMarket"`
}
