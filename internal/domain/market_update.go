package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MarketUpdate is a free-text note posted against a market. Edits overwrite in place.
type MarketUpdate struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MarketID  uuid.UUID `gorm:"column:market_id;type:uuid;not null;index" json:"market_id"`
	Author    string    `gorm:"column:author;not null" json:"author"`
	Message   string    `gorm:"column:message;not null" json:"message"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (MarketUpdate) TableName() string {
	return "market_updates"
}

func (u *MarketUpdate) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
