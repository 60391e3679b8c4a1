package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Property is a site tracked inside a market. Optional columns are pointers.
type Property struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MarketID    uuid.UUID `gorm:"column:market_id;type:uuid;not null;index" json:"market_id"`
	Title       *string   `gorm:"column:title" json:"title"`
	Address     *string   `gorm:"column:address" json:"address"`
	City        *string   `gorm:"column:city" json:"city"`
	State       *string   `gorm:"column:state" json:"state"`
	Zip         *string   `gorm:"column:zip" json:"zip"`
	Lat         *float64  `gorm:"column:lat" json:"lat"`
	Lng         *float64  `gorm:"column:lng" json:"lng"`
	SizeSqft    *float64  `gorm:"column:size_sqft" json:"size_sqft"`
	BaseRentPsf *float64  `gorm:"column:base_rent_psf" json:"base_rent_psf"`
	ExpensesPsf *float64  `gorm:"column:expenses_psf" json:"expenses_psf"`
	Phase       string    `gorm:"column:phase;not null" json:"phase"`
	PhotoURL    *string   `gorm:"column:photo_url" json:"photo_url"`
	Notes       *string   `gorm:"column:notes" json:"notes"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Property) TableName() string {
	return "properties"
}

func (p *Property) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasLocation reports whether the property can be placed on the map.
func (p Property) HasLocation() bool {
	return p.Lat != nil && p.Lng != nil
}

// Label is the text shown on a map pin or table row: title, then address, then id.
func (p Property) Label() string {
	if p.Title != nil && *p.Title != "" {
		return *p.Title
	}
	if p.Address != nil && *p.Address != "" {
		return *p.Address
	}
	return p.ID.String()
}

// GrossRentPsf is base rent plus expenses per square foot; nil unless both are known.
func (p Property) GrossRentPsf() *float64 {
	if p.BaseRentPsf == nil || p.ExpensesPsf == nil {
		return nil
	}
	v := *p.BaseRentPsf + *p.ExpensesPsf
	return &v
}
