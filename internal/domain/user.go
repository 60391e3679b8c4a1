package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleFranchisee is both the membership role and the user role of a franchisee.
const RoleFranchisee = "franchisee"

// User is a portal user record. Franchisees are read-only from the portal.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"column:email;not null" json:"email"`
	FullName  *string   `gorm:"column:full_name" json:"full_name"`
	Phone     *string   `gorm:"column:phone" json:"phone"`
	Role      string    `gorm:"column:role;not null" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// MarketUser links a user to a market with a membership role.
type MarketUser struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MarketID  uuid.UUID `gorm:"column:market_id;type:uuid;not null;index" json:"market_id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Role      string    `gorm:"column:role;not null" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (MarketUser) TableName() string {
	return "market_users"
}

func (mu *MarketUser) BeforeCreate(tx *gorm.DB) error {
	if mu.ID == uuid.Nil {
		mu.ID = uuid.New()
	}
	return nil
}
