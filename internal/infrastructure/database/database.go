package database

import (
	"franchisor-portal/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind PgBouncer/Supavisor.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// AutoMigrate creates the portal tables. The hosted schema is managed upstream;
// this is for local and test databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Market{},
		&domain.Property{},
		&domain.MarketUpdate{},
		&domain.User{},
		&domain.MarketUser{},
	)
}

// Pinger adapts a GORM handle to the health DBPinger.
type Pinger struct {
	DB *gorm.DB
}

func (p *Pinger) Ping() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
