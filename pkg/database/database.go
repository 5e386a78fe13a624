package database

import (
	"covfuzz/config"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DBParams struct {
	fx.In

	AppConfig *config.AppConfig
	Logger    *zap.Logger
}

// NewDBConnection connects to DATABASE_URL and migrates the run tables.
// It returns a nil handle when no database is configured.
func NewDBConnection(p DBParams) (*gorm.DB, error) {
	if p.AppConfig.DatabaseURL == "" {
		p.Logger.Debug("no database configured")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(p.AppConfig.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &Seed{}, &Crash{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	p.Logger.Debug("connected to database")
	return db, nil
}
