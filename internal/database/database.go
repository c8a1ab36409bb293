package database

import (
	"fmt"

	"github.com/konsulin-care/focus/internal/config"
	logging "github.com/konsulin-care/focus/internal/logging"
	"github.com/konsulin-care/focus/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres and runs the migrations.
func Open(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logging.NewGormZapLogger(log, logger.Warn)

	db, err := gorm.Open(postgres.Open(dbConf.DSN()+" TimeZone=UTC"), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("host", dbConf.Host), zap.String("dbname", dbConf.DBName))

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the session, event and result tables.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	// AutoMigrate creates tables, columns and the tagged indexes.
	err := db.AutoMigrate(
		&models.CPTSession{},
		&models.CPTEvent{},
		&models.CPTResult{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	resultsIndex := `CREATE INDEX IF NOT EXISTS idx_cpt_results_created ON cpt_results (created_at DESC);`
	if err := db.Exec(resultsIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on results table: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
