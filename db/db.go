package db

import (
	"fmt"

	"github.com/CodyKolby/copywritely-ai-sub001/models"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the database connection. The handle is owned by main and
// injected into the stores; there is no package-level connection.
func Connect(dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         utils.GetGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	utils.LogSuccess("Database connection successful")
	return database, nil
}

// Migrate creates or updates the entitlement tables.
func Migrate(database *gorm.DB) error {
	err := database.AutoMigrate(
		&models.Profile{},
		&models.PaymentLog{},
		&models.UnprocessedPayment{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
