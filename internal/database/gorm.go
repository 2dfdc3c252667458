package database

import (
	"errors"
	"fmt"
	"strings"

	"escalafin-messaging/internal/config"
	"escalafin-messaging/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// activeConversationIndex enforces at most one ACTIVE conversation per client.
const activeConversationIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_active_client
	ON conversations (client_id) WHERE status = 'ACTIVE'`

// Open connects to the configured dialect.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(PostgresDSN(cfg))
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newZapLogger(log, gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// every pooled connection to :memory: would otherwise see its own empty database
		if strings.Contains(cfg.Path, ":memory:") {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	log.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// PostgresDSN builds a libpq keyword/value connection string.
func PostgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
}

// Migrate creates or updates every table and the active-conversation index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := db.Exec(activeConversationIndex).Error; err != nil {
		return fmt.Errorf("create active conversation index: %w", err)
	}
	return nil
}

// SeedProviderConfig stores the WAHA_* environment values as the active provider
// configuration when the table has no active row yet. An existing row always wins.
func SeedProviderConfig(db *gorm.DB, cfg config.WhatsAppConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SeedBaseURL == "" {
		return nil
	}

	var existing models.WahaConfig
	err := db.Where("is_active = ?", true).First(&existing).Error
	if err == nil {
		log.Debug("provider config already present, skipping seed", zap.Uint("id", existing.ID))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup provider config: %w", err)
	}

	seed := models.WahaConfig{
		SessionID: cfg.SeedSessionID,
		APIKey:    cfg.SeedAPIKey,
		BaseURL:   strings.TrimRight(cfg.SeedBaseURL, "/"),
		IsActive:  true,
	}
	if err := db.Create(&seed).Error; err != nil {
		return fmt.Errorf("seed provider config: %w", err)
	}
	log.Info("provider config seeded from environment", zap.String("base_url", seed.BaseURL))
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
