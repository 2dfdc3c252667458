// Command migrate_data copies a local SQLite database into PostgreSQL, preserving ids.
// Run cmd/sync_sequences afterwards so new rows do not collide with copied ids.
package main

import (
	"flag"

	"escalafin-messaging/internal/config"
	"escalafin-messaging/internal/database"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const batchSize = 500

func main() {
	envFile := flag.String("env", "", "optional .env file")
	sqlitePath := flag.String("sqlite", "", "source SQLite file (defaults to DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}
	log := logger.Must(logger.New(cfg.Logging.Level, "console"))
	defer func() { _ = log.Sync() }()

	source := cfg.Database
	source.Driver = "sqlite"
	if *sqlitePath != "" {
		source.Path = *sqlitePath
	}
	sqliteDB, err := database.Open(source, log.Named("source"))
	if err != nil {
		log.Fatal("failed to open SQLite source", zap.Error(err))
	}

	dest := cfg.Database
	dest.Driver = "postgres"
	pgDB, err := database.Open(dest, log.Named("dest"))
	if err != nil {
		log.Fatal("failed to open PostgreSQL destination", zap.Error(err))
	}
	if err := database.Migrate(pgDB); err != nil {
		log.Fatal("failed to migrate destination schema", zap.Error(err))
	}

	log.Info("starting data migration", zap.String("source", source.Path), zap.String("dest", dest.Host+"/"+dest.Name))

	// parents first so foreign references resolve
	steps := []func() error{
		func() error { return migrateTable[models.Client](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.Loan](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.AmortizationEntry](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.Conversation](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.ConversationMessage](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.ChatbotRule](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.RuleExecutionLog](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.WahaConfig](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.ScheduledMessage](sqliteDB, pgDB, log) },
		func() error { return migrateTable[models.Notification](sqliteDB, pgDB, log) },
	}
	failed := 0
	for _, step := range steps {
		if err := step(); err != nil {
			failed++
		}
	}

	if failed > 0 {
		log.Fatal("migration finished with errors", zap.Int("failed_tables", failed))
	}
	log.Info("migration completed")
}

type tabler interface {
	TableName() string
}

// migrateTable copies every row of T in batches, one transaction per table.
func migrateTable[T tabler](src, dst *gorm.DB, log *zap.Logger) error {
	var zero T
	table := zero.TableName()
	copied := 0

	err := dst.Transaction(func(tx *gorm.DB) error {
		var batch []T
		return src.Model(&zero).Order("id").FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
			copied += len(batch)
			return nil
		}).Error
	})
	if err != nil {
		log.Error("table migration failed", zap.String("table", table), zap.Int("copied", copied), zap.Error(err))
		return err
	}
	log.Info("table migrated", zap.String("table", table), zap.Int("rows", copied))
	return nil
}
