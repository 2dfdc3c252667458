// Command sync_sequences moves every PostgreSQL id sequence past the highest stored id.
package main

import (
	"flag"

	"escalafin-messaging/internal/config"
	"escalafin-messaging/internal/database"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}
	log := logger.Must(logger.New(cfg.Logging.Level, "console"))
	defer func() { _ = log.Sync() }()

	dbCfg := cfg.Database
	dbCfg.Driver = "postgres"
	db, err := database.Open(dbCfg, log.Named("db"))
	if err != nil {
		log.Fatal("failed to open PostgreSQL", zap.Error(err))
	}

	log.Info("syncing PostgreSQL sequences")

	failed := 0
	for _, model := range models.All() {
		table := model.(interface{ TableName() string }).TableName()
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			failed++
			log.Error("sequence sync failed", zap.String("table", table), zap.Error(err))
			continue
		}
		log.Info("sequence synced", zap.String("table", table))
	}

	if failed > 0 {
		log.Fatal("sequence sync finished with errors", zap.Int("failed_tables", failed))
	}
	log.Info("done")
}
