package db

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"veritag/internal/config"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens Postgres when a DSN is configured, otherwise falls back to a
// local sqlite file for development.
func NewStore(cfg config.Config) (*Store, error) {
	gormCfg := &gorm.Config{TranslateError: true}

	var (
		gdb *gorm.DB
		err error
	)
	if cfg.PostgresDSN != "" {
		gdb, err = gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		slog.Info("POSTGRES_DSN not set; using sqlite", "path", cfg.SQLitePath)
		gdb, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	}

	if cfg.OtelEnabled {
		if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("enable gorm tracing: %w", err)
		}
	}

	if err := gdb.AutoMigrate(&TagModel{}, &ScanEventModel{}, &AuditEventModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{DB: gdb}, nil
}
