// Package database owns the Postgres connection and schema migration.
package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"semanticgallery/apperr"
	"semanticgallery/config"
	"semanticgallery/models"
)

// Connect opens a gorm handle with a bounded connection pool and runs
// migrations. The handle is returned to the caller rather than stored in
// package state; it is shared through the application context.
func Connect(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "database.Connect", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "database.Connect", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
		"pool":     cfg.MaxOpenConns,
	}).Info("database connected")
	return db, nil
}

// Migrate enables the pgvector extension, creates the two tables and the
// similarity index. The embedding column keeps a cosine-ops HNSW index
// so ORDER BY on the distance operator stays cheap.
func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return apperr.Wrap(apperr.KindPersistence, "database.Migrate", fmt.Errorf("enabling vector extension: %w", err))
	}

	if err := db.AutoMigrate(&models.MediaAsset{}, &models.EmbeddingRecord{}); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "database.Migrate", err)
	}

	if err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_embedding_records_embedding ON embedding_records USING hnsw (embedding vector_cosine_ops)",
	).Error; err != nil {
		return apperr.Wrap(apperr.KindPersistence, "database.Migrate", fmt.Errorf("creating hnsw index: %w", err))
	}
	return nil
}
