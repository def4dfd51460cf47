// Package app wires the shared resources into one application context
// built once at startup and passed explicitly into every entry point.
package app

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"semanticgallery/config"
	"semanticgallery/database"
	"semanticgallery/embedding"
	"semanticgallery/ingest"
	"semanticgallery/search"
	"semanticgallery/store"
)

// State bundles the loaded engine, the database handle and the two
// pipelines. The engine and configuration are read-only after New; the
// connection pool is the only shared mutable resource.
type State struct {
	Config   *config.Config
	Log      *logrus.Logger
	DB       *gorm.DB
	Engine   *embedding.Engine
	Store    *store.MediaStore
	Ingestor *ingest.Ingestor
	Searcher *search.Searcher
}

// New initializes every shared resource. Artifact and connection
// failures are fatal here, before any pipeline work starts.
func New(cfg *config.Config, log *logrus.Logger) (*State, error) {
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	engine, err := embedding.New(cfg.Embedding, log)
	if err != nil {
		return nil, err
	}

	mediaStore := store.NewMediaStore(db, cfg.Database.AcquireTimeout)
	return &State{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Engine:   engine,
		Store:    mediaStore,
		Ingestor: ingest.NewIngestor(engine, mediaStore, log),
		Searcher: search.NewSearcher(engine, mediaStore, log),
	}, nil
}

// Close releases the engine sessions and the database pool.
func (s *State) Close() error {
	var first error
	if s.Engine != nil {
		if err := s.Engine.Close(); err != nil {
			first = err
		}
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
