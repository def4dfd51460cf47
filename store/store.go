// Package store provides the persistence operations for media assets
// and their embeddings: the atomic dual-row insert and the vector-ranked
// similarity query.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"semanticgallery/apperr"
	"semanticgallery/models"
)

// MediaStore wraps the shared gorm handle. Every call is scoped by a
// bounded context so pool acquisition cannot block indefinitely.
type MediaStore struct {
	db             *gorm.DB
	acquireTimeout time.Duration
}

// NewMediaStore builds a store over db. acquireTimeout bounds each
// call's wait for a pooled connection; zero means 5s.
func NewMediaStore(db *gorm.DB, acquireTimeout time.Duration) *MediaStore {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &MediaStore{db: db, acquireTimeout: acquireTimeout}
}

func (s *MediaStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// classify maps a database error onto the persistence kind, marking
// timed-out acquisitions retryable.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.WrapRetryable(apperr.KindPersistence, op, err)
	}
	return apperr.Wrap(apperr.KindPersistence, op, err)
}

// SaveAssetWithEmbedding persists the asset and its embedding in one
// transaction: the media row is written first so the embedding's foreign
// key resolves, and both commit atomically. A failure mid-transaction
// leaves zero rows behind.
func (s *MediaStore) SaveAssetWithEmbedding(ctx context.Context, asset *models.MediaAsset, record *models.EmbeddingRecord) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(asset).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(record).Error
	})
	return classify("store.SaveAssetWithEmbedding", err)
}

// SearchSimilar ranks stored embeddings against query by cosine
// similarity and returns the top limit hits joined to their assets.
// Only embeddings produced by the given model name and version are
// scored; vectors from different model versions are not comparable.
//
// Both sides are unit vectors, so 1 - (a <=> b) is the dot product.
func (s *MediaStore) SearchSimilar(ctx context.Context, query pgvector.Vector, modelName, modelVersion string, limit int) ([]models.SearchResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var results []models.SearchResult
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.id, m.filename, m.file_path,
		       1 - (e.embedding <=> ?) AS similarity
		FROM media_assets m
		JOIN embedding_records e ON e.media_id = m.id
		WHERE e.model_name = ? AND e.model_version = ?
		ORDER BY e.embedding <=> ?
		LIMIT ?`,
		query, modelName, modelVersion, query, limit,
	).Scan(&results).Error
	if err != nil {
		return nil, classify("store.SearchSimilar", err)
	}
	return results, nil
}

// CountAssets returns the number of ingested assets.
func (s *MediaStore) CountAssets(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.MediaAsset{}).Count(&n).Error; err != nil {
		return 0, classify("store.CountAssets", err)
	}
	return n, nil
}

// EmbeddingsForAsset returns the embedding rows for one asset, newest
// first. An asset re-embedded under several model versions has one row
// per version.
func (s *MediaStore) EmbeddingsForAsset(ctx context.Context, mediaID string) ([]models.EmbeddingRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var records []models.EmbeddingRecord
	err := s.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, classify("store.EmbeddingsForAsset", err)
	}
	return records, nil
}

// Ping verifies the connection, bounded like every other call.
func (s *MediaStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return classify("store.Ping", s.db.WithContext(ctx).Exec("SELECT 1").Error)
}
