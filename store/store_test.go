package store

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"semanticgallery/database"
	"semanticgallery/models"
)

const testModelName = "clip-vit-base-patch32"
const testModelVersion = "v1"

// newTestStore connects to the database named by APP_TEST_DATABASE_DSN.
// Tests that need a live pgvector-enabled Postgres are skipped when the
// variable is unset.
func newTestStore(t *testing.T) *MediaStore {
	t.Helper()
	dsn := os.Getenv("APP_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("APP_TEST_DATABASE_DSN not set; skipping store integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	db.Exec("TRUNCATE embedding_records, media_assets")
	t.Cleanup(func() {
		db.Exec("TRUNCATE embedding_records, media_assets")
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return NewMediaStore(db, 5*time.Second)
}

// unitVector returns a 512-dim unit vector with weight concentrated on
// one axis, giving predictable pairwise similarities.
func unitVector(axis int) pgvector.Vector {
	v := make([]float32, 512)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func newAsset(path string) *models.MediaAsset {
	return &models.MediaAsset{
		ID:            uuid.NewString(),
		Filename:      "img.jpg",
		FilePath:      path,
		FileSizeBytes: 1024,
		Width:         640,
		Height:        480,
		ContentType:   "image/jpeg",
	}
}

func newRecord(mediaID string, vec pgvector.Vector) *models.EmbeddingRecord {
	return &models.EmbeddingRecord{
		ID:           uuid.NewString(),
		MediaID:      mediaID,
		ModelName:    testModelName,
		ModelVersion: testModelVersion,
		Embedding:    vec,
	}
}

func TestSaveAssetWithEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	asset := newAsset("/photos/cat.jpg")
	require.NoError(t, s.SaveAssetWithEmbedding(ctx, asset, newRecord(asset.ID, unitVector(0))))

	n, err := s.CountAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := s.EmbeddingsForAsset(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testModelName, records[0].ModelName)
}

func TestSaveAssetWithEmbeddingAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A 3-dim vector violates the vector(512) column, forcing the
	// second insert of the transaction to fail.
	asset := newAsset("/photos/orphan.jpg")
	bad := newRecord(asset.ID, pgvector.NewVector([]float32{1, 0, 0}))

	err := s.SaveAssetWithEmbedding(ctx, asset, bad)
	require.Error(t, err)

	// No orphan asset row may survive the rollback.
	n, err := s.CountAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReIngestionIsAdditive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := "/photos/twice.jpg"
	first := newAsset(path)
	require.NoError(t, s.SaveAssetWithEmbedding(ctx, first, newRecord(first.ID, unitVector(1))))

	second := newAsset(path)
	require.NoError(t, s.SaveAssetWithEmbedding(ctx, second, newRecord(second.ID, unitVector(1))))

	n, err := s.CountAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSearchSimilarOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Ten assets on distinct axes; the query vector leans toward axis 0,
	// then 1, then 2.
	for i := 0; i < 10; i++ {
		asset := newAsset("/photos/axis" + string(rune('0'+i)) + ".jpg")
		require.NoError(t, s.SaveAssetWithEmbedding(ctx, asset, newRecord(asset.ID, unitVector(i))))
	}

	q := make([]float32, 512)
	q[0], q[1], q[2] = 0.8, 0.5, 0.3
	var norm float64
	for _, x := range q {
		norm += float64(x) * float64(x)
	}
	// Normalize so the store's dot-product contract holds.
	inv := float32(1 / math.Sqrt(norm))
	for i := range q {
		q[i] *= inv
	}

	results, err := s.SearchSimilar(ctx, pgvector.NewVector(q), testModelName, testModelVersion, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "/photos/axis0.jpg", results[0].FilePath)
	assert.Equal(t, "/photos/axis1.jpg", results[1].FilePath)
	assert.Equal(t, "/photos/axis2.jpg", results[2].FilePath)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestSearchSimilarFiltersModelVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	asset := newAsset("/photos/old-model.jpg")
	rec := newRecord(asset.ID, unitVector(0))
	rec.ModelVersion = "v0"
	require.NoError(t, s.SaveAssetWithEmbedding(ctx, asset, rec))

	results, err := s.SearchSimilar(ctx, unitVector(0), testModelName, testModelVersion, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilarEmptyStore(t *testing.T) {
	s := newTestStore(t)

	results, err := s.SearchSimilar(context.Background(), unitVector(0), testModelName, testModelVersion, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
