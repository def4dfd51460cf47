// Package models defines the persisted row types for media assets and
// their embeddings.
package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// MediaAsset is one row per ingested file. Created exactly once per
// successful ingestion, in the same transaction as its embedding, and
// never mutated afterwards.
type MediaAsset struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	Filename      string          `gorm:"not null" json:"filename"`
	FilePath      string          `gorm:"not null;index" json:"file_path"`
	FileSizeBytes int64           `json:"file_size_bytes"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	ContentType   string          `gorm:"not null" json:"content_type"`
	Metadata      datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EmbeddingRecord is one row per (asset, model version). An asset may be
// re-embedded under multiple model versions; each re-embedding inserts a
// new record rather than updating in place. The vector is L2-normalized
// before storage so similarity reduces to a dot product.
type EmbeddingRecord struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	MediaID      string          `gorm:"type:uuid;not null;index" json:"media_id"`
	MediaAsset   MediaAsset      `gorm:"foreignKey:MediaID;constraint:OnDelete:CASCADE" json:"-"`
	ModelName    string          `gorm:"not null" json:"model_name"`
	ModelVersion string          `gorm:"not null" json:"model_version"`
	Embedding    pgvector.Vector `gorm:"type:vector(512)" json:"embedding"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SearchResult is one ranked hit returned by a similarity search. It is
// never persisted.
type SearchResult struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	FilePath   string  `json:"file_path"`
	Similarity float64 `json:"similarity"`
}
