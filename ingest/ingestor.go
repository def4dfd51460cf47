// Package ingest converts filesystem paths into persisted
// (MediaAsset, EmbeddingRecord) pairs, continuing past individual file
// failures across a batch.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"semanticgallery/embedding"
	"semanticgallery/models"
)

// ErrDeclined is returned when the confirmation gate rejects a batch.
// Nothing has been processed or persisted when it is returned.
var ErrDeclined = errors.New("ingestion declined by caller")

// Store is the persistence surface the pipeline needs: one atomic
// dual-row insert per file.
type Store interface {
	SaveAssetWithEmbedding(ctx context.Context, asset *models.MediaAsset, record *models.EmbeddingRecord) error
}

// ConfirmFunc is asked before a multi-file batch starts; returning false
// aborts with no side effects. A nil ConfirmFunc auto-confirms.
type ConfirmFunc func(candidates int) bool

// ProgressFunc is invoked once per processed file, successful or not,
// with the running done count against the batch total.
type ProgressFunc func(done, total int, path string, err error)

// Options controls one ingestion call.
type Options struct {
	Recursive bool
	// MaxDepth bounds directory recursion; negative selects
	// DefaultMaxDepth.
	MaxDepth int
	// Concurrency caps files processed in parallel; values < 1 mean
	// sequential. Each file's transaction stays independent.
	Concurrency int
	Confirm     ConfirmFunc
	Progress    ProgressFunc
}

// Result summarizes a completed batch.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Ingestor runs the discovery → encode → persist pipeline. The encoder
// handle is shared and read-only; the store serializes conflicting
// writes behind its transaction boundary.
type Ingestor struct {
	encoder embedding.Encoder
	store   Store
	log     *logrus.Logger
}

// NewIngestor wires the pipeline's collaborators.
func NewIngestor(encoder embedding.Encoder, store Store, log *logrus.Logger) *Ingestor {
	return &Ingestor{encoder: encoder, store: store, log: log}
}

// Ingest discovers candidates under path and processes each one.
// Per-file decode, inference and persistence failures are logged with
// the offending path and skipped; only an unreadable root aborts before
// any work. The returned Result reports succeeded vs failed counts.
func (in *Ingestor) Ingest(ctx context.Context, path string, opts Options) (Result, error) {
	start := time.Now()

	candidates, err := Discover(path, opts.Recursive, opts.MaxDepth)
	if err != nil {
		return Result{}, err
	}

	total := len(candidates)
	if total > 1 && opts.Confirm != nil && !opts.Confirm(total) {
		return Result{Total: total}, ErrDeclined
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		done      int
		succeeded int
		failed    int
	)
	semaphore := make(chan struct{}, concurrency)

	for _, candidate := range candidates {
		// A canceled context stops dispatching new files; files already
		// in flight run to completion so their transactions stay whole.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := in.processFile(ctx, p)

			mu.Lock()
			done++
			if err != nil {
				failed++
				in.log.WithError(err).WithField("path", p).Warn("skipping file")
			} else {
				succeeded++
			}
			progress := opts.Progress
			current := done
			mu.Unlock()

			if progress != nil {
				progress(current, total, p, err)
			}
		}(candidate)
	}
	wg.Wait()

	result := Result{
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		Elapsed:   time.Since(start),
	}
	in.log.WithFields(logrus.Fields{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"elapsed":   result.Elapsed,
	}).Info("ingestion batch complete")
	return result, nil
}

// processFile runs one file through extract → encode → persist. Fresh
// identifiers are assigned at transaction start and never recycled on
// failure.
func (in *Ingestor) processFile(ctx context.Context, path string) error {
	details, err := ExtractMediaDetails(path)
	if err != nil {
		return err
	}

	vector, err := in.encoder.EncodeImage(ctx, details.Image)
	if err != nil {
		return err
	}

	asset := &models.MediaAsset{
		ID:            uuid.NewString(),
		Filename:      details.Filename,
		FilePath:      details.FilePath,
		FileSizeBytes: details.FileSize,
		Width:         details.Width,
		Height:        details.Height,
		ContentType:   details.ContentType,
	}
	record := &models.EmbeddingRecord{
		ID:           uuid.NewString(),
		MediaID:      asset.ID,
		ModelName:    in.encoder.ModelName(),
		ModelVersion: in.encoder.ModelVersion(),
		Embedding:    pgvector.NewVector(vector),
	}

	return in.store.SaveAssetWithEmbedding(ctx, asset, record)
}
