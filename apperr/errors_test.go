package apperr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesUnderlyingError(t *testing.T) {
	err := Wrap(KindDecode, "ingest.extract", fs.ErrNotExist)
	require.Error(t, err)

	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, IsKind(err, KindDecode))
	assert.False(t, IsKind(err, KindInference))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindPersistence, "store.save", nil))
	assert.NoError(t, WrapRetryable(KindPersistence, "store.save", nil))
}

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "search", "limit must be positive, got %d", -1)

	k, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, k)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(KindInference, "embedding.encode", "forward pass failed")
	outer := fmt.Errorf("processing file: %w", inner)

	assert.True(t, IsKind(outer, KindInference))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(KindPersistence, "store", errors.New("pool exhausted"))))
	assert.False(t, IsRetryable(Wrap(KindPersistence, "store", errors.New("constraint violation"))))
	assert.True(t, IsRetryable(fmt.Errorf("acquire: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "artifact", KindArtifact.String())
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
