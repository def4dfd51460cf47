package ingest

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semanticgallery/apperr"
)

func writeTestImage(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, jpeg.Encode(f, img, nil))
	}
	return path
}

func TestExtractMediaDetailsJPEG(t *testing.T) {
	path := writeTestImage(t, "photo.jpg", 320, 240)

	details, err := ExtractMediaDetails(path)
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", details.Filename)
	assert.Equal(t, path, details.FilePath)
	assert.Equal(t, 320, details.Width)
	assert.Equal(t, 240, details.Height)
	assert.Equal(t, "image/jpeg", details.ContentType)
	assert.Positive(t, details.FileSize)
	assert.NotNil(t, details.Image)
}

func TestExtractMediaDetailsDerivesContentType(t *testing.T) {
	// The content type follows the decoded format, not a fixed value.
	path := writeTestImage(t, "shot.png", 64, 64)

	details, err := ExtractMediaDetails(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", details.ContentType)
}

func TestExtractMediaDetailsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("this is not an image"), 0o644))

	_, err := ExtractMediaDetails(path)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDecode))
}

func TestExtractMediaDetailsMissingFile(t *testing.T) {
	_, err := ExtractMediaDetails(filepath.Join(t.TempDir(), "absent.jpg"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDecode))
}
