package ingest

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	// Raster decoders for the supported ingestion formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"semanticgallery/apperr"
)

// MediaDetails is everything extracted from one candidate file before
// encoding: the decoded raster plus display metadata.
type MediaDetails struct {
	Image       image.Image
	Filename    string
	FilePath    string
	FileSize    int64
	Width       int
	Height      int
	ContentType string
}

// contentTypes maps image.Decode format names onto MIME types. The
// content type is derived from the decoded format rather than assumed.
var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
}

// ExtractMediaDetails decodes path and captures its metadata. A file
// that cannot be read or decoded yields a decode error; during batch
// ingestion the caller skips the file and continues.
func ExtractMediaDetails(path string) (*MediaDetails, error) {
	const op = "ingest.ExtractMediaDetails"

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, err)
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, fmt.Errorf("decoding %s: %w", path, err))
	}

	contentType, ok := contentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}

	bounds := img.Bounds()
	return &MediaDetails{
		Image:       img,
		Filename:    filepath.Base(path),
		FilePath:    path,
		FileSize:    info.Size(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ContentType: contentType,
	}, nil
}
