package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"semanticgallery/apperr"
)

// DefaultMaxDepth bounds recursive discovery when the caller does not
// specify one.
const DefaultMaxDepth = 5

// allowedExtensions is the ingestion allow-list.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".tiff": true,
	".bmp":  true,
}

// IsSupportedFile reports whether path carries an allow-listed image
// extension.
func IsSupportedFile(path string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Discover resolves root into a list of candidate files. A single file
// is one candidate when allow-listed. A directory is walked breadth
// first: files in the root sit at depth 0 and are always visited;
// subdirectories are only entered when recursive is set, and files
// strictly deeper than maxDepth are skipped, not errored. maxDepth < 0
// selects DefaultMaxDepth.
//
// A root that does not exist, or is neither a file nor a directory, is a
// validation error: the precondition fails before any work starts.
func Discover(root string, recursive bool, maxDepth int) ([]string, error) {
	const op = "ingest.Discover"
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}

	if !info.IsDir() {
		if !IsSupportedFile(root) {
			return nil, apperr.New(apperr.KindValidation, op, "unsupported file type: %s", root)
		}
		return []string{root}, nil
	}

	type dirEntry struct {
		path  string
		depth int
	}

	var candidates []string
	queue := []dirEntry{{path: root, depth: 0}}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir.path)
		if err != nil {
			if dir.depth == 0 {
				return nil, apperr.Wrap(apperr.KindValidation, op, err)
			}
			// Unreadable subdirectories are skipped like unreadable files.
			continue
		}

		for _, entry := range entries {
			full := filepath.Join(dir.path, entry.Name())
			if entry.IsDir() {
				if recursive && dir.depth+1 <= maxDepth {
					queue = append(queue, dirEntry{path: full, depth: dir.depth + 1})
				}
				continue
			}
			if dir.depth <= maxDepth && IsSupportedFile(full) {
				candidates = append(candidates, full)
			}
		}
	}

	sort.Strings(candidates)
	return candidates, nil
}
