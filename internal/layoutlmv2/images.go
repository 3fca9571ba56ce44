package layoutlmv2

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/hidden-states/constants"
	"github.com/joseph-ayodele/hidden-states/internal/rivlet"
)

// imageFile is one page image found under the input directory.
type imageFile struct {
	ID   string // path relative to the input directory
	Path string
	Ext  string
}

// collectImages walks dir in lexical order, skipping hidden entries, and
// returns files whose extension matches fileType, or the default image
// extensions when fileType is empty.
func collectImages(dir, fileType string) ([]imageFile, error) {
	exts := constants.ImageExtensions
	if ft := constants.NormalizeExt(fileType); ft != "" {
		exts = map[string]struct{}{ft: {}}
	}

	var files []imageFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		files = append(files, imageFile{ID: rivlet.DocumentID(rel), Path: path, Ext: ext})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}
	return files, nil
}
