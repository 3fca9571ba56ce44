package hiddenstate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/hidden-states/internal/pickle"
)

// WritePickle serializes t to path, replacing any existing file. The pickle is
// written to a temp file in the same directory first and renamed into place.
func WritePickle(path string, t *Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := pickle.NewEncoder(tmp).Encode(t.Columns()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("pickle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
