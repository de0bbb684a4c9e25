package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxAutosaveIndex bounds the search for a free autosave name.
const maxAutosaveIndex = 100000

// NextFilename returns the first path of the form dir/prefix_NNNNNext that
// does not exist yet.
func NextFilename(dir, prefix, ext string) (string, error) {
	for i := 0; i < maxAutosaveIndex; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%05d%s", prefix, i, ext))
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", NewIOError("failed to probe autosave name", err)
		}
	}
	return "", NewIOError(fmt.Sprintf("no free autosave name for %s in %s", prefix, dir), nil)
}
