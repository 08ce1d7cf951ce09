package hlsgrab

import (
	"fmt"
	"path/filepath"
)

const (
	stateFileName    = "download_state.bitfield"
	manifestFileName = "concat.txt"
)

// workDirFor returns the per-task scratch directory, per §3: WorkDir.
func workDirFor(root, taskID string) string {
	return filepath.Join(root, "m3u8_download_"+taskID)
}

// segmentPath returns the zero-padded segment file path within workDir.
func segmentPath(workDir string, index int) string {
	return filepath.Join(workDir, fmt.Sprintf("segment_%06d.ts", index))
}
