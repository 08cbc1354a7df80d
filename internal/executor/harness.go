package executor

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// harnessSource wraps one block: it binds file_path, output_dir, pd and os,
// runs the code as __main__ and writes "<exception>\n\n<traceback>" to a report file.
//
//go:embed harness.py
var harnessSource []byte

// harnessMu serializes extraction within the process.
var harnessMu sync.Mutex

// HarnessChecksum returns the SHA256 checksum of the embedded harness.
func HarnessChecksum() string {
	sum := sha256.Sum256(harnessSource)
	return hex.EncodeToString(sum[:])
}

// HarnessPath returns the path of the extracted harness script. The script is
// checked on every call and extracted again if it was removed, for example by
// a temp directory cleaner on a long-running server.
func HarnessPath() (string, error) {
	harnessMu.Lock()
	defer harnessMu.Unlock()
	return extractHarness(os.TempDir())
}

func extractHarness(root string) (string, error) {
	dir := filepath.Join(root, "statm8-harness-"+HarnessChecksum()[:16])
	path := filepath.Join(dir, "harness.py")

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(harnessSource)) {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create harness directory: %w", err)
	}
	// Write then rename so concurrent processes never observe a partial script.
	tmp, err := os.CreateTemp(dir, "harness-*.py")
	if err != nil {
		return "", fmt.Errorf("create harness: %w", err)
	}
	if _, err := tmp.Write(harnessSource); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write harness: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write harness: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("install harness: %w", err)
	}
	return path, nil
}
