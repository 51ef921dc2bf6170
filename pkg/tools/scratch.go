package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/featherbot/featherbot/internal/atomicfile"
)

// WriteScratch persists an oversized tool result under dir so the
// eviction wrapper (WithEviction) can replace it with a head/tail preview
// plus a file reference. Uses atomicfile's crash-safe write rather than a
// plain os.WriteFile so a half-written scratch file is never left behind
// for the model to read.
func WriteScratch(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("tools: create scratch dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.txt", name, time.Now().UnixNano()))
	if err := atomicfile.Write(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("tools: write scratch file: %w", err)
	}
	return path, nil
}
