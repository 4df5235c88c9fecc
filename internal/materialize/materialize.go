// Package materialize writes validated executor files under a project root.
package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/prompt-executor/internal/domain"
	"github.com/hochfrequenz/prompt-executor/internal/pathsafe"
)

// UnsafePathError is returned when a file path fails the final safety check
type UnsafePathError struct {
	Path string
}

func (e *UnsafePathError) Error() string {
	return "Unsafe path rejected: " + e.Path
}

// Write creates each file under rootDir in list order and returns how many
// were written. The first failure stops the loop; files already written
// stay on disk.
func Write(ctx context.Context, rootDir string, files []domain.ExecutorFile) (int, error) {
	written := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if !pathsafe.IsSafeRelative(f.Path) {
			return written, &UnsafePathError{Path: f.Path}
		}

		target := filepath.Join(rootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("creating directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, []byte(f.Contents), 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", f.Path, err)
		}
		written++
	}
	return written, nil
}

// WriteManifest writes the run manifest into rootDir, replacing any
// previous one
func WriteManifest(rootDir string, m domain.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(rootDir, domain.ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
