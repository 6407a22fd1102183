package fsutil

import (
	"os"
	"path/filepath"
)

// WriteTree writes files (relative path -> content) under dir, creating
// parent directories as needed.
func WriteTree(dir string, files map[string][]byte) error {
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// WriteFileString writes a single text file under dir at rel.
func WriteFileString(dir, rel, content string) error {
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}
