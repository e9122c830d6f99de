package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// WriteToDir writes an expanded project tree under the given directory,
// creating parent directories as needed. Files that fail to write are logged
// and skipped; the count of files actually written is returned.
func WriteToDir(tree ProjectTree, dir string) (int, error) {
	if dir == "" {
		return 0, fmt.Errorf("target directory is required")
	}

	written := 0
	for name, content := range tree {
		fullPath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
			logrus.Warnf("Failed to create directory for %s: %v", name, err)
			continue
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			logrus.Warnf("Failed to write file %s: %v", fullPath, err)
			continue
		}
		written++
	}

	logrus.Infof("Exported project: %d of %d files written to %s", written, len(tree), dir)
	if written != len(tree) {
		logrus.Warnf("Mismatch between tree size (%d) and written files (%d)", len(tree), written)
	}
	return written, nil
}
