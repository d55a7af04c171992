package cleanup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Prefix names every per-job scratch directory.
const Prefix = "dualmind-"

// NewWorkDir creates a fresh scratch directory for one job under root.
// An empty root uses the system temp directory.
func NewWorkDir(root, kind string) (string, error) {
	dir, err := os.MkdirTemp(root, Prefix+kind+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a scratch directory and everything in it.
func Remove(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove work dir: %w", err)
	}
	return nil
}

// Sweep removes scratch directories under root last modified before cutoff.
// It returns the removed paths. Entries that fail to delete are skipped and
// reported in the joined error.
func Sweep(root string, cutoff time.Time) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read temp root: %w", err)
	}

	var removed []string
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
