package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const tempPattern = ".likesync-*.tmp"

// Manager stores downloaded media as flat files in one directory. The
// filesystem is the only record of what has been downloaded.
type Manager struct {
	outputDir string
	saved     atomic.Int64
}

// NewManager creates a storage manager for outputDir. The directory must
// already exist unless create is set.
func NewManager(outputDir string, create bool) (*Manager, error) {
	info, err := os.Stat(outputDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("storage path %s is not a directory", outputDir)
		}
	case os.IsNotExist(err) && create:
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	case os.IsNotExist(err):
		return nil, fmt.Errorf("storage directory %s does not exist (set storage.create_directory to create it)", outputDir)
	default:
		return nil, fmt.Errorf("failed to stat storage directory: %w", err)
	}

	return &Manager{outputDir: outputDir}, nil
}

// validName rejects names that would escape the output directory
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// Path returns the final path for name
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// Exists reports whether a file called name is present in the output directory
func (m *Manager) Exists(name string) bool {
	if validName(name) != nil {
		return false
	}
	_, err := os.Stat(m.Path(name))
	return err == nil
}

// Save writes r to name. Data goes to a temporary file in the same
// directory first and is renamed into place, so a partially written file
// is never visible under its final name.
func (m *Manager) Save(r io.Reader, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	filename := m.Path(name)

	out, err := os.CreateTemp(m.outputDir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save media data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Chmod(tempFile, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.saved.Add(1)
	return nil
}

// CleanTemp removes temporary files left behind by an interrupted run
func (m *Manager) CleanTemp() (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.outputDir, tempPattern))
	if err != nil {
		return 0, fmt.Errorf("failed to list temporary files: %w", err)
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetSavedCount returns the number of files saved by this manager
func (m *Manager) GetSavedCount() int {
	return int(m.saved.Load())
}
