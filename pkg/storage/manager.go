package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nestsync/pkg/errors"
)

// Manager handles media file storage under a download root, one
// subdirectory per student
type Manager struct {
	rootDir string
	saved   map[string]bool
	mu      sync.RWMutex
}

// NewManager creates a storage manager rooted at rootDir, creating the
// directory if needed and indexing any files already present
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to create download directory", err)
	}

	manager := &Manager{
		rootDir: rootDir,
		saved:   make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to scan download directory", err)
	}

	return manager, nil
}

// scanExistingFiles indexes files already present in per-student
// subdirectories so repeat runs skip completed downloads
func (m *Manager) scanExistingFiles() error {
	students, err := os.ReadDir(m.rootDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, student := range students {
		if !student.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(m.rootDir, student.Name()))
		if err != nil {
			return fmt.Errorf("failed to read student directory: %w", err)
		}
		for _, file := range files {
			if file.IsDir() || strings.HasSuffix(file.Name(), ".tmp") {
				continue
			}
			m.saved[m.key(student.Name(), file.Name())] = true
		}
	}

	return nil
}

func (m *Manager) key(studentID, filename string) string {
	return studentID + "/" + filename
}

// Exists reports whether a file for the student has already been saved
func (m *Manager) Exists(studentID, filename string) bool {
	m.mu.RLock()
	cached := m.saved[m.key(studentID, filename)]
	m.mu.RUnlock()
	if cached {
		return true
	}

	// Double-check the filesystem in case another process wrote the file.
	if _, err := os.Stat(m.Path(studentID, filename)); err == nil {
		m.mu.Lock()
		m.saved[m.key(studentID, filename)] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// FindPrefix returns the saved filename for the student whose name starts
// with prefix. Names can gain a sniffed extension at download time, so a
// lookup by the extension-less base name must still match the file on
// disk.
func (m *Manager) FindPrefix(studentID, prefix string) (string, bool) {
	keyPrefix := m.key(studentID, prefix)
	m.mu.RLock()
	for key := range m.saved {
		if strings.HasPrefix(key, keyPrefix) {
			m.mu.RUnlock()
			return strings.TrimPrefix(key, studentID+"/"), true
		}
	}
	m.mu.RUnlock()

	// Fall back to disk in case another process wrote the file.
	matches, err := filepath.Glob(m.Path(studentID, prefix) + "*")
	if err != nil {
		return "", false
	}
	for _, match := range matches {
		name := filepath.Base(match)
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		m.mu.Lock()
		m.saved[m.key(studentID, name)] = true
		m.mu.Unlock()
		return name, true
	}
	return "", false
}

// Path returns the on-disk path a file for the student saves to
func (m *Manager) Path(studentID, filename string) string {
	return filepath.Join(m.rootDir, studentID, filename)
}

// Save streams r into the student's subdirectory. The data is written to
// a temporary file and renamed into place so a failed download never
// leaves a partial file under the final name.
func (m *Manager) Save(r io.Reader, studentID, filename string) error {
	dir := filepath.Join(m.rootDir, studentID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to create student directory", err)
	}

	target := filepath.Join(dir, filename)
	tempFile := target + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to create temporary file", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return errors.Wrap(errors.ErrorTypeStorage, "failed to write media data", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return errors.Wrap(errors.ErrorTypeStorage, "failed to close file", closeErr)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return errors.Wrap(errors.ErrorTypeStorage, "failed to rename temporary file", err)
	}

	m.mu.Lock()
	m.saved[m.key(studentID, filename)] = true
	m.mu.Unlock()

	return nil
}

// RootDir returns the download root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// SavedCount returns the number of files known to be saved
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
