package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Save stores data under name and returns the stored path
	Save(name string, data []byte) (string, error)

	// Get reads a stored file
	Get(path string) ([]byte, error)

	// Delete removes a stored file
	Delete(path string) error
}

// LocalStorage keeps receipt files in a directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve keeps every path inside the base directory
func (l *LocalStorage) resolve(name string) (string, string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", "", fmt.Errorf("invalid file name %q", name)
	}
	return base, filepath.Join(l.basePath, base), nil
}

// Save writes data to the storage directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	stored, full, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing file: %w", err)
	}
	return stored, nil
}

// Get reads a file from the storage directory
func (l *LocalStorage) Get(path string) ([]byte, error) {
	_, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from the storage directory
func (l *LocalStorage) Delete(path string) error {
	_, full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
