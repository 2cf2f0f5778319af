package ledger

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage archives uploaded receipt images, one directory per owner.
type Storage interface {
	// Save stores a file for an owner and returns the stored name
	Save(ownerID, filename string, data []byte) (string, error)

	// Get retrieves an owner's file by stored name
	Get(ownerID, filename string) ([]byte, error)

	// Delete removes an owner's file
	Delete(ownerID, filename string) error
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) ownerPath(ownerID, filename string) string {
	// filepath.Base guards against path traversal in stored names
	return filepath.Join(l.basePath, filepath.Base(ownerID), filepath.Base(filename))
}

// Save stores a file under the owner's directory
func (l *LocalStorage) Save(ownerID, filename string, data []byte) (string, error) {
	dir := filepath.Join(l.basePath, filepath.Base(ownerID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating owner directory: %w", err)
	}
	path := l.ownerPath(ownerID, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filepath.Base(filename), nil
}

// Get retrieves an owner's file
func (l *LocalStorage) Get(ownerID, filename string) ([]byte, error) {
	data, err := os.ReadFile(l.ownerPath(ownerID, filename))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an owner's file
func (l *LocalStorage) Delete(ownerID, filename string) error {
	if err := os.Remove(l.ownerPath(ownerID, filename)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
