// Package artifacts persists intermediate pipeline batches as JSON files so
// that each stage can be re-run independently and failed runs leave evidence
// behind.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maltedev/pinterest-pipeline/internal/models"
)

type Store struct {
	dir         string
	rawFile     string
	cleanedFile string
}

func NewStore(dir, rawFile, cleanedFile string) *Store {
	return &Store{
		dir:         dir,
		rawFile:     rawFile,
		cleanedFile: cleanedFile,
	}
}

func (s *Store) RawPath() string {
	return filepath.Join(s.dir, s.rawFile)
}

func (s *Store) CleanedPath() string {
	return filepath.Join(s.dir, s.cleanedFile)
}

func (s *Store) SaveRaw(batch *models.RawBatch) error {
	return s.write(s.RawPath(), batch)
}

func (s *Store) LoadRaw() (*models.RawBatch, error) {
	batch := &models.RawBatch{}
	if err := s.read(s.RawPath(), batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) SaveCleaned(batch *models.CleanedBatch) error {
	return s.write(s.CleanedPath(), batch)
}

func (s *Store) LoadCleaned() (*models.CleanedBatch, error) {
	batch := &models.CleanedBatch{}
	if err := s.read(s.CleanedPath(), batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) write(path string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		return fmt.Errorf("failed to rename artifact: %w", err)
	}

	return nil
}

func (s *Store) read(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", path, err)
	}

	return nil
}
