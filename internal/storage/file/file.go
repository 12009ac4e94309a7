package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"herald/internal/config"
	"herald/internal/storage"
)

func init() {
	storage.RegisterFactory("file", func(_ context.Context, cfg config.StorageConfig) (storage.Store, error) {
		return New(cfg.Path)
	})
}

// FileStorage keeps the ledger as a single JSON document, compatible with
// hashes.json files written by earlier deployments.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*FileStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage requires a path")
	}

	slog.Info("Initializing file storage", "path", path)
	return &FileStorage{path: path}, nil
}

func (s *FileStorage) Path() string {
	return s.path
}

func (s *FileStorage) Load(ctx context.Context) (storage.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	ledger := storage.NewLedger()
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", s.path, err)
	}

	return ledger, nil
}

// Commit writes to a temporary file in the same directory and renames it
// over the ledger.
func (s *FileStorage) Commit(ctx context.Context, ledger storage.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ledger == nil {
		ledger = storage.NewLedger()
	}

	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	// The rename is only durable once the directory entry is on disk.
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync ledger directory: %w", err)
	}

	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (s *FileStorage) Close(ctx context.Context) error {
	return nil
}
