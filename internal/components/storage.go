package components

import (
	"context"
	"fmt"
	"slices"

	"herald/internal/config"
	"herald/internal/storage"
	_ "herald/internal/storage/file"
	_ "herald/internal/storage/redis"
	_ "herald/internal/storage/sqlite"
)

type StorageComponent struct {
	config config.StorageConfig
	store  storage.Store
}

func NewStorageComponent(cfg config.StorageConfig) *StorageComponent {
	return &StorageComponent{
		config: cfg,
	}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	storageType := c.config.Type
	if storageType == "" {
		storageType = "file"
	}
	if !slices.Contains(storage.Registered(), storageType) {
		return fmt.Errorf("storage: unsupported type %q (registered: %v)", storageType, storage.Registered())
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(ctx, c.config)
	if err != nil {
		return fmt.Errorf("storage: failed to initialize store: %w", err)
	}

	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close(ctx)
}

func (c *StorageComponent) Store() storage.Store {
	return c.store
}
