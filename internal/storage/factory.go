package storage

import (
	"context"
	"fmt"
	"sort"

	"herald/internal/config"
)

type FactoryFunc func(ctx context.Context, cfg config.StorageConfig) (Store, error)

var factoryFuncs = map[string]FactoryFunc{}

func RegisterFactory(storageType string, fn FactoryFunc) {
	factoryFuncs[storageType] = fn
}

func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "file"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s (registered: %v)", storageType, Registered())
	}

	return fn(ctx, cfg)
}

func Registered() []string {
	types := make([]string, 0, len(factoryFuncs))
	for t := range factoryFuncs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
