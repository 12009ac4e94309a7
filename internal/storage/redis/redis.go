package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"herald/internal/config"
	"herald/internal/storage"
)

func init() {
	storage.RegisterFactory("redis", func(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
		return New(ctx, cfg.RedisAddr, cfg.RedisKey)
	})
}

// RedisStorage stores the whole ledger as one JSON value under a single
// key, so a commit is a single SET.
type RedisStorage struct {
	client *goredis.Client
	key    string
}

func New(ctx context.Context, addr, key string) (*RedisStorage, error) {
	slog.Info("Initializing Redis storage", "addr", addr, "key", key)

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{client: client, key: key}, nil
}

func (s *RedisStorage) Load(ctx context.Context) (storage.Ledger, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return storage.NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	ledger := storage.NewLedger()
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}

	return ledger, nil
}

func (s *RedisStorage) Commit(ctx context.Context, ledger storage.Ledger) error {
	if ledger == nil {
		ledger = storage.NewLedger()
	}

	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	return nil
}

func (s *RedisStorage) Close(ctx context.Context) error {
	return s.client.Close()
}
