package storage

import (
	"context"
	"log/slog"
)

// Store persists the dedup ledger. Commit replaces the whole persisted
// ledger; a reader never observes a partially written one.
type Store interface {
	Load(ctx context.Context) (Ledger, error)
	Commit(ctx context.Context, ledger Ledger) error
	Close(ctx context.Context) error
}

// Load reads the ledger from store. A missing or unreadable ledger is not
// fatal: it is logged and an empty ledger is returned, so every currently
// visible item will be treated as new.
func Load(ctx context.Context, store Store, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	ledger, err := store.Load(ctx)
	if err != nil {
		logger.Error("Failed to load ledger, starting empty", "error", err)
		return NewLedger()
	}
	if ledger == nil {
		return NewLedger()
	}

	logger.Info("Loaded ledger", "sources", len(ledger), "records", ledger.Records())
	return ledger
}
