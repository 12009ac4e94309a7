package components

import (
	"context"
	"log/slog"

	"herald/internal/config"
	"herald/internal/server"
)

// ServerComponent owns the notification history and, when enabled, the
// status server that exposes it.
type ServerComponent struct {
	name    string
	config  config.ServerConfig
	status  func() any
	logger  *slog.Logger
	history *server.History
	server  *server.Server
}

func NewServerComponent(name string, cfg config.ServerConfig, status func() any, logger *slog.Logger) *ServerComponent {
	if logger == nil {
		logger = slog.Default()
	}

	return &ServerComponent{
		name:    name,
		config:  cfg,
		status:  status,
		logger:  logger,
		history: server.NewHistory(name, cfg.HistorySize),
	}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{StorageComponentName, PlatformComponentName}
}

func (c *ServerComponent) Validate() error {
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	srv := server.New(c.name, server.Config{Addr: c.config.Addr, Status: c.status}, c.history, c.logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	c.server = srv
	return nil
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	if err := c.server.Shutdown(ctx); err != nil {
		c.logger.Error("Error shutting down status server", "name", c.name, "error", err)
		return err
	}
	return nil
}

func (c *ServerComponent) Enabled() bool {
	return c.config.Enabled
}

func (c *ServerComponent) History() *server.History {
	return c.history
}

// Server returns nil when the status server is disabled.
func (c *ServerComponent) Server() *server.Server {
	return c.server
}
