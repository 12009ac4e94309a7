package state

import (
	"herald/internal/components"
	"herald/internal/config"
	"herald/internal/core"
	"herald/internal/server"
)

type State struct {
	Config   *config.Config
	Registry *components.Registry
	Pipeline *core.Pipeline
	Bot      *core.Bot
	History  *server.History
}

func NewState(cfg *config.Config, registry *components.Registry, pipeline *core.Pipeline) *State {
	return &State{
		Config:   cfg,
		Registry: registry,
		Pipeline: pipeline,
	}
}

// Name is the configured bot name.
func (s *State) Name() string {
	return s.Config.Bot.Name
}
