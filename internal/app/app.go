// Package app wires the engine together for the command line: logger,
// operator registry, population, snapshot loading, evaluation and the
// optional external control server.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/opgraph/internal/builtin"
	"github.com/vk/opgraph/internal/control"
	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/store"
)

// App is one engine instance with its configuration and population.
type App struct {
	config *Config
	logger *slog.Logger
	reg    *registry.Registry
	pop    *store.Population

	controlServer *control.Server
}

// New builds an App from a validated config. Log output goes to logW.
func New(cfg *Config, logW io.Writer) *App {
	return &App{
		config: cfg,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, logW),
		reg:    builtin.NewRegistry(),
		pop:    store.New(),
	}
}

// Context returns a context carrying the app's logger.
func (a *App) Context(parent context.Context) context.Context {
	return ctxlog.WithLogger(parent, a.logger)
}

// Registry exposes the operator type table, for embedders registering
// custom types before Run.
func (a *App) Registry() *registry.Registry {
	return a.reg
}

// Population exposes the live operator arena.
func (a *App) Population() *store.Population {
	return a.pop
}
