// Package app wires the story, the store and the game service together for
// the binaries.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/config"
	"github.com/tatianab/castle-adventure/internal/ending"
	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/storage"
	"github.com/tatianab/castle-adventure/internal/storage/file"
	"github.com/tatianab/castle-adventure/internal/storage/sqlite"
	"github.com/tatianab/castle-adventure/internal/story"
)

// App is a ready-to-use game backend.
type App struct {
	Graph    *story.Graph
	Resolver *ending.Resolver
	Store    storage.Store
	Service  *game.Service
	Logger   *zap.Logger
}

// LoadStory reads the story at path, or the embedded castle story when path
// is empty, and refuses content that fails validation or that the ending
// rules cannot resolve against.
func LoadStory(path string, resolver *ending.Resolver) (*story.Graph, error) {
	g, err := story.Load(path)
	if err != nil {
		return nil, err
	}
	if err := resolver.Check(g); err != nil {
		return nil, err
	}
	return g, nil
}

// OpenStore opens the backend named in cfg.
func OpenStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.DatabasePath)
	case config.BackendFile:
		return file.Open(cfg.SaveDir)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// New loads content, opens the store and builds the service.
func New(cfg *config.Config, logger *zap.Logger, opts ...game.Option) (*App, error) {
	resolver := ending.Default()
	g, err := LoadStory(cfg.Content, resolver)
	if err != nil {
		return nil, fmt.Errorf("load story: %w", err)
	}
	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	logger.Info("game backend ready",
		zap.String("story", g.Title()),
		zap.Int("scenes", len(g.Scenes())),
		zap.String("store", cfg.Store.Backend),
	)
	return &App{
		Graph:    g,
		Resolver: resolver,
		Store:    store,
		Service:  game.NewService(g, store, store, resolver, logger, opts...),
		Logger:   logger,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
