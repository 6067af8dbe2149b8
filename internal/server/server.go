// Package server wires the chat subsystem together: store, registry,
// fan-out pipeline, HTTP API and WebSocket transport.
package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/parley/internal/auth"
	"github.com/nfrund/parley/internal/config"
	"github.com/nfrund/parley/internal/dispatch"
	"github.com/nfrund/parley/internal/handlers"
	"github.com/nfrund/parley/internal/logging"
	"github.com/nfrund/parley/internal/middleware"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
	"github.com/nfrund/parley/internal/store"
	"github.com/surrealdb/surrealdb.go"
)

// Server holds the dependencies for the chat server.
type Server struct {
	E          *echo.Echo
	DB         *surrealdb.DB
	Cfg        *config.Config
	Bus        *pubsub.WatermillBus
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher

	chatStore   *store.Store
	verifier    auth.Verifier
	chatHandler *handlers.ChatHandler
}

// New creates a new Server instance.
func New() *Server {
	logging.New()
	cfg := config.New()

	db, err := store.Connect(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	chatStore := store.New(db, cfg.DBNs, cfg.DBDb)
	reg := registry.New()
	bus := pubsub.NewWatermillBus()
	dispatcher := dispatch.New(reg, chatStore, bus)
	verifier := auth.NewJWTVerifier(cfg.TokenSecret)
	chatHandler := handlers.NewChatHandler(chatStore, bus)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())

	return &Server{
		E:           e,
		DB:          db,
		Cfg:         cfg,
		Bus:         bus,
		Registry:    reg,
		Dispatcher:  dispatcher,
		chatStore:   chatStore,
		verifier:    verifier,
		chatHandler: chatHandler,
	}
}
