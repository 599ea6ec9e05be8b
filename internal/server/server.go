package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/courier/internal/broker"
	"github.com/nfrund/courier/internal/config"
	"github.com/nfrund/courier/internal/database"
	"github.com/nfrund/courier/internal/gateway"
	"github.com/nfrund/courier/internal/handlers"
	"github.com/nfrund/courier/internal/logging"
	"github.com/nfrund/courier/internal/messaging"
	"github.com/nfrund/courier/internal/presence"
	"github.com/nfrund/courier/internal/pubsub"
)

// Server holds the dependencies for the message delivery service.
type Server struct {
	E   *echo.Echo
	DB  *surrealdb.DB
	Cfg *config.Config

	broker         *broker.Manager
	bus            *pubsub.WatermillBridge
	gateway        *gateway.Gateway
	messageHandler *handlers.MessageHandler
}

// New creates a fully wired Server instance. A missing database is fatal; an
// unreachable broker is not, the server starts degraded and send operations
// surface queue errors until the broker is back.
func New() *Server {
	logging.New()
	cfg := config.New()

	db, err := database.NewDB(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	queueManager := broker.New(cfg.AmqpURL)
	bus := pubsub.NewWatermillBridge()

	messageStore := database.NewMessageStore(db)
	userStore := database.NewUserStore(db)

	registry := presence.NewService(bus)
	gw := gateway.New(queueManager, messageStore, registry, bus)
	messagingSvc := messaging.NewService(messageStore, userStore, queueManager)
	messageHandler := handlers.NewMessageHandler(messagingSvc)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Validator = handlers.NewValidator()

	return &Server{
		E:              e,
		DB:             db,
		Cfg:            cfg,
		broker:         queueManager,
		bus:            bus,
		gateway:        gw,
		messageHandler: messageHandler,
	}
}
