package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"collab-backend/internal/config"
	"collab-backend/internal/document"
	"collab-backend/internal/handler"
	"collab-backend/internal/lock"
	"collab-backend/internal/presence"
	"collab-backend/internal/storage"
)

// Server wires the Fiber app to the sync engine.
type Server struct {
	app         *fiber.App
	cfg         *config.Config
	service     *document.Service
	locks       *lock.Table
	presence    *presence.Manager
	wsHandler   *handler.EditorWSHandler
	docsHandler *handler.DocsHandler
}

// New builds the full server: storage, document service, lock table,
// optional presence backend, and the handlers on top of them.
func New(cfg *config.Config) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:         "Collab Document Server",
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		BodyLimit:       10 * 1024 * 1024,
	})

	store, err := storage.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	service := document.NewService(store, cfg.Autosave.MaxEdits, cfg.Autosave.MaxInterval)
	locks := lock.NewTable()

	var pres *presence.Manager
	if cfg.Redis.Enabled {
		pres, err = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("[Server] presence backend unavailable, continuing without: %v", err)
			pres = nil
		}
	}

	return &Server{
		app:         app,
		cfg:         cfg,
		service:     service,
		locks:       locks,
		presence:    pres,
		wsHandler:   handler.NewEditorWSHandler(service, locks, pres),
		docsHandler: handler.NewDocsHandler(service, pres),
	}, nil
}

// SetupMiddleware installs panic recovery, request logging and CORS.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
}

// SetupRoutes registers the REST directory and the editor websocket.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	docs := s.app.Group("/api/documents")
	docs.Get("/", s.docsHandler.GetDocuments)
	docs.Post("/", s.docsHandler.CreateDocument)
	docs.Delete("/:docId", s.docsHandler.DeleteDocument)
	docs.Get("/:docId/viewers", s.docsHandler.GetViewers)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Auth is out of scope: the editor self-identifies with a userId query
	// parameter.
	s.app.Get("/ws/editor", func(c *fiber.Ctx) error {
		userID := c.Query("userId")
		if userID == "" {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		c.Locals("userId", userID)
		return c.Next()
	}, websocket.New(s.wsHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server until SIGINT/SIGTERM, then flushes every room's
// unsaved edits before shutting the listener down.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("[Server] shutting down...")
		s.service.SaveAll()
		if s.presence != nil {
			s.presence.Close()
		}
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("[Server] shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] collab document server starting on %s", s.cfg.Server.Port)
	log.Printf("[Server] editor endpoint: ws://localhost%s/ws/editor", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server, flushing unsaved document state first.
func (s *Server) Shutdown() error {
	s.service.SaveAll()
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
