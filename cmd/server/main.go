package main

import (
	"log"

	"collab-backend/internal/config"
	"collab-backend/internal/server"
)

func main() {
	cfg := config.Load()

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}
