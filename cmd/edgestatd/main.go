package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edgestat/adapters/postgres"
	"edgestat/internal/api"
	"edgestat/internal/config"
	"edgestat/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.NewRunner().Run(context.Background(), db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewApp(api.Config{
		Addr:          ":" + cfg.Server.Port,
		TopEdges:      cfg.Server.TopEdges,
		ShutdownGrace: cfg.Server.ShutdownGrace,
	}, postgres.NewRunRepository(db))

	log.Printf("Starting results API on http://localhost:%s", cfg.Server.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatal("Server failed:", err)
	}
}
