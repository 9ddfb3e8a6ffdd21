package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexsign-io/lexsigngo/internal/audit"
	"github.com/lexsign-io/lexsigngo/internal/config"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/detect"
	"github.com/lexsign-io/lexsigngo/internal/evidence"
	"github.com/lexsign-io/lexsigngo/internal/handlers"
	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/notify"
	"github.com/lexsign-io/lexsigngo/internal/storage"
	"github.com/lexsign-io/lexsigngo/internal/workflow"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.SigningFile{},
		&models.SignatureSpot{},
		&models.AuditEvent{},
		&models.ConsentRecord{},
		&models.OtpChallenge{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire the signing core
	store, err := storage.NewLocalStore(cfg.Storage.BaseDir)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	chain := audit.NewChain(db, cfg.IsProduction())

	caps := workflow.NewCapabilitiesCache(10*time.Minute, func() workflow.SchemaCapabilities {
		return workflow.DetectCapabilities(db.DB)
	})

	hub := notify.NewHub()
	svc := workflow.New(db, chain, store, hub, cfg.Signing, caps)
	detector := detect.New()
	assembler := evidence.NewAssembler(db, store, chain)

	// 5. Set up HTTP router
	router := handlers.NewRouter(cfg, db, svc, detector, assembler, hub)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Handler(),
	}

	// 6. Start server with graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server (%s) starting on port %s\n", cfg.NodeEnv, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
