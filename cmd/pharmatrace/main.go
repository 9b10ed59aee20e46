package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmatrace/internal/anchor"
	"pharmatrace/internal/api"
	"pharmatrace/internal/audit"
	"pharmatrace/internal/batch"
	"pharmatrace/internal/config"
	"pharmatrace/internal/custody"
	"pharmatrace/internal/events"
	"pharmatrace/internal/identity"
	"pharmatrace/internal/resolve"
	"pharmatrace/internal/signature"
	"pharmatrace/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("Starting PharmaTrace...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"anchor_enabled", cfg.AnchorEnabled,
		"log_level", cfg.LogLevel,
	)

	// 3. Initialize storage. An empty DATABASE_URL selects the in-memory
	// store for local development.
	ctx := context.Background()
	var repository storage.Repository
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		repository = pg
		slog.Info("Database connected successfully")
	} else {
		repository = storage.NewMemoryRepository()
		slog.Warn("DATABASE_URL not set, using in-memory storage")
	}
	defer repository.Close()

	// 4. Select the anchoring client
	var anchorClient anchor.Client
	if cfg.AnchorEnabled {
		stellar, err := anchor.NewStellarClient(anchor.StellarClientOptions{
			HorizonURL:        cfg.HorizonURL,
			NetworkPassphrase: cfg.NetworkPassphrase,
			Seed:              cfg.AnchorSeed,
		})
		if err != nil {
			log.Fatalf("Failed to create anchoring client: %v", err)
		}
		anchorClient = stellar
		slog.Info("Anchoring against Stellar", "horizon", cfg.HorizonURL)
	} else {
		anchorClient = anchor.LocalClient{}
		slog.Warn("Anchoring disabled, using local receipts")
	}

	// 5. Create the signing key
	var signer signature.Signer
	var err error
	if cfg.SigningSeed != "" {
		signer, err = signature.NewEd25519SignerFromSeed(cfg.SigningSeed)
	} else {
		signer, err = signature.NewEd25519Signer()
		slog.Warn("SIGNING_SEED not set, using an ephemeral signing key")
	}
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}

	// 6. Wire the side channels: best-effort audit recorder and event fan-out
	recorder := audit.NewRecorder(repository, cfg.AuditBufferSize)
	defer recorder.Close()

	dispatcher := events.New([]events.Sink{events.LogSink{}})

	// 7. Create domain services
	services := api.Services{
		Batches:  batch.NewService(repository, anchorClient, batch.NullObjectStore{}, dispatcher, cfg.VerificationBaseURL),
		Custody:  custody.NewService(repository, recorder, dispatcher),
		Resolver: resolve.NewEngine(repository, recorder),
		Signatures: signature.NewService(repository, signer, dispatcher, signature.Config{
			CAProvider:   cfg.CAProvider,
			CertValidity: cfg.CertValidity,
		}),
		Identities: identity.NewService(repository),
	}

	// 8. Start the API server
	server := api.NewServer(cfg.Port, repository, services)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// 9. Wait for interrupt, then drain and shut down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Warn("Interrupt received, shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down API server", "error", err)
	}

	slog.Info("PharmaTrace stopped")
}
