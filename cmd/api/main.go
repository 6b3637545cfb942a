package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/christophervi/secainw-backend/internal/application"
	"github.com/christophervi/secainw-backend/internal/application/baseline"
	"github.com/christophervi/secainw-backend/internal/application/detection"
	"github.com/christophervi/secainw-backend/internal/application/enrichment"
	"github.com/christophervi/secainw-backend/internal/application/imports"
	"github.com/christophervi/secainw-backend/internal/config"
	"github.com/christophervi/secainw-backend/internal/domain/events"
	"github.com/christophervi/secainw-backend/internal/infra/ai/anthropic"
	"github.com/christophervi/secainw-backend/internal/infra/ai/deepseek"
	"github.com/christophervi/secainw-backend/internal/infra/ai/openai"
	mysqlp "github.com/christophervi/secainw-backend/internal/infra/db/mysql"
	postgresp "github.com/christophervi/secainw-backend/internal/infra/db/postgres"
	"github.com/christophervi/secainw-backend/internal/infra/httpserver"
	"github.com/christophervi/secainw-backend/internal/infra/nvd"
	"github.com/christophervi/secainw-backend/internal/infra/storage"
	"github.com/christophervi/secainw-backend/internal/infra/vector"
	"github.com/christophervi/secainw-backend/internal/middleware"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database (driver selected by config)
	var db *sql.DB
	var repo events.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewEventRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewEventRepository(db)
	}
	defer db.Close()

	// similarity store (embeddings via OpenAI)
	history, err := vector.NewOpenAIStore(cfg.AI.OpenAI.APIKey)
	if err != nil {
		log.Fatalf("vector store init error: %v", err)
	}

	// enrichment via the NVD feed
	enricher := enrichment.NewService(nvd.NewClient(cfg.NVD.BaseURL, cfg.NVD.APIKey))

	clock := application.SystemClock{}

	detectionSvc := &detection.Service{
		Repo:      repo,
		History:   history,
		Enricher:  enricher,
		Clock:     clock,
		DeepSeek:  deepseek.NewClient(cfg.AI.DeepSeek.APIKey, cfg.AI.DeepSeek.Model, cfg.AI.DeepSeek.BaseURL),
		Anthropic: anthropic.NewClient(cfg.AI.Anthropic.APIKey, cfg.AI.Anthropic.Model, cfg.AI.Anthropic.BaseURL),
		OpenAI:    openai.NewClient(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model),
	}

	baselineSvc := baseline.NewService(repo, enricher, clock)

	// archive store is optional; imports proceed without it
	var archive imports.Archive
	if cfg.Minio.Endpoint != "" {
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
	}

	importSvc := imports.NewService(baselineSvc, archive, history, cfg.Import.Workers)
	if cfg.Import.MaxRecords > 0 {
		importSvc.MaxRecords = cfg.Import.MaxRecords
	}

	dataDir := "data"
	if v := os.Getenv("DATA_DIR"); v != "" {
		dataDir = v
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	mux := httpserver.NewRouter(detectionSvc, baselineSvc, importSvc, repo, dataDir, checkers)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
