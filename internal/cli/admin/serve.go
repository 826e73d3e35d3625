package admin

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

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/intellinote/intellinote/internal/api/handlers"
	"github.com/intellinote/intellinote/internal/config"
	"github.com/intellinote/intellinote/internal/embedding"
	"github.com/intellinote/intellinote/internal/index"
	"github.com/intellinote/intellinote/internal/jobs"
	"github.com/intellinote/intellinote/internal/openai"
	"github.com/intellinote/intellinote/internal/parser"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/repository"
	"github.com/intellinote/intellinote/internal/server"
	"github.com/intellinote/intellinote/internal/service"
	"github.com/intellinote/intellinote/internal/storage"
	"github.com/intellinote/intellinote/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion daemon",
		Long:  "Start the intellinote API server and background ingestion workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	artifactRepo := repository.NewArtifactRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	chunkCacheRepo := repository.NewChunkCacheRepository(pool)
	jobRepo := repository.NewIngestionJobRepository(pool)

	var blobs service.BlobStore
	if cfg.HasS3() {
		s3Store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
			SpoolDir:        cfg.CASDir,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 store: %w", err)
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobs = s3Store
	} else {
		fileStore, err := storage.NewFileStore(cfg.CASDir)
		if err != nil {
			return fmt.Errorf("failed to create file store: %w", err)
		}
		blobs = fileStore
	}

	if !cfg.HasModelService() {
		log.Println("no model service credentials configured: classification, OCR and embedding are disabled")
	}
	aiClient := openai.NewClient(openai.Config{
		BaseURL:     cfg.BaseURL,
		LLMAPIKey:   cfg.LLMKey(),
		EmbedAPIKey: cfg.EmbedKey(),
		LLMModel:    cfg.LLMModel,
		EmbedModel:  cfg.EmbedModel,
	})

	docParser := parser.NewRegistry(
		parser.NewTextParser(),
		parser.NewPDFParser(parser.NewStructureBackend(), parser.NewRasterizer(), aiClient, cfg.PDF),
	)

	indexStore, err := index.NewStore(cfg.VectorStoreDir)
	if err != nil {
		return fmt.Errorf("failed to create index store: %w", err)
	}

	var progressStore progress.Store = progress.NoopStore{}
	if cfg.HasRedis() {
		redisStore, err := progress.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create progress store: %w", err)
		}
		progressStore = redisStore
		log.Println("redis progress store enabled")
	}

	resolver := embedding.NewResolver(chunkCacheRepo, aiClient, 0)
	classifier := service.NewClassifier(aiClient)

	ingestSvc := service.NewIngestionService(
		docRepo, artifactRepo, blobs, docParser, classifier,
		resolver, indexStore, progressStore, service.DefaultChunkConfig(),
	)
	docSvc := service.NewDocumentService(docRepo, artifactRepo, jobRepo, blobs, indexStore, progressStore)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	workers := make([]*jobs.Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		w := jobs.NewWorker(jobs.NewIngestionWorker(jobRepo, ingestSvc), cfg.WorkerPollInterval)
		workers = append(workers, w)
		go w.Start(workerCtx)
	}
	log.Printf("started %d ingestion workers", concurrency)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(docSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
