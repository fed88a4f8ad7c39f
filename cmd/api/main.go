package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/handler"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	"github.com/mharburg8/talk-to-your-inner-child/internal/metrics"
	"github.com/mharburg8/talk-to-your-inner-child/internal/middleware"
	chatModel "github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	personaModel "github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/ai"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/speech"
	"github.com/mharburg8/talk-to-your-inner-child/internal/storage"
	"github.com/mharburg8/talk-to-your-inner-child/internal/store"
)

// repository 同时提供人格与会话账本的存储。
type repository interface {
	personaModel.Store
	chatModel.Ledger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	m := metrics.New("inner_self")

	repo, closeRepo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer closeRepo()

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	transcriber := speech.NewTranscriber(ctx, cfg, logger, httpClient)
	synthesizer := speech.NewSynthesizer(ctx, cfg, logger)
	generator, err := ai.NewGenerator(ctx, cfg, logger, httpClient)
	if err != nil {
		log.Fatalf("failed to initialize generator: %v", err)
	}
	log.Printf("providers: stt=%s llm=%s tts=%s", transcriber.Name(), generator.Name(), synthesizer.Name())

	chatService, err := chat.NewService(chat.Deps{
		Ledger:          repo,
		Personas:        repo,
		Transcriber:     transcriber,
		Generator:       generator,
		Synthesizer:     synthesizer,
		Storage:         objects,
		Metrics:         m,
		Logger:          logger,
		MaxSessionTurns: cfg.Limits.MaxSessionTurns,
	})
	if err != nil {
		log.Fatalf("failed to initialize chat service: %v", err)
	}
	personaService := persona.NewService(repo, objects, m, logger, cfg.Limits.SignedURLExpiry)

	if cfg.Auth.Disabled {
		log.Printf("warning: authentication disabled, trusting %s header", middleware.DevUserHeader)
	}

	router := handler.NewRouter(handler.Deps{
		Personas:      personaService,
		Chat:          chatService,
		Auth:          middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Disabled),
		Metrics:       m,
		Logger:        logger,
		MaxAudioBytes: cfg.Limits.MaxAudioBytes,
	})

	startServer(ctx, cfg.Server, router)
}

// openRepository DATABASE_URL 为空时退回内存存储，数据随进程消失。
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (repository, func(), error) {
	if cfg.URL == "" {
		log.Println("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.OpenPostgres(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Println("postgres connected, migrations applied")

	return store.NewPostgresStore(db), func() { closeDB(db) }, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("failed to close database: %v", err)
	}
}

func openObjectStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend != config.StorageS3 {
		log.Println("using in-memory object storage")
		return storage.NewMemoryStore("", cfg.Limits.SignedURLExpiry), nil
	}

	s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Expiry:          cfg.Limits.SignedURLExpiry,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("using s3 bucket %s (%s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return s3Store, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Inner Self backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
