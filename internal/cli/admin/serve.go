package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/api/handlers"
	"github.com/cloo-solutions/copilot/internal/config"
	"github.com/cloo-solutions/copilot/internal/database"
	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/jobs"
	"github.com/cloo-solutions/copilot/internal/repository"
	"github.com/cloo-solutions/copilot/internal/server"
	"github.com/cloo-solutions/copilot/internal/service"
	"github.com/cloo-solutions/copilot/internal/storage"
	"github.com/cloo-solutions/copilot/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the copilot API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default from COPILOT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.HasSentry() {
		// 10% sampling in production, everything in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Warn().Err(err).Msg("telemetry init failed (continuing without tracing)")
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Msg("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, ""); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	authSvc := service.NewAuthService(apiKeyRepo, nil)

	if cfg.InitAPIKey != "" {
		if err := bootstrapAPIKey(ctx, cfg, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap api key: %w", err)
		}
	}

	recorder := service.NewAuditRecorder(cfg.AuditBuffer)
	flusher, err := newAuditFlusher(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}
	auditWorker := jobs.NewWorker("audit", flusher, cfg.AuditFlushInterval)
	recorder.OnHighWater(auditWorker.Kick)
	go auditWorker.Start(ctx)

	answerer, err := newAnswerer(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}
	auditSvc := service.NewAuditService(repository.NewAuditRepository(pool), cfg.AuditRoles())

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: authSvc,
		AnswerHandler: handlers.NewAnswerHandler(answerer),
		AuditHandler:  handlers.NewAuditHandler(auditSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		auditWorker.Stop()
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// No request can record any more; flush what is left.
	auditWorker.Stop()
	recorder.Close()
	if err := flusher.ProcessJobs(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("final audit flush failed")
	}
	if dropped := recorder.Dropped(); dropped > 0 {
		log.Warn().Int64("dropped", dropped).Msg("audit records dropped during run")
	}

	log.Info().Msg("server exited")
	return nil
}

// newAuditFlusher drains the recorder into Postgres and, when S3 is
// configured, into the audit archive bucket.
func newAuditFlusher(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, recorder *service.AuditRecorder) (*jobs.AuditFlusher, error) {
	var archive jobs.AuditArchiver
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("audit archive bucket ready")
		archive = storage.NewAuditArchive(s3Client, "")
	}

	return jobs.NewAuditFlusher(recorder.Queue(), repository.NewAuditRepository(pool), archive, jobs.DefaultAuditBatchSize), nil
}

// bootstrapAPIKey stores INIT_API_KEY unless a key with that token exists.
func bootstrapAPIKey(ctx context.Context, cfg *config.Config, authSvc *service.AuthService) error {
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid COPILOT_INIT_API_KEY format (expected 'cpk_<64 hex chars>')")
	}

	if principal, err := authSvc.ValidateAPIKey(ctx, cfg.InitAPIKey); err == nil {
		log.Info().Str("key_id", principal.KeyID).Msg("bootstrap: api key already exists")
		return nil
	} else if errors.Is(err, domain.ErrAPIKeyRevoked) {
		log.Warn().Msg("bootstrap: api key exists but is revoked")
		return nil
	}

	err := authSvc.CreateAPIKeyWithToken(ctx, "bootstrap", cfg.InitAPIKey, cfg.BootstrapRoles())
	if err != nil && !errors.Is(err, domain.ErrAPIKeyAlreadyExists) {
		return err
	}
	log.Info().Strs("roles", cfg.BootstrapRoles()).Msg("bootstrap: created api key")
	return nil
}
