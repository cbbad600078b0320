package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"accountapi/internal/auth"
	"accountapi/internal/config"
	"accountapi/internal/file"
	"accountapi/internal/i18n"
	"accountapi/internal/mail"
	"accountapi/internal/platform/crypto"
	"accountapi/internal/platform/logger"
	"accountapi/internal/token"
	"accountapi/internal/user"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	log := logger.New(cfg.App.LogLevel).With().Str("env", cfg.App.Env).Logger()

	dbPool := mustOpenDB(cfg.DB.DSN, log)
	defer dbPool.Close()

	files, err := openFileStore(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("cannot open file store")
	}

	messages, err := i18n.New(cfg.I18n.DefaultLanguage)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load message catalogs")
	}

	tokenService := token.NewService(
		token.NewPostgresRepo(dbPool, cfg.DB.QueryTimeout),
		token.Config{
			ExpirationWindow: cfg.Token.ExpirationWindow,
			SweepInterval:    cfg.Token.SweepInterval,
			Bytes:            cfg.Token.Bytes,
		},
		token.WithLogger(log.With().Str("component", "token").Logger()),
		token.WithMetrics(token.NewMetrics(prometheus.DefaultRegisterer)),
	)
	cleanup := tokenService.ScheduledCleanup(cfg.Token.SweepInterval)

	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		UseTLS:   cfg.Mail.UseTLS,
	})
	mailer := mail.NewMailer(sender, cfg.Mail.LinkBase, log.With().Str("component", "mail").Logger())

	hasher := crypto.NewBcryptHasher(bcrypt.DefaultCost)
	userService := user.NewService(
		user.NewPostgresRepo(dbPool, cfg.DB.QueryTimeout),
		hasher, mailer, files, tokenService,
		log.With().Str("component", "user").Logger(),
	)
	authService := auth.NewService(userService, hasher, tokenService)

	handler := newRouter(routes{
		auth:    auth.NewHTTPHandler(authService, messages, log),
		users:   user.NewHTTPHandler(userService, files, messages, log),
		tokens:  tokenService,
		metrics: promhttp.Handler(),
		ready: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			return dbPool.Ping(ctx)
		},
	}, cfg.App, log)

	httpServer := &http.Server{
		Addr:         cfg.App.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.App.Addr).Msg("starting server")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := cleanup.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("token cleanup did not stop in time")
	}
}

func openFileStore(ctx context.Context, cfg config.StorageConfig) (file.Store, error) {
	if cfg.Driver == "s3" {
		return file.NewS3Store(ctx, file.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.ProfileDir,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return file.NewDiskStore(cfg.UploadDir, cfg.ProfileDir)
}

func mustOpenDB(dsn string, log zerolog.Logger) *pgxpool.Pool {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create db pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Fatal().Err(err).Str("dsn", redactDSN(dsn)).Msg("cannot ping database")
	}
	log.Info().Msg("database connection OK")
	return pool
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
