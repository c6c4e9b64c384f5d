package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/attachments"
	"github.com/Arturr-H/Quicknote-backend/internal/auth"
	"github.com/Arturr-H/Quicknote-backend/internal/config"
	"github.com/Arturr-H/Quicknote-backend/internal/database"
	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"github.com/Arturr-H/Quicknote-backend/internal/logging"
	"github.com/Arturr-H/Quicknote-backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quicknote-api",
		Short: "Quicknote document backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().Int64("max-concurrent-requests", defaults.GetInt64("http.max_concurrent_requests"), "Requests served at once")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to make credentialed cross-origin requests")
	cmd.PersistentFlags().String("database-dsn", "", "Database DSN (sqlite path or postgres:// URL)")
	cmd.PersistentFlags().String("identity-base-url", "", "Base URL of the identity service")
	cmd.PersistentFlags().String("attachments-backend", defaults.GetString("attachments.backend"), "Attachment storage backend (filesystem, minio)")
	cmd.PersistentFlags().String("attachments-root", defaults.GetString("attachments.root"), "Root directory of the filesystem attachment backend")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.max_concurrent_requests", "max-concurrent-requests")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "identity.base_url", "identity-base-url")
	bindFlag(cmd, "attachments.backend", "attachments-backend")
	bindFlag(cmd, "attachments.root", "attachments-root")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := newAttachmentStore(appConfig, logger)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(appConfig, logger)
	if err != nil {
		return err
	}
	gateway, err := auth.NewGateway(verifier)
	if err != nil {
		return err
	}

	repository, err := documents.NewRepository(documents.RepositoryConfig{
		Database: db,
		Logger:   logger,
		Timeout:  appConfig.DatabaseTimeout,
	})
	if err != nil {
		return err
	}
	documentsService, err := documents.NewService(documents.ServiceConfig{
		Repository:           repository,
		Attachments:          store,
		IDProvider:           documents.NewUUIDProvider(),
		Clock:                time.Now,
		Logger:               logger,
		RequireOwnedDocument: appConfig.RequireOwnedDocument,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authenticator:         gateway,
		DocumentsService:      documentsService,
		Logger:                logger,
		MaxConcurrentRequests: appConfig.MaxConcurrentRequests,
		AllowedOrigins:        appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("attachments_backend", appConfig.AttachmentsBackend),
			zap.Int64("max_concurrent_requests", appConfig.MaxConcurrentRequests))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newAttachmentStore(appConfig config.AppConfig, logger *zap.Logger) (documents.AttachmentStore, error) {
	if appConfig.AttachmentsBackend == config.AttachmentsBackendMinio {
		return attachments.NewObjectStore(attachments.ObjectStoreConfig{
			Endpoint:  appConfig.Minio.Endpoint,
			AccessKey: appConfig.Minio.AccessKey,
			SecretKey: appConfig.Minio.SecretKey,
			Bucket:    appConfig.Minio.Bucket,
			Region:    appConfig.Minio.Region,
			UseSSL:    appConfig.Minio.UseSSL,
			Logger:    logger,
		})
	}
	return attachments.NewFilesystemStore(attachments.FilesystemStoreConfig{
		Root:   appConfig.AttachmentsRoot,
		Logger: logger,
	})
}

// newVerifier prefers local JWT validation when a secret is configured.
func newVerifier(appConfig config.AppConfig, logger *zap.Logger) (auth.Verifier, error) {
	if strings.TrimSpace(appConfig.IdentityJWTSecret) != "" {
		return auth.NewJWTVerifier(auth.JWTVerifierConfig{
			SigningSecret: []byte(appConfig.IdentityJWTSecret),
		})
	}
	return auth.NewIdentityServiceVerifier(auth.IdentityServiceVerifierConfig{
		BaseURL: appConfig.IdentityBaseURL,
		Timeout: appConfig.IdentityTimeout,
		Logger:  logger,
	})
}
