package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tesseralabs/tessera/backend/internal/access"
	"github.com/tesseralabs/tessera/backend/internal/activity"
	"github.com/tesseralabs/tessera/backend/internal/auth"
	"github.com/tesseralabs/tessera/backend/internal/comments"
	"github.com/tesseralabs/tessera/backend/internal/config"
	"github.com/tesseralabs/tessera/backend/internal/database"
	"github.com/tesseralabs/tessera/backend/internal/documents"
	"github.com/tesseralabs/tessera/backend/internal/logging"
	"github.com/tesseralabs/tessera/backend/internal/notifications"
	"github.com/tesseralabs/tessera/backend/internal/rooms"
	"github.com/tesseralabs/tessera/backend/internal/server"
	"github.com/tesseralabs/tessera/backend/internal/uploads"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tessera-gateway",
		Short: "Tessera real-time collaboration gateway",
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("auth-issuer", defaults.GetString("auth.issuer"), "Expected access token issuer")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().String("storage-endpoint", defaults.GetString("storage.endpoint"), "S3-compatible storage endpoint")
	cmd.PersistentFlags().String("storage-access-key", "", "Storage access key (overrides env)")
	cmd.PersistentFlags().String("storage-secret-key", "", "Storage secret key (overrides env)")
	cmd.PersistentFlags().String("storage-bucket", defaults.GetString("storage.bucket"), "Attachment bucket name")
	cmd.PersistentFlags().String("storage-public-url", defaults.GetString("storage.public_url"), "Public base URL for uploaded objects")
	cmd.PersistentFlags().Bool("storage-use-ssl", defaults.GetBool("storage.use_ssl"), "Use TLS when dialing storage")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "storage.endpoint", "storage-endpoint")
	bindFlag(cmd, "storage.access_key", "storage-access-key")
	bindFlag(cmd, "storage.secret_key", "storage-secret-key")
	bindFlag(cmd, "storage.bucket", "storage-bucket")
	bindFlag(cmd, "storage.public_url", "storage-public-url")
	bindFlag(cmd, "storage.use_ssl", "storage-use-ssl")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        appConfig.AuthIssuer,
	})
	if err != nil {
		return err
	}

	gate, err := access.NewGate(access.GateConfig{Database: db})
	if err != nil {
		return err
	}

	documentsService, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		IDProvider: documents.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	commentsService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		IDProvider: comments.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	activityService, err := activity.NewService(activity.ServiceConfig{
		Database:   db,
		IDProvider: activity.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	notificationsService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		IDProvider: notifications.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	storageClient, err := uploads.NewMinioClient(
		appConfig.StorageEndpoint,
		appConfig.StorageAccessKey,
		appConfig.StorageSecretKey,
		appConfig.StorageUseSSL,
	)
	if err != nil {
		return err
	}
	uploadBridge, err := uploads.NewBridge(uploads.BridgeConfig{
		Client:    storageClient,
		Bucket:    appConfig.StorageBucket,
		PublicURL: appConfig.StoragePublicURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:      verifier,
		Gate:          gate,
		Registry:      rooms.NewRegistry(logger),
		Documents:     documentsService,
		Comments:      commentsService,
		Activity:      activityService,
		Notifications: notificationsService,
		Uploader:      uploadBridge,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", zap.String("address", appConfig.HTTPAddress))
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
