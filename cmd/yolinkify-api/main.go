package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/auth"
	"github.com/YO3CODER/yolinkify-sub000/internal/config"
	"github.com/YO3CODER/yolinkify-sub000/internal/database"
	"github.com/YO3CODER/yolinkify-sub000/internal/engagement"
	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/YO3CODER/yolinkify-sub000/internal/logging"
	"github.com/YO3CODER/yolinkify-sub000/internal/server"
	"github.com/YO3CODER/yolinkify-sub000/internal/viewers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "yolinkify-api",
		Short: "Link page engagement service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newAddLinkCommand(),
		newDeleteLinkCommand(),
		newMintSessionCommand(),
		newSnapshotCommand(),
		newLikeCommand(),
		newClickCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the API with credentials")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Counter store backend (sqlite, redis)")
	cmd.PersistentFlags().Duration("store-timeout", defaults.GetDuration("store.timeout"), "Upper bound on a single counter store call")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the redis store backend")
	cmd.PersistentFlags().String("base-url", defaults.GetString("client.base_url"), "Engagement API base URL used by client commands")
	cmd.PersistentFlags().String("session-token", "", "Session token used by client commands")
	cmd.PersistentFlags().String("like-cache", defaults.GetString("client.like_cache"), "File keeping likes made while the API was unreachable")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "store.timeout", "store-timeout")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "client.base_url", "base-url")
	bindFlag(cmd, "client.session_token", "session-token")
	bindFlag(cmd, "client.like_cache", "like-cache")
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

	backend, err := openCounterBackend(ctx, appConfig.StoreConfig, db, logger)
	if err != nil {
		return err
	}
	defer backend.close()
	if err := registerStoredLinks(ctx, db, backend, logger); err != nil {
		return err
	}
	store := backend.store

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := engagement.NewMetrics(registry)
	if err != nil {
		return err
	}

	engagementConfig := engagement.Config{Store: store, Logger: logger, Metrics: metrics}
	toggles, err := engagement.NewToggleEngine(engagementConfig)
	if err != nil {
		return err
	}
	clicks, err := engagement.NewClickRecorder(engagementConfig)
	if err != nil {
		return err
	}
	snapshots, err := engagement.NewSnapshotReader(engagementConfig)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	resolver, err := viewers.NewResolver(viewers.ResolverConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		Viewers:        resolver,
		Toggles:        toggles,
		Clicks:         clicks,
		Snapshots:      snapshots,
		Realtime:       server.NewRealtimeDispatcher(),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowedOrigins: appConfig.AllowedOrigins,
		StoreTimeout:   appConfig.StoreTimeout,
		Logger:         logger,
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
			zap.String("store_backend", appConfig.StoreBackend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// counterBackend is an opened counter store. lifecycle is set when the store
// keeps its own record of links and must follow the catalog.
type counterBackend struct {
	store     engagement.CounterStore
	lifecycle links.Lifecycle
	register  func(ctx context.Context, ids []links.LinkID) error
	close     func()
}

func openCounterBackend(ctx context.Context, storeConfig config.StoreConfig, db *gorm.DB, logger *zap.Logger) (counterBackend, error) {
	if storeConfig.StoreBackend != config.StoreBackendRedis {
		store, err := engagement.NewSQLStore(engagement.SQLStoreConfig{Database: db})
		if err != nil {
			return counterBackend{}, err
		}
		return counterBackend{store: store, close: func() {}}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     storeConfig.RedisAddress,
		Password: storeConfig.RedisPassword,
		DB:       storeConfig.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, storeConfig.StoreTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return counterBackend{}, fmt.Errorf("redis ping %s: %w", storeConfig.RedisAddress, err)
	}
	store, err := engagement.NewRedisStore(engagement.RedisStoreConfig{
		Client:    client,
		KeyPrefix: storeConfig.RedisKeyPrefix,
	})
	if err != nil {
		client.Close()
		return counterBackend{}, err
	}
	logger.Info("redis counter store ready", zap.String("address", storeConfig.RedisAddress))
	return counterBackend{
		store:     store,
		lifecycle: store,
		register:  store.RegisterLinks,
		close: func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		},
	}, nil
}

// registerStoredLinks makes links published before the backend was selected
// known to it.
func registerStoredLinks(ctx context.Context, db *gorm.DB, backend counterBackend, logger *zap.Logger) error {
	if backend.register == nil {
		return nil
	}
	catalog, err := links.NewCatalog(links.CatalogConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	ids, err := catalog.IDs(ctx)
	if err != nil {
		return err
	}
	if err := backend.register(ctx, ids); err != nil {
		return fmt.Errorf("register links with counter store: %w", err)
	}
	logger.Info("links registered with counter store", zap.Int("links", len(ids)))
	return nil
}
