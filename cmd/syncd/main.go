package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"finqueue/internal/api"
	"finqueue/internal/binding"
	"finqueue/internal/config"
	"finqueue/internal/database"
	"finqueue/internal/deadletter"
	"finqueue/internal/delivery"
	"finqueue/internal/events"
	"finqueue/internal/logging"
	"finqueue/internal/metrics"
	"finqueue/internal/netmon"
	"finqueue/internal/notify"
	"finqueue/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := delivery.NewClient(cfg.Delivery)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create delivery client")
		return err
	}

	bus := events.NewBus()
	redisClient, deadStore := initDeadLetterStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	monitor := netmon.NewMonitor(client, bus, time.Duration(cfg.Network.ProbeIntervalSeconds)*time.Second, &logger)
	engine := syncer.NewEngine(db, client, bus, monitor.IsOnline, retryPolicy(cfg), deadStore, &logger)
	monitor.OnOnline(func() {
		go func() {
			if err := engine.SyncNow(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Reconnect sync failed")
			}
		}()
	})
	go monitor.Run(ctx)

	b, err := binding.New(ctx, db, engine, monitor, bus, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create binding")
		return err
	}
	defer b.Close()

	if cfg.Alerts.TelegramEnabled {
		alerter, err := notify.NewAlerter(cfg.Alerts, &logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram alerts unavailable")
		} else {
			alerter.Watch(bus)
			defer alerter.Close()
		}
	}

	if cfg.Monitoring.PrometheusEnabled {
		startMetricsServer(cfg, &logger)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	var apiServer *api.HTTPServer
	if cfg.API.Enabled {
		apiServer = api.NewHTTPServer(cfg.API, b, deadStore, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	// Запускаем стартовую синхронизацию, если бекенд уже доступен
	if monitor.IsOnline() {
		go func() {
			if err := engine.SyncNow(ctx); err != nil {
				logger.Error().Err(err).Msg("Startup sync failed")
			}
		}()
	}

	logger.Info().Msg("finqueue started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "syncd-main").Logger()

	if err := mergeAPIKeys(cfg, &logger); err != nil {
		return nil, zerolog.Logger{}, closer, err
	}

	return cfg, logger, closer, nil
}

// mergeAPIKeys appends producer keys from an optional side file, so keys
// rotate without touching the main config.
func mergeAPIKeys(cfg *config.Config, logger *zerolog.Logger) error {
	keysPath := os.Getenv("API_KEYS_PATH")
	if keysPath == "" {
		keysPath = "configs/apikeys.yaml"
	}

	data, err := os.ReadFile(keysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Error().Err(err).Msgf("Ошибка чтения %s", keysPath)
		return err
	}

	var keysConfig struct {
		APIKeys []config.APIClientKey `yaml:"api_keys"`
	}
	if err := yaml.Unmarshal(data, &keysConfig); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга apikeys.yaml")
		return err
	}

	cfg.API.Auth.APIKeys = append(cfg.API.Auth.APIKeys, keysConfig.APIKeys...)
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.API.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initDeadLetterStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, deadletter.Store) {
	fallback := deadletter.NewMemoryStore()
	if !cfg.Redis.Enabled {
		return nil, fallback
	}

	redisClient := deadletter.NewRedisClient(cfg.Redis)
	if err := deadletter.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := deadletter.NewRedisStore(redisClient)
	return redisClient, deadletter.NewFailoverStore(primary, fallback, logger)
}

func retryPolicy(cfg *config.Config) syncer.RetryPolicy {
	policy := syncer.RetryPolicy{Enabled: cfg.Sync.Backoff.Enabled}
	if policy.Enabled {
		// durations are pre-validated by config.Load
		policy.InitialDelay, _ = time.ParseDuration(cfg.Sync.Backoff.InitialDelay)
		policy.MaxDelay, _ = time.ParseDuration(cfg.Sync.Backoff.MaxDelay)
		policy.BackoffFactor = cfg.Sync.Backoff.BackoffFactor
	}
	return policy
}

func startMetricsServer(cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	go func() {
		logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
}
