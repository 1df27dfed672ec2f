// docgate - token-gated document store front end
//
// This is the main entry point for docgate. It serves a static web
// application and a per-collection document API behind a stateless token
// gateway, and relays document changes to authenticated WebSocket clients
// and, optionally, an MQTT broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/docgate/internal/api"
	"github.com/nerrad567/docgate/internal/audit"
	"github.com/nerrad567/docgate/internal/auth"
	"github.com/nerrad567/docgate/internal/document"
	"github.com/nerrad567/docgate/internal/infrastructure/config"
	"github.com/nerrad567/docgate/internal/infrastructure/database"
	"github.com/nerrad567/docgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/docgate/internal/infrastructure/logging"
	"github.com/nerrad567/docgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/docgate/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:funlen // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting docgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	directory, err := buildDirectory(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("building user directory: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(auth.HashConfig{
		Algorithm:  cfg.Security.Hash.Algorithm,
		SaltLength: cfg.Security.Hash.SaltLength,
	})
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}
	log.Debug("password hasher ready", "algorithm", hasher.Algorithm())

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:    cfg.Security.JWT.Secret,
		Algorithm: cfg.Security.JWT.Algorithm,
		Expiry:    cfg.Security.JWT.Expiry,
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	classifier, err := auth.NewRouteClassifier(cfg.Routes.Allow, cfg.Routes.Disallow, cfg.Routes.LoginPage)
	if err != nil {
		return fmt.Errorf("compiling route rules: %w", err)
	}

	store := document.NewStore(db.DB)

	hub := api.NewHub(cfg.WebSocket, log)
	store.AddNotifier(hub)
	go hub.Run(ctx)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startChangePublisher(ctx, cfg.MQTT, store, log)
		if err != nil {
			return fmt.Errorf("starting change publisher: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	var metrics *influxdb.Client
	if cfg.InfluxDB.Enabled {
		metrics, err = startUsageMetrics(ctx, cfg.InfluxDB, store, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metrics.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	} else {
		log.Info("InfluxDB disabled")
	}

	deps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Routes:        cfg.Routes,
		Logger:        log,
		Classifier:    classifier,
		Extractor:     auth.NewTokenExtractor(cfg.Security.JWT.TokenName),
		Tokens:        tokens,
		Hasher:        hasher,
		Authenticator: auth.NewAuthenticator(directory, hasher, tokens),
		Documents:     store,
		AuditRepo:     audit.NewSQLiteRepository(db.DB),
		Hub:           hub,
		Version:       version,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, metrics); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"directory", cfg.Directory.Backend,
		"mqtt", cfg.MQTT.Enabled,
		"influxdb", cfg.InfluxDB.Enabled,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DOCGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DOCGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDirectory returns the configured user directory. The SQLite backend
// is seeded with any configured users it does not hold yet.
func buildDirectory(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (auth.UserDirectory, error) {
	users := make([]auth.User, 0, len(cfg.Directory.Users))
	for _, u := range cfg.Directory.Users {
		users = append(users, auth.User{Username: u.Username, PasswordHash: u.PasswordHash})
	}

	if cfg.Directory.Backend == config.DirectoryStatic {
		log.Info("using static user directory", "users", len(users))
		return auth.NewStaticDirectory(users), nil
	}

	repo := auth.NewUserRepository(db.DB)
	created, err := auth.SeedUsers(ctx, repo, users, log.Logger)
	if err != nil {
		return nil, err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	log.Info("using sqlite user directory", "users", total, "seeded", created)
	return repo, nil
}

// startChangePublisher connects to the broker and forwards every committed
// document change to its collection topic.
func startChangePublisher(ctx context.Context, cfg config.MQTTConfig, store *document.Store, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost", "error", err)
	})
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})

	publisher := mqtt.NewAsyncPublisher(client, 0, log.Logger)
	go publisher.Run(ctx)

	topics := client.Topics()
	log.Info("publishing document changes", "topics", topics.AllCollectionChanges())
	store.AddNotifier(document.NotifierFunc(func(c document.Change) {
		if err := publisher.Enqueue(topics.CollectionChange(c.Collection, c.Action), c); err != nil {
			log.Warn("change event not published", "collection", c.Collection, "action", c.Action, "error", err)
		}
	}))
	return client, nil
}

// startUsageMetrics connects the metrics sink and counts every committed
// document change against its collection.
func startUsageMetrics(ctx context.Context, cfg config.InfluxDBConfig, store *document.Store, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	store.AddNotifier(document.NotifierFunc(func(c document.Change) {
		client.WriteCollectionChange(c.Collection, c.Action, c.Count)
	}))
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and metrics may be nil when those sinks are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, metrics *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if metrics != nil {
		if err := metrics.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
