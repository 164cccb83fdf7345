// Gatekeeper - role-based access control for HTTP services
//
// This is the main entry point for the Gatekeeper service. It owns:
//   - Session token issuance and verification
//   - Login lockout and the password reset OTP flow
//   - The role/route registry and per-request authorization
//
// Configuration is read from configs/config.yaml unless GATEKEEPER_CONFIG
// points elsewhere.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gatekeeper/migrations"

	"github.com/nerrad567/gatekeeper/internal/api"
	"github.com/nerrad567/gatekeeper/internal/audit"
	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatekeeper/internal/notify"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gatekeeper",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	policy, err := policyFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("building security policy: %w", err)
	}

	tokens, err := auth.NewTokenService(policy.Token)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	// A signing failure is only fatal here; at request time it is a 500.
	if err := tokens.SelfCheck(); err != nil {
		return fmt.Errorf("token self-check: %w", err)
	}

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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Roles first: seed accounts and the default-role pass bind to them.
	manifest, err := manifestFromConfig(cfg.RBAC)
	if err != nil {
		return fmt.Errorf("building route manifest: %w", err)
	}
	accounts := auth.NewAccountRepository(db.DB)
	registry := auth.NewRegistry(auth.NewRegistryStore(db.DB), log.Component("registry"))
	report, err := registry.Sync(ctx, manifest)
	if err != nil {
		return fmt.Errorf("syncing route registry: %w", err)
	}
	log.Info("route registry synced",
		"roles_added", report.RolesAdded,
		"routes_added", report.RoutesAdded,
		"bindings_added", report.BindingsAdded,
		"unresolved", len(report.Unresolved),
		"routes_indexed", registry.Size(),
	)

	seeds, err := seedsFromConfig(cfg.Seed)
	if err != nil {
		return fmt.Errorf("reading seed accounts: %w", err)
	}
	generated, err := auth.SeedAccounts(ctx, accounts, seeds, policy.DefaultRoles, log.Component("seed"))
	if err != nil {
		return fmt.Errorf("seeding accounts: %w", err)
	}
	for username, password := range generated {
		// Printed once so the operator can sign in and change it.
		fmt.Fprintf(os.Stderr, "seed account %q created with password %s\n", username, password)
	}
	if _, err := auth.SyncAccountRoles(ctx, accounts, policy.DefaultRoles, log.Component("registry")); err != nil {
		return fmt.Errorf("assigning default roles: %w", err)
	}

	health := map[string]api.HealthChecker{"database": db}
	events := notify.Fanout{}

	// Audit trail. Stopped before the database closes so queued entries land.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, 0, log.Component("audit"))
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		recorder.Run(auditCtx)
		close(auditDone)
	}()
	defer func() {
		stopAudit()
		<-auditDone
	}()
	events = append(events, recorder)

	// MQTT carries reset notices, auth events and resync commands (optional).
	var notifier auth.Notifier = notify.NewLogNotifier(log.Component("notify"))
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient

		mqttNotifier, notifyErr := notify.NewMQTTNotifier(mqttClient, log.Component("notify"))
		if notifyErr != nil {
			return fmt.Errorf("creating MQTT notifier: %w", notifyErr)
		}
		notifier = mqttNotifier

		eventPublisher, pubErr := notify.NewEventPublisher(mqttClient, log.Component("events"))
		if pubErr != nil {
			return fmt.Errorf("creating event publisher: %w", pubErr)
		}
		events = append(events, eventPublisher)

		if subErr := subscribeRegistrySync(ctx, mqttClient, registry, manifest, log); subErr != nil {
			return subErr
		}
	} else {
		log.Warn("MQTT disabled, reset codes are not delivered")
	}

	// Reset notices leave the request path here. Registered after the MQTT
	// close so the queue drains while the broker is still connected.
	notifyQueue := notify.NewQueue(notifier, 0, log.Component("notify"))
	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		notifyQueue.Run(queueCtx)
		close(queueDone)
	}()
	defer func() {
		stopQueue()
		<-queueDone
	}()

	// InfluxDB receives auth event counters (optional).
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		health["influxdb"] = influxClient
		events = append(events, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	authLog := log.Component("auth")
	service, err := auth.NewService(auth.ServiceDeps{
		Accounts: accounts,
		Guard:    auth.NewLoginGuard(accounts, policy.Lockout, authLog),
		Tokens:   tokens,
		Reset:    auth.NewResetFlow(accounts, accounts, notifyQueue, policy.Reset, authLog),
		Policy:   policy,
		Events:   events,
		Logger:   authLog,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		RateLimit:    cfg.Security.RateLimit,
		Logger:       log,
		Auth:         service,
		Authorizer:   auth.NewAuthorizer(tokens, registry, accounts, policy.Access, authLog),
		Accounts:     accounts,
		Registry:     registry,
		Manifest:     manifest,
		QueryTimeout: cfg.GetQueryTimeout(),
		AuditRepo:    auditRepo,
		Audit:        recorder,
		Health:       health,
		Version:      version,
	})
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

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (drains in-flight requests)
	// 2. InfluxDB (if enabled)
	// 3. Reset notice queue (drains queued notices)
	// 4. MQTT (if enabled)
	// 5. Audit recorder (drains queued entries)
	// 6. Database

	log.Info("Gatekeeper stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GATEKEEPER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEKEEPER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker and wires connection logging.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Logger)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// subscribeRegistrySync lets operators trigger a registry resync over MQTT.
// The report is published on the registry synced topic.
func subscribeRegistrySync(ctx context.Context, client *mqtt.Client, registry *auth.Registry, manifest auth.Manifest, log *logging.Logger) error {
	topics := mqtt.Topics{}
	err := client.Subscribe(topics.RegistrySyncCommand(), 1, func(_ string, _ []byte) error {
		report, err := registry.Sync(ctx, manifest)
		if err != nil {
			return fmt.Errorf("registry sync: %w", err)
		}
		log.Info("registry resynced on command",
			"bindings_added", report.BindingsAdded,
			"routes_indexed", registry.Size(),
		)
		return client.PublishJSON(topics.RegistrySynced(), report)
	})
	if err != nil {
		return fmt.Errorf("subscribing to registry sync command: %w", err)
	}
	return nil
}
