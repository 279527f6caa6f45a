package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	tokenpool "github.com/goliatone/go-tokenpool"
	"github.com/goliatone/go-tokenpool/adapters/gocommand"
	"github.com/goliatone/go-tokenpool/adapters/gologger"
	"github.com/goliatone/go-tokenpool/adapters/prommetrics"
	"github.com/goliatone/go-tokenpool/core"
	poolmigrations "github.com/goliatone/go-tokenpool/migrations"
	sqlstore "github.com/goliatone/go-tokenpool/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	db          core.DatabaseConfig
	pingTimeout time.Duration
	identifier  string
}

func (c persistenceConfig) GetDebug() bool { return c.db.Debug }
func (c persistenceConfig) GetDriver() string { return sqlDriverName(c.db.Driver) }
func (c persistenceConfig) GetServer() string { return c.db.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string { return c.identifier }

// app holds the wired runtime of one CLI invocation.
type app struct {
	cfg      core.Config
	out      io.Writer
	logger   *gologger.Logger
	metrics  *prommetrics.Recorder
	client   *persistence.Client
	service  *core.Service
	facade   *tokenpool.Facade
	subs     gocommand.Subscriptions
	commands *gocommand.RegistryAdapter
}

type appOptions struct {
	// backend is required by every command except migrate.
	backend bool
	flags   map[string]any
}

func newApp(ctx context.Context, globals *Globals, options appOptions) (*app, error) {
	cfg, err := loadConfig(ctx, globals, options.flags)
	if err != nil {
		return nil, err
	}
	logger, err := gologger.NewLogger(cfg.Log.Level, nil)
	if err != nil {
		return nil, core.NewConfigurationError("config: %v", err)
	}
	if options.backend {
		if err := cfg.ValidateBackend(); err != nil {
			return nil, err
		}
	}
	recorder, err := prommetrics.NewRecorder(nil)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: os.Stdout, logger: logger, metrics: recorder}
	if a.client, err = openDatabase(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if !options.backend {
		return a, nil
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(a.client)
	if err != nil {
		a.Close()
		return nil, err
	}
	adapter, err := tokenpool.NewBackendAdapter(cfg, logger.Named("tokenpool.adapter"), nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service, err = tokenpool.NewService(tokenpool.ServiceDependencies{
		Adapter:  adapter,
		Accounts: factory.AccountStore(),
		Pools:    factory.PoolStore(),
	},
		tokenpool.WithLoggerProvider(gologger.NewProvider(logger)),
		tokenpool.WithMetricsRecorder(recorder),
		tokenpool.WithRetryPolicy(cfg.RetryPolicy()),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.facade, err = tokenpool.NewFacade(a.service); err != nil {
		a.Close()
		return nil, err
	}
	a.commands = gocommand.NewRegistryAdapter(nil)
	if a.subs, err = gocommand.RegisterFacade(a.commands, a.facade); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.commands.Initialize(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close writes the metrics textfile, releases dispatcher subscriptions and
// closes the database.
func (a *app) Close() {
	if a == nil {
		return
	}
	a.flushMetrics()
	a.subs.Unsubscribe()
	a.subs = nil
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
		a.client = nil
	}
}

func (a *app) flushMetrics() {
	path := strings.TrimSpace(a.cfg.Metrics.Textfile)
	if path == "" || a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Warn("metrics textfile write failed", "path", path, "error", err)
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func openDatabase(ctx context.Context, cfg core.Config, logger *gologger.Logger) (*persistence.Client, error) {
	driver := sqlDriverName(cfg.Database.Driver)
	dialect, err := poolmigrations.DialectForDriver(driver)
	if err != nil {
		return nil, core.NewConfigurationError("config: %v", err)
	}
	sqlDB, err := sql.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, core.NewConfigurationError("config: open %s database: %v", driver, err)
	}
	var bunDialect schema.Dialect = pgdialect.New()
	if dialect == poolmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		bunDialect = sqlitedialect.New()
	}
	client, err := persistence.New(persistenceConfig{
		db:          cfg.Database,
		pingTimeout: cfg.PingTimeout(),
		identifier:  cfg.ServiceName,
	}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	registration, err := poolmigrations.Apply(ctx, dialect,
		func(fsys fs.FS) { client.RegisterSQLMigrations(fsys) },
		client.Migrate,
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Debug("database ready", "driver", driver, "dialect", dialect, "migrations", registration.Path, "files", len(registration.Files))
	return client, nil
}

func sqlDriverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}
