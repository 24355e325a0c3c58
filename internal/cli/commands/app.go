package commands

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/rowmodel/rowmodel/internal/cli/config"
	"github.com/rowmodel/rowmodel/internal/cli/ui"
	"github.com/rowmodel/rowmodel/internal/logging"
	"github.com/rowmodel/rowmodel/internal/orm/cache"
	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/model"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
	"github.com/rowmodel/rowmodel/internal/orm/transaction"
)

// globalOptions are the persistent flags of the root command
type globalOptions struct {
	configPath string
	memory     bool
	seedPath   string
	noColor    bool
}

// app is the state shared by the record commands
type app struct {
	opts     *globalOptions
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	catalog  *model.Catalog
	db       *sql.DB
	cache    cache.Cache
}

// loadRegistry loads the configuration and the entity definitions it names
func loadRegistry(opts *globalOptions) (*config.Config, *schema.Registry, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	registry, err := schema.LoadFile(cfg.Entities)
	if err != nil {
		return nil, nil, err
	}
	return cfg, registry, nil
}

// openApp builds one model per entity, backed by database tables or, with
// --memory, by in-memory services
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, registry, err := loadRegistry(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewConsole(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	a := &app{opts: opts, cfg: cfg, logger: logger, registry: registry}
	if err := a.connect(); err != nil {
		a.Close()
		return nil, err
	}

	catalog, err := model.NewCatalogFromRegistry(registry, a.service, model.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.catalog = catalog

	if opts.seedPath != "" {
		if err := a.seed(ctx, opts.seedPath); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// connect opens the database and the row cache configured for the app
func (a *app) connect() error {
	if !a.opts.memory {
		url := a.cfg.DatabaseURL()
		if url == "" {
			return errors.New("database.url is not set (use ROWMODEL_DATABASE_URL, DATABASE_URL or --memory)")
		}
		db, _, err := crud.Open(a.cfg.Database.Driver, url)
		if err != nil {
			return stripCredentials(err)
		}
		a.db = db
	}

	cacheConfig := cache.Config{DefaultTTL: a.cfg.Cache.TTL, Prefix: a.cfg.Cache.Prefix}
	switch a.cfg.Cache.Backend {
	case "memory":
		a.cache = cache.NewMemory(cacheConfig)
	case "redis":
		c, err := cache.NewRedis(cache.RedisConfig{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Cache:    cacheConfig,
		})
		if err != nil {
			return err
		}
		a.cache = c
	}
	return nil
}

// service is the model.ServiceFactory of the app
func (a *app) service(entity *schema.EntityType) (crud.Service, error) {
	var svc crud.Service
	if a.db == nil {
		svc = crud.NewMemory()
	} else {
		dialect, err := crud.DialectFor(a.cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		var txOpts []transaction.Option
		if retries := a.cfg.Database.TxRetries; retries > 0 {
			txOpts = append(txOpts, transaction.WithRetryConfig(&transaction.RetryConfig{
				MaxRetries:  retries,
				BaseBackoff: transaction.DefaultBaseBackoff,
			}))
		}
		svc = crud.NewTable(a.db, entity.PersistedName, dialect,
			crud.WithTransactionManager(transaction.NewManager(a.db, txOpts...)))
	}

	if a.cache != nil {
		svc = cache.Wrap(svc, a.cache, entity.Name, cache.WithLogger(a.logger))
	}
	return svc, nil
}

// seed loads {"entity": [rows...]} into the entity services
func (a *app) seed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var rows map[string][]crud.Row
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	// referenced rows first so foreign keys resolve
	order, err := a.registry.DependencyOrder()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, name := range order {
		m := a.catalog.MustModel(name)
		for _, row := range rows[name] {
			normalizeJSON(row)
			if _, err := m.Service().Create(ctx, row); err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return nil
}

// model returns the model for an entity name, or an error listing the
// closest known names
func (a *app) model(name string) (*model.Model, error) {
	m, ok := a.catalog.Model(name)
	if !ok {
		return nil, &displayError{
			message: ui.EntityNotFoundError(name, a.catalog.Names(), a.opts.noColor),
			err:     fmt.Errorf("unknown entity %s", name),
		}
	}
	return m, nil
}

// Close releases the database and cache connections
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// displayError carries a preformatted message for the terminal
type displayError struct {
	message string
	err     error
}

func (e *displayError) Error() string { return e.err.Error() }
func (e *displayError) Unwrap() error { return e.err }

// parseID converts a command line id to int64 when it is numeric
func parseID(arg string) interface{} {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	return arg
}

// normalizeJSON turns json.Number values decoded with UseNumber into int64
// or float64, recursively
func normalizeJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case map[string]interface{}:
		for k, item := range v {
			v[k] = normalizeJSON(item)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = normalizeJSON(item)
		}
		return v
	default:
		return value
	}
}

// stripCredentials masks the password of connection URLs in an error message
func stripCredentials(err error) error {
	if err == nil {
		return nil
	}

	parts := strings.Split(err.Error(), "://")
	for i := 1; i < len(parts); i++ {
		at := strings.Index(parts[i], "@")
		if at < 0 {
			continue
		}
		userinfo := parts[i][:at]
		if colon := strings.Index(userinfo, ":"); colon >= 0 {
			parts[i] = userinfo[:colon] + ":****" + parts[i][at:]
		}
	}
	return errors.New(strings.Join(parts, "://"))
}
