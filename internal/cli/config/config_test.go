package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rowmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "entities.yaml", cfg.Entities)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 0, cfg.Database.TxRetries)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "rowmodel:", cfg.Cache.Prefix)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
entities: defs/entities.yaml
database:
  driver: sqlite3
  url: file:test.db
  tx_retries: 3
cache:
  backend: redis
  ttl: 30s
  prefix: "inv:"
redis:
  addr: cache:6379
  db: 2
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "defs", "entities.yaml"), cfg.Entities)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Database.TxRetries)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "inv:", cfg.Cache.Prefix)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FindsConfigInParent(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "database:\n  driver: postgres\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	chdir(t, nested)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "database:\n  url: postgres://file/db\n")
	t.Setenv("ROWMODEL_DATABASE_URL", "postgres://env/db")
	t.Setenv("ROWMODEL_CACHE_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown driver",
			content: "database:\n  driver: mysql\n",
			wantErr: "database.driver must be one of pgx, postgres, sqlite3, got: mysql",
		},
		{
			name:    "unknown cache backend",
			content: "cache:\n  backend: memcached\n",
			wantErr: "cache.backend must be one of none, memory, redis, got: memcached",
		},
		{
			name:    "negative retries",
			content: "database:\n  tx_retries: -1\n",
			wantErr: "database.tx_retries must not be negative",
		},
		{
			name:    "malformed yaml",
			content: "database: [driver\n",
			wantErr: "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback/db")

	cfg := &Config{}
	assert.Equal(t, "postgres://fallback/db", cfg.DatabaseURL())

	cfg.Database.URL = "postgres://configured/db"
	assert.Equal(t, "postgres://configured/db", cfg.DatabaseURL())
}
