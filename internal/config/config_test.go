package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DB_ENABLED", "")
	t.Setenv("IMPORT_CONCURRENCY", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, "residents", cfg.Collections.Residents)
	assert.Equal(t, "intake_records", cfg.Collections.Intake)
	assert.Equal(t, "import_records", cfg.Collections.ImportRecords)
	assert.Equal(t, "resident_list", cfg.Cache.ResidentListKey)
	assert.Equal(t, 300*time.Second, cfg.Cache.ResidentListTTL)
	assert.Equal(t, 4, cfg.Import.Concurrency)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("IMPORT_CONCURRENCY", "0")
	t.Setenv("RESIDENTS_COLLECTION", "patients")

	cfg := Load()

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 1, cfg.Import.Concurrency)
	assert.Equal(t, "patients", cfg.Collections.Residents)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", c.GetDSN())
}
