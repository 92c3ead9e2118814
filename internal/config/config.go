package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CollectionsConfig 文档集合名称
type CollectionsConfig struct {
	Residents     string
	Intake        string
	ImportRecords string
	Cache         string
}

// Config wisefido-intake 配置
type Config struct {
	HTTP struct {
		Addr string
	}
	// StoreBackend: "postgres" | "memory"
	StoreBackend string
	Database     DatabaseConfig
	// CacheBackend: "redis" | "document" | "none"
	CacheBackend string
	Redis        RedisConfig
	Log          struct {
		Level  string
		Format string
	}
	Collections CollectionsConfig
	Cache       struct {
		ResidentListKey string
		ResidentListTTL time.Duration
	}
	Import struct {
		Concurrency int
		MaxUploadMB int
	}
}

// Load 从环境变量加载配置
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.StoreBackend = getEnv("STORE_BACKEND", "postgres")
	// 兼容旧变量：DB_ENABLED=false 等同于内存存储
	if getEnv("DB_ENABLED", "true") != "true" {
		cfg.StoreBackend = "memory"
	}
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.CacheBackend = getEnv("CACHE_BACKEND", "redis")
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Collections.Residents = getEnv("RESIDENTS_COLLECTION", "residents")
	cfg.Collections.Intake = getEnv("INTAKE_COLLECTION", "intake_records")
	cfg.Collections.ImportRecords = getEnv("IMPORT_RECORDS_COLLECTION", "import_records")
	cfg.Collections.Cache = getEnv("CACHE_COLLECTION", "import_cache")

	cfg.Cache.ResidentListKey = getEnv("RESIDENT_LIST_CACHE_KEY", "resident_list")
	cfg.Cache.ResidentListTTL = time.Duration(parseInt(getEnv("RESIDENT_LIST_CACHE_TTL", "300"), 300)) * time.Second

	cfg.Import.Concurrency = parseInt(getEnv("IMPORT_CONCURRENCY", "4"), 4)
	if cfg.Import.Concurrency < 1 {
		cfg.Import.Concurrency = 1
	}
	cfg.Import.MaxUploadMB = parseInt(getEnv("IMPORT_MAX_UPLOAD_MB", "20"), 20)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
