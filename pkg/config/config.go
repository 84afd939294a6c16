package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Ledger backends accepted by LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Exam      ExamConfig
	Drafts    DraftConfig
	Admin     AdminConfig
	Upstream  UpstreamConfig
	Exports   ExportsConfig
	Stats     StatsConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig selects where registrations, counters and drafts are persisted.
type LedgerConfig struct {
	Backend   string
	DataDir   string
	KeyPrefix string
}

// ExamConfig holds the exam identity used for seat numbering and referral promos.
type ExamConfig struct {
	Year         string
	Date         string
	SeatBaseline int64
	PromoCodes   []string
}

// DraftConfig tunes the periodic draft autosave.
type DraftConfig struct {
	AutosaveInterval time.Duration
}

// AdminConfig holds the single admin credential.
type AdminConfig struct {
	Username     string
	PasswordHash string
	Password     string
}

// UpstreamConfig points at the optional remote registration backend.
type UpstreamConfig struct {
	URL     string
	Timeout time.Duration
}

// ExportsConfig configures asynchronous ledger exports.
type ExportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// StatsConfig governs caching of the admin statistics payload.
type StatsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RateLimitConfig bounds public submissions per client IP.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		Backend:   strings.ToLower(v.GetString("LEDGER_BACKEND")),
		DataDir:   v.GetString("LEDGER_DATA_DIR"),
		KeyPrefix: v.GetString("LEDGER_KEY_PREFIX"),
	}

	cfg.Exam = ExamConfig{
		Date:         v.GetString("EXAM_DATE"),
		Year:         v.GetString("EXAM_YEAR"),
		SeatBaseline: v.GetInt64("SEAT_BASELINE"),
		PromoCodes:   splitAndTrim(v.GetString("PROMO_CODES")),
	}
	if cfg.Exam.Year == "" {
		cfg.Exam.Year = YearFromDate(cfg.Exam.Date, time.Now())
	}

	cfg.Drafts = DraftConfig{
		AutosaveInterval: parseDuration(v.GetString("DRAFT_AUTOSAVE_INTERVAL"), 30*time.Second),
	}

	cfg.Admin = AdminConfig{
		Username:     v.GetString("ADMIN_USERNAME"),
		PasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		Password:     v.GetString("ADMIN_PASSWORD"),
	}

	cfg.Upstream = UpstreamConfig{
		URL:     v.GetString("UPSTREAM_URL"),
		Timeout: parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 10*time.Second),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.Stats = StatsConfig{
		CacheEnabled: v.GetBool("ENABLE_STATS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{
		PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Burst:     v.GetInt("RATE_LIMIT_BURST"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cacheSegment is the key segment the stats cache owns under the ledger prefix.
const cacheSegment = "cache"

func (c *Config) validate() error {
	if err := validateKeyPrefix(c.Ledger.KeyPrefix); err != nil {
		return err
	}
	if c.Ledger.Backend == BackendFile {
		if err := validateDataDir(c.Ledger.DataDir, c.Exports.StorageDir); err != nil {
			return err
		}
	}
	return nil
}

// validateKeyPrefix keeps the cache purge pattern from reaching ledger keys, including
// those of another deployment sharing the Redis database.
func validateKeyPrefix(prefix string) error {
	if strings.ContainsAny(prefix, `*?[]\`) {
		return fmt.Errorf("LEDGER_KEY_PREFIX %q must not contain glob characters", prefix)
	}
	for _, segment := range strings.Split(prefix, ":") {
		if segment == cacheSegment {
			return fmt.Errorf("LEDGER_KEY_PREFIX %q overlaps the %q cache namespace", prefix, cacheSegment)
		}
	}
	return nil
}

// validateDataDir rejects a ledger directory at or below the exports directory, whose
// TTL cleanup deletes every old file it walks.
func validateDataDir(dataDir, exportsDir string) error {
	data, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve LEDGER_DATA_DIR: %w", err)
	}
	exports, err := filepath.Abs(exportsDir)
	if err != nil {
		return fmt.Errorf("resolve EXPORTS_STORAGE_DIR: %w", err)
	}
	rel, err := filepath.Rel(exports, data)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("LEDGER_DATA_DIR %q must not be inside EXPORTS_STORAGE_DIR %q", dataDir, exportsDir)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "scc_sat")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "scc-sat-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_BACKEND", BackendFile)
	v.SetDefault("LEDGER_DATA_DIR", "./data")
	v.SetDefault("LEDGER_KEY_PREFIX", "scc")

	v.SetDefault("EXAM_DATE", "Sunday, 14th December 2025")
	v.SetDefault("EXAM_YEAR", "")
	v.SetDefault("SEAT_BASELINE", 1284)
	v.SetDefault("PROMO_CODES", "SCC2025,TEACHER1,EARLYBIRD,TOPPER")

	v.SetDefault("DRAFT_AUTOSAVE_INTERVAL", "30s")

	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("ADMIN_PASSWORD", "admin123")

	v.SetDefault("UPSTREAM_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_STATS_CACHE", false)
	v.SetDefault("STATS_CACHE_TTL", "1m")

	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

// YearFromDate takes the trailing token of a human exam date ("Sunday, 14th December 2025")
// and falls back to the current year when it is not a number.
func YearFromDate(date string, now time.Time) string {
	fields := strings.Fields(date)
	if len(fields) > 0 {
		last := fields[len(fields)-1]
		if _, err := strconv.Atoi(last); err == nil {
			return last
		}
	}
	return strconv.Itoa(now.Year())
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
