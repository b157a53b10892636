package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Timezone     TimezoneConfig
	Availability AvailabilityConfig
	Reschedule   RescheduleConfig
	Sweep        SweepConfig
	Exports      ExportsConfig
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

// TimezoneConfig pins the canonical zone all class times are authored in.
type TimezoneConfig struct {
	AdminZone string
}

// AvailabilityConfig tunes free-slot computation and caching.
type AvailabilityConfig struct {
	SlotDuration    time.Duration
	StepGranularity time.Duration
	MaxConcurrency  int
	CacheTTL        time.Duration
}

// RescheduleConfig holds business rules for reschedule requests.
type RescheduleConfig struct {
	MinLeadTime time.Duration
}

// SweepConfig drives the lifecycle sweep loop.
type SweepConfig struct {
	Interval    time.Duration
	UnitTimeout time.Duration
	RunAtStart  bool
}

// ExportsConfig configures asynchronous reschedule-history exports.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	WorkerConcurrency int
	WorkerRetries     int
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
		if !errors.As(err, &notFound) {
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
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Timezone = TimezoneConfig{
		AdminZone: v.GetString("ADMIN_TIMEZONE"),
	}

	cfg.Availability = AvailabilityConfig{
		SlotDuration:    parseDuration(v.GetString("AVAILABILITY_SLOT_DURATION"), time.Hour),
		StepGranularity: parseDuration(v.GetString("AVAILABILITY_STEP_GRANULARITY"), 30*time.Minute),
		MaxConcurrency:  v.GetInt("AVAILABILITY_MAX_CONCURRENCY"),
		CacheTTL:        parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Reschedule = RescheduleConfig{
		MinLeadTime: parseDuration(v.GetString("RESCHEDULE_MIN_LEAD_TIME"), 2*time.Hour),
	}

	cfg.Sweep = SweepConfig{
		Interval:    parseDuration(v.GetString("SWEEP_INTERVAL"), time.Hour),
		UnitTimeout: parseDuration(v.GetString("SWEEP_UNIT_TIMEOUT"), 10*time.Second),
		RunAtStart:  v.GetBool("SWEEP_RUN_AT_START"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutor_booking")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "tutor-booking-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMIN_TIMEZONE", "Asia/Jakarta")

	v.SetDefault("AVAILABILITY_SLOT_DURATION", "1h")
	v.SetDefault("AVAILABILITY_STEP_GRANULARITY", "30m")
	v.SetDefault("AVAILABILITY_MAX_CONCURRENCY", 4)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "5m")

	v.SetDefault("RESCHEDULE_MIN_LEAD_TIME", "2h")

	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_UNIT_TIMEOUT", "10s")
	v.SetDefault("SWEEP_RUN_AT_START", true)

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
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
