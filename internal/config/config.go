package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	Notification NotificationConfig `yaml:"notification"`
	Ticket       TicketConfig       `yaml:"ticket"`
	Automation   AutomationConfig   `yaml:"automation"`
	Storage      StorageConfig      `yaml:"storage"`
	Vault        VaultConfig        `yaml:"vault"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
	// Format is json or console.
	Format   string `yaml:"format"`
	Sampling bool   `yaml:"sampling"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	BcryptCost            int    `yaml:"bcrypt_cost"`
}

// NotificationConfig selects and configures the outbound transport.
type NotificationConfig struct {
	Transport    string   `yaml:"transport"`
	Delivery     string   `yaml:"delivery"`
	EmailFrom    string   `yaml:"email_from"`
	RedisQueue   string   `yaml:"redis_queue"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// TicketConfig holds ticket engine settings.
type TicketConfig struct {
	CodeDigits int    `yaml:"code_digits"`
	Timezone   string `yaml:"timezone"`
}

// AutomationConfig controls the department automation scheduler.
type AutomationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Schedule       string `yaml:"schedule"`
	Concurrency    int    `yaml:"concurrency"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// StorageConfig locates attachment files.
type StorageConfig struct {
	AttachmentDir string `yaml:"attachment_dir"`
}

// VaultConfig holds the key material for encrypted custom fields.
type VaultConfig struct {
	Key string `yaml:"key"`
}

// Load reads configuration from an optional YAML file and environment variables,
// applying defaults where possible. Environment variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(cfg.Redis.DB)))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.App = AppConfig{
		Name:                  getEnv("APP_NAME", cfg.App.Name),
		Env:                   getEnv("APP_ENV", cfg.App.Env),
		Host:                  getEnv("APP_HOST", cfg.App.Host),
		Port:                  getEnv("APP_PORT", cfg.App.Port),
		Version:               getEnv("APP_VERSION", cfg.App.Version),
		RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds),
	}
	cfg.Postgres = PostgresConfig{
		DSN:            getEnv("POSTGRES_DSN", cfg.Postgres.DSN),
		MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns))),
		MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns))),
		RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations),
		ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec))),
		ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec))),
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", cfg.Redis.Addr),
		Password: getEnv("REDIS_PASSWORD", cfg.Redis.Password),
		DB:       redisDB,
	}
	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Format = getEnv("LOG_FORMAT", cfg.Logger.Format)
	cfg.Logger.Sampling = getEnvAsBool("LOG_SAMPLING", cfg.Logger.Sampling)
	cfg.Auth = AuthConfig{
		JWTSecret:             getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret),
		AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", cfg.Auth.AccessTokenTTLMinutes),
		BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", cfg.Auth.BcryptCost),
	}
	cfg.Notification = NotificationConfig{
		Transport:    getEnv("NOTIFY_TRANSPORT", cfg.Notification.Transport),
		Delivery:     getEnv("NOTIFY_DELIVERY", cfg.Notification.Delivery),
		EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", cfg.Notification.EmailFrom),
		RedisQueue:   getEnv("NOTIFY_REDIS_QUEUE", cfg.Notification.RedisQueue),
		KafkaBrokers: getEnvAsList("NOTIFY_KAFKA_BROKERS", cfg.Notification.KafkaBrokers),
		KafkaTopic:   getEnv("NOTIFY_KAFKA_TOPIC", cfg.Notification.KafkaTopic),
	}
	cfg.Ticket = TicketConfig{
		CodeDigits: getEnvAsInt("TICKET_CODE_DIGITS", cfg.Ticket.CodeDigits),
		Timezone:   getEnv("TICKET_TIMEZONE", cfg.Ticket.Timezone),
	}
	cfg.Automation = AutomationConfig{
		Enabled:        getEnvAsBool("AUTOMATION_ENABLED", cfg.Automation.Enabled),
		Schedule:       getEnv("AUTOMATION_SCHEDULE", cfg.Automation.Schedule),
		Concurrency:    getEnvAsInt("AUTOMATION_CONCURRENCY", cfg.Automation.Concurrency),
		LockTTLSeconds: getEnvAsInt("AUTOMATION_LOCK_TTL_SECONDS", cfg.Automation.LockTTLSeconds),
	}
	cfg.Storage.AttachmentDir = getEnv("ATTACHMENT_DIR", cfg.Storage.AttachmentDir)
	cfg.Vault.Key = getEnv("VAULT_KEY", cfg.Vault.Key)

	if cfg.Ticket.CodeDigits < 4 || cfg.Ticket.CodeDigits > 18 {
		return nil, fmt.Errorf("TICKET_CODE_DIGITS must be between 4 and 18, got %d", cfg.Ticket.CodeDigits)
	}
	if !validTransport(cfg.Notification.Transport, "log", "redis", "kafka") {
		return nil, fmt.Errorf("NOTIFY_TRANSPORT must be log, redis or kafka, got %q", cfg.Notification.Transport)
	}
	if !validTransport(cfg.Notification.Delivery, "log", "kafka") {
		return nil, fmt.Errorf("NOTIFY_DELIVERY must be log or kafka, got %q", cfg.Notification.Delivery)
	}
	if _, err := time.LoadLocation(cfg.Ticket.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TICKET_TIMEZONE: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "support-ticket-engine",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis:  RedisConfig{Addr: "127.0.0.1:6379"},
		Logger: LoggerConfig{Level: "info", Format: "json", Sampling: true},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            12,
		},
		Notification: NotificationConfig{
			Transport:    "log",
			Delivery:     "log",
			EmailFrom:    "noreply@example.com",
			RedisQueue:   "ticket:notifications",
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "ticket-notifications",
		},
		Ticket: TicketConfig{
			CodeDigits: 7,
			Timezone:   "UTC",
		},
		Automation: AutomationConfig{
			Enabled:        true,
			Schedule:       "0 */5 * * * *",
			Concurrency:    4,
			LockTTLSeconds: 240,
		},
		Storage: StorageConfig{AttachmentDir: "./data/attachments"},
		Vault:   VaultConfig{Key: "dev-vault-key"},
	}
}

func validTransport(name string, allowed ...string) bool {
	for _, a := range allowed {
		if name == a {
			return true
		}
	}
	return false
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Location returns the timezone schedules are evaluated in.
func (t TicketConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockTTL returns how long a department lock is held at most.
func (a AutomationConfig) LockTTL() time.Duration {
	if a.LockTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(a.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
