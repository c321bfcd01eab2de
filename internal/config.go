package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Security       SecurityConfig       `mapstructure:"security"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Notifier       NotifierConfig       `mapstructure:"notifier"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	// ServiceTokenSecret signs and verifies the HS256 service tokens the bot
	// frontend presents on the intent API.
	ServiceTokenSecret   string        `mapstructure:"service_token_secret"`
	ServiceTokenDuration time.Duration `mapstructure:"service_token_duration"`
}

type ReconciliationConfig struct {
	// MatchWindow bounds how far back the matcher looks for pending intents.
	MatchWindow time.Duration `mapstructure:"match_window"`
	// IntentTTL is how long an intent stays pending before the sweeper expires it.
	IntentTTL     time.Duration `mapstructure:"intent_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// CreditRate is credit units granted per whole currency unit.
	CreditRate      int64 `mapstructure:"credit_rate"`
	CreditAttempts  int   `mapstructure:"credit_attempts"`
	MatcherAttempts int   `mapstructure:"matcher_attempts"`
}

type NotifierConfig struct {
	CallbackURL    string        `mapstructure:"callback_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config purely from environment variables, for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			ServiceTokenSecret:   getEnv("SECURITY_SERVICE_TOKEN_SECRET", ""),
			ServiceTokenDuration: getEnvAsDuration("SECURITY_SERVICE_TOKEN_DURATION", 24*time.Hour),
		},
		Reconciliation: ReconciliationConfig{
			MatchWindow:     getEnvAsDuration("RECONCILIATION_MATCH_WINDOW", 30*time.Minute),
			IntentTTL:       getEnvAsDuration("RECONCILIATION_INTENT_TTL", 45*time.Minute),
			SweepInterval:   getEnvAsDuration("RECONCILIATION_SWEEP_INTERVAL", 5*time.Minute),
			CreditRate:      int64(getEnvAsInt("RECONCILIATION_CREDIT_RATE", 100)),
			CreditAttempts:  getEnvAsInt("RECONCILIATION_CREDIT_ATTEMPTS", 5),
			MatcherAttempts: getEnvAsInt("RECONCILIATION_MATCHER_ATTEMPTS", 3),
		},
		Notifier: NotifierConfig{
			CallbackURL:    getEnv("NOTIFIER_CALLBACK_URL", ""),
			APIKey:         getEnv("NOTIFIER_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("NOTIFIER_REQUEST_TIMEOUT", 10*time.Second),
			MaxWorkers:     getEnvAsInt("NOTIFIER_MAX_WORKERS", 5),
			JobQueueSize:   getEnvAsInt("NOTIFIER_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("NOTIFIER_WORKER_POOL_SIZE", 5),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if err := c.Notifier.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notifier config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.ServiceTokenSecret) < 32 {
		return errors.New("service token secret must be at least 32 characters")
	}
	return nil
}

func (c *ReconciliationConfig) Validate() error {
	if c.MatchWindow <= 0 {
		return errors.New("match_window must be positive")
	}
	if c.IntentTTL < c.MatchWindow {
		return errors.New("intent_ttl must be >= match_window, otherwise the sweeper can expire matchable intents")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep_interval must be positive")
	}
	if c.CreditRate <= 0 {
		return errors.New("credit_rate must be positive")
	}
	return nil
}

func (c *NotifierConfig) Validate() error {
	if c.CallbackURL == "" {
		return errors.New("callback_url is required")
	}
	if _, err := url.Parse(c.CallbackURL); err != nil {
		return fmt.Errorf("invalid callback_url: %w", err)
	}
	return nil
}
