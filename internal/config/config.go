package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production" | "test"
	Timezone       string
	AllowedOrigins []string
	JWTSecret      string

	DSN      string
	RedisURL string

	Database  DatabaseRuntimeConfig
	Redis     RedisRuntimeConfig
	Paths     RuntimePathsConfig
	AI        AIRuntimeConfig
	Webhook   WebhookRuntimeConfig
	Telemetry TelemetryRuntimeConfig
}

type DatabaseRuntimeConfig struct {
	Driver    string
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	SSLMode   string
	Path      string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
	Disabled bool
}

type RuntimePathsConfig struct {
	Logs string
}

// AIRuntimeConfig is the platform-level completion provider. Tenants may
// override the credential with their own key.
type AIRuntimeConfig struct {
	Provider        string
	APIKey          string
	Endpoint        string
	Model           string
	TimeoutSeconds  int
	MaxHistory      int
	MaxOutputTokens int
}

func (c AIRuntimeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type WebhookRuntimeConfig struct {
	Workers               int
	QueueSize             int
	DefaultTimeoutSeconds int
	DefaultMaxRetries     int
	InitialBackoffMS      int
	MaxBackoffMS          int
	RetentionDays         int
	UserAgent             string
}

func (c WebhookRuntimeConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c WebhookRuntimeConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

type TelemetryRuntimeConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
	Metrics      bool
}

type rawAppConfig struct {
	Port           int                `yaml:"port"`
	Env            string             `yaml:"env"`
	Timezone       string             `yaml:"timezone"`
	TZ             string             `yaml:"tz"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	JWTSecret      string             `yaml:"jwt_secret"`
	DSN            string             `yaml:"dsn"`
	RedisURL       string             `yaml:"redis_url"`
	Database       rawDatabaseConfig  `yaml:"database"`
	Redis          rawRedisConfig     `yaml:"redis"`
	Paths          rawPathsConfig     `yaml:"paths"`
	LogDir         string             `yaml:"log_dir"`
	AI             rawAIConfig        `yaml:"ai"`
	Webhook        rawWebhookConfig   `yaml:"webhook"`
	Telemetry      rawTelemetryConfig `yaml:"telemetry"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	SSLMode   string            `yaml:"sslmode"`
	Path      string            `yaml:"path"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
	Disabled *bool  `yaml:"disabled"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawAIConfig struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxHistory      int    `yaml:"max_history"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

type rawWebhookConfig struct {
	Workers               int    `yaml:"workers"`
	QueueSize             int    `yaml:"queue_size"`
	DefaultTimeoutSeconds int    `yaml:"default_timeout_seconds"`
	DefaultMaxRetries     *int   `yaml:"default_max_retries"`
	InitialBackoffMS      int    `yaml:"initial_backoff_ms"`
	MaxBackoffMS          int    `yaml:"max_backoff_ms"`
	RetentionDays         int    `yaml:"retention_days"`
	UserAgent             string `yaml:"user_agent"`
}

type rawTelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     *bool  `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	Metrics      *bool  `yaml:"metrics"`
}

// Load reads the YAML file at configPath and applies defaults and
// environment overrides.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content into an AppConfig. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	cfg := Default()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, err
		}
	}

	applyRawAppConfig(cfg, raw)
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file overrides a field.
func Default() *AppConfig {
	cfg := &AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		AI: AIRuntimeConfig{
			Provider:        defaultAIProvider,
			TimeoutSeconds:  defaultAITimeoutSeconds,
			MaxHistory:      defaultAIMaxHistory,
			MaxOutputTokens: defaultAIMaxOutputTokens,
		},
		Webhook: WebhookRuntimeConfig{
			Workers:               defaultWebhookWorkers,
			QueueSize:             defaultWebhookQueueSize,
			DefaultTimeoutSeconds: defaultWebhookTimeoutSeconds,
			DefaultMaxRetries:     defaultWebhookMaxRetries,
			InitialBackoffMS:      defaultWebhookInitialBackoff,
			MaxBackoffMS:          defaultWebhookMaxBackoff,
			RetentionDays:         defaultWebhookRetentionDays,
			UserAgent:             defaultWebhookUserAgent,
		},
		Telemetry: TelemetryRuntimeConfig{
			ServiceName: defaultServiceName,
			Metrics:     true,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = normalizeEnv(v)
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.AI = applyRawAIConfig(cfg.AI, raw.AI)
	cfg.Webhook = applyRawWebhookConfig(cfg.Webhook, raw.Webhook)
	cfg.Telemetry = applyRawTelemetryConfig(cfg.Telemetry, raw.Telemetry)

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	portSet := false

	if v := strings.TrimSpace(raw.Database.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
		portSet = true
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if v := strings.TrimSpace(raw.Database.SSLMode); v != "" {
		cfg.SSLMode = v
	}
	if v := strings.TrimSpace(raw.Database.Path); v != "" {
		cfg.Path = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	cfg = normalizeDatabaseConfig(cfg)
	if cfg.Driver == DriverPostgres && !portSet && cfg.Port == defaultDBPort {
		cfg.Port = defaultPGPort
	}
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if raw.Redis.Disabled != nil {
		cfg.Disabled = *raw.Redis.Disabled
	}
	return cfg
}

func applyRawAIConfig(current AIRuntimeConfig, raw rawAIConfig) AIRuntimeConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Provider); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.Model); v != "" {
		cfg.Model = v
	}
	if raw.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = raw.TimeoutSeconds
	}
	if raw.MaxHistory > 0 {
		cfg.MaxHistory = raw.MaxHistory
	}
	if raw.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = raw.MaxOutputTokens
	}
	return cfg
}

func applyRawWebhookConfig(current WebhookRuntimeConfig, raw rawWebhookConfig) WebhookRuntimeConfig {
	cfg := current
	if raw.Workers > 0 {
		cfg.Workers = raw.Workers
	}
	if raw.QueueSize > 0 {
		cfg.QueueSize = raw.QueueSize
	}
	if raw.DefaultTimeoutSeconds > 0 {
		cfg.DefaultTimeoutSeconds = raw.DefaultTimeoutSeconds
	}
	if raw.DefaultMaxRetries != nil && *raw.DefaultMaxRetries >= 0 {
		cfg.DefaultMaxRetries = *raw.DefaultMaxRetries
	}
	if raw.InitialBackoffMS > 0 {
		cfg.InitialBackoffMS = raw.InitialBackoffMS
	}
	if raw.MaxBackoffMS > 0 {
		cfg.MaxBackoffMS = raw.MaxBackoffMS
	}
	if raw.RetentionDays > 0 {
		cfg.RetentionDays = raw.RetentionDays
	}
	if v := strings.TrimSpace(raw.UserAgent); v != "" {
		cfg.UserAgent = v
	}
	if cfg.MaxBackoffMS < cfg.InitialBackoffMS {
		cfg.MaxBackoffMS = cfg.InitialBackoffMS
	}
	return cfg
}

func applyRawTelemetryConfig(current TelemetryRuntimeConfig, raw rawTelemetryConfig) TelemetryRuntimeConfig {
	cfg := current
	if v := strings.TrimSpace(raw.OTLPEndpoint); v != "" {
		cfg.OTLPEndpoint = v
	}
	if raw.Insecure != nil {
		cfg.Insecure = *raw.Insecure
	}
	if v := strings.TrimSpace(raw.ServiceName); v != "" {
		cfg.ServiceName = v
	}
	if raw.Metrics != nil {
		cfg.Metrics = *raw.Metrics
	}
	return cfg
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(envAIAPIKey)); v != "" {
		cfg.AI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envJWTSecret)); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(envDatabaseDSN)); v != "" {
		cfg.Database.DSN = v
		cfg.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(envRedisURL)); v != "" {
		cfg.Redis.URL = v
		cfg.RedisURL = cfg.Redis.URLValue()
	}
	if v := strings.TrimSpace(os.Getenv(envOTLP)); v != "" && cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver %q, expected mysql|postgres|sqlite", c.Database.Driver)
	}
	if c.Database.Driver != DriverSQLite && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	switch c.AI.Provider {
	case "openai", "anthropic", "openai-compatible":
	default:
		return fmt.Errorf("invalid ai.provider %q, expected openai|anthropic|openai-compatible", c.AI.Provider)
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return "production"
	case "test":
		return "test"
	default:
		return "development"
	}
}

func copyStringMap(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}

func (c *AppConfig) LogDir() string {
	if c.Paths.Logs == "" {
		return ""
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}
