package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2480
	defaultEnv        = "development"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultDBDriver   = DriverMySQL
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultPGPort     = 5432
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "qrdine"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultPGSSLMode  = "disable"
	defaultSQLitePath = "qrdine.db"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultAIProvider        = "openai"
	defaultAITimeoutSeconds  = 30
	defaultAIMaxHistory      = 20
	defaultAIMaxOutputTokens = 500

	defaultWebhookWorkers        = 4
	defaultWebhookQueueSize      = 1024
	defaultWebhookTimeoutSeconds = 10
	defaultWebhookMaxRetries     = 3
	defaultWebhookInitialBackoff = 500
	defaultWebhookMaxBackoff     = 30000
	defaultWebhookRetentionDays  = 30
	defaultWebhookUserAgent      = "qrdine-webhook/1.0"

	defaultServiceName = "qrdine-core"

	envAIAPIKey    = "QRDINE_AI_API_KEY"
	envJWTSecret   = "QRDINE_JWT_SECRET"
	envDatabaseDSN = "QRDINE_DATABASE_DSN"
	envRedisURL    = "QRDINE_REDIS_URL"
	envHome        = "QRDINE_HOME"
	envOTLP        = "OTEL_EXPORTER_OTLP_ENDPOINT"
)
