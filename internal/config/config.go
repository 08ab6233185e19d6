package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/secrets"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	PubSub     PubSubConfig
	AzureAd    AzureAdConfig
	ApiKey     ApiKeyConfig
	Storage    StorageConfig
	Secrets    SecretsConfig
	Logging    LoggingConfig
	Server     ServerConfig
	CORS       CORSConfig
	Security   SecurityConfig
	RateLimit  RateLimitConfig
	Compliance ComplianceConfig
	Jobs       JobsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	SlowQueryMS     int
}

// RedisConfig configures the shared Redis used for caching and job locks
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// CacheConfig selects the listing cache backend: "memory" or "redis"
type CacheConfig struct {
	Driver  string
	TTL     int // seconds
	Enabled bool
}

// PubSubConfig configures the optional Google Pub/Sub notification sink
type PubSubConfig struct {
	Enabled         bool
	ProjectID       string
	Topic           string
	CredentialsJSON string
}

type AzureAdConfig struct {
	TenantId       string
	ClientId       string
	InstanceUrl    string
	RequiredScopes string
	// TenantClaim is the token claim carrying the cultivation tenant ID
	TenantClaim string
	// SigningSecret enables HS256 tokens for local development when set
	SigningSecret string
}

type ApiKeyConfig struct {
	SecretName string
	Value      string // Loaded from secrets or environment
}

// StorageConfig selects where exports are written: "local", "cloud" (Azure
// Blob) or "s3"
type StorageConfig struct {
	Mode                  string
	LocalBasePath         string
	CloudConnectionString string
	// CloudAccountURL selects Azure AD credentials instead of a connection
	// string, for example https://<account>.blob.core.windows.net
	CloudAccountURL       string
	CloudContainer        string
	S3Bucket              string
	S3Region              string
	S3Endpoint            string
	S3PathStyle           bool
	// Static S3 credentials; the default AWS chain is used when empty
	S3AccessKeyID     string
	S3SecretAccessKey string
	// ExportPrefix is the key prefix of regulatory exports
	ExportPrefix string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
	EnableMetrics  bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins; "*" allows all
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets X-Frame-Options (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute applies per IP to unauthenticated requests
	RequestsPerMinute int
	// RequestsPerMinuteAuth applies per user to authenticated requests
	RequestsPerMinuteAuth int
	WhitelistIPs          []string
	WhitelistPaths        []string
}

// ComplianceConfig holds the loss/theft reporting thresholds and the
// detection heuristics. Tenants may override the reporting thresholds.
type ComplianceConfig struct {
	// LossQuantityThreshold is in grams for mass and millilitres for volume
	LossQuantityThreshold float64
	LossUnitsThreshold    float64
	LossValueThreshold    float64

	HighVarianceThreshold float64
	VariancePendingDays   int
	TheftWindowDays       int
	MultipleLossThreshold int
	TimePatternThreshold  int
}

// JobsConfig holds cron expressions (with seconds) for background jobs
type JobsConfig struct {
	Enabled            bool
	AlertCheckSchedule string
	AlertCheckNotify   bool
	ArchivalSchedule   string
	LockTTL            int // seconds
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// TTLDuration returns the cache TTL as duration
func (c *CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// LockTTLDuration returns the job lock TTL as duration
func (j *JobsConfig) LockTTLDuration() time.Duration {
	return time.Duration(j.LockTTL) * time.Second
}

// ReportingThresholds returns the default Health Canada reporting thresholds
func (c *ComplianceConfig) ReportingThresholds() domain.ReportingThresholds {
	return domain.ReportingThresholds{
		Quantity: decimal.NewFromFloat(c.LossQuantityThreshold),
		Units:    decimal.NewFromFloat(c.LossUnitsThreshold),
		Value:    decimal.NewFromFloat(c.LossValueThreshold),
	}
}

// Load loads configuration from file and environment variables.
// Use LoadWithSecrets for Key Vault resolution.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ApiKey.Value == "" {
		cfg.ApiKey.Value = v.GetString("ADMIN_API_KEY")
	}
	if cfg.AzureAd.TenantId == "" {
		cfg.AzureAd.TenantId = v.GetString("AZURE_TENANT_ID")
	}
	if cfg.AzureAd.ClientId == "" {
		cfg.AzureAd.ClientId = v.GetString("AZURE_CLIENT_ID")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = v.GetString("GOOGLE_CLOUD_PROJECT")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves secrets from the configured
// source. Key Vault is used only when USE_AZURE_KEY_VAULT=true and the
// environment is staging or production.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}
	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled outside staging/production, using environment variables",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}
	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}

	logger.Info("Loading secrets from Azure Key Vault",
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)

	if _, err := provider.Apply(ctx, []secrets.Binding{
		{Secret: "POSTGRES-MAIN-HOST", Env: "DATABASE_HOST", Target: &cfg.Database.Host},
		{Secret: "POSTGRES-MAIN-USER", Env: "DATABASE_USER", Target: &cfg.Database.User},
		{Secret: "POSTGRES-MAIN-PASSWORD", Env: "DATABASE_PASSWORD", Target: &cfg.Database.Password},
		{Secret: "redis-password", Env: "REDIS_PASSWORD", Target: &cfg.Redis.Password},
		{Secret: "admin-api-key", Env: "ADMIN_API_KEY", Target: &cfg.ApiKey.Value},
		{Secret: "storage-connection-string", Env: "STORAGE_CLOUDCONNECTIONSTRING", Target: &cfg.Storage.CloudConnectionString},
		{Secret: "pubsub-credentials-json", Env: "PUBSUB_CREDENTIALSJSON", Target: &cfg.PubSub.CredentialsJSON},
		{Secret: "s3-secret-access-key", Env: "STORAGE_S3SECRETACCESSKEY", Target: &cfg.Storage.S3SecretAccessKey},
	}); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	logger.Info("Secrets loaded from vault successfully")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Cultivation Traceability API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cultivation")
	v.SetDefault("database.user", "cultivation_user")
	v.SetDefault("database.password", "cultivation_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)
	v.SetDefault("database.slowQueryMS", 500)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 30)

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "cultivation-alerts")

	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300)

	v.SetDefault("azuread.instanceUrl", "https://login.microsoftonline.com/")
	v.SetDefault("azuread.tenantClaim", "extension_cultivationTenantId")

	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.localBasePath", "./storage")
	v.SetDefault("storage.cloudContainer", "exports")
	v.SetDefault("storage.s3Region", "ca-central-1")
	v.SetDefault("storage.exportPrefix", "exports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)
	v.SetDefault("server.enableMetrics", true)

	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Tenant-ID", "X-Facility-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID", "Content-Disposition"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 240)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db", "/health/ready", "/metrics"})

	v.SetDefault("compliance.lossQuantityThreshold", 50)
	v.SetDefault("compliance.lossUnitsThreshold", 10)
	v.SetDefault("compliance.lossValueThreshold", 1000)
	v.SetDefault("compliance.highVarianceThreshold", 100)
	v.SetDefault("compliance.variancePendingDays", 7)
	v.SetDefault("compliance.theftWindowDays", 30)
	v.SetDefault("compliance.multipleLossThreshold", 3)
	v.SetDefault("compliance.timePatternThreshold", 3)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.alertCheckSchedule", "0 0 * * * *")
	v.SetDefault("jobs.alertCheckNotify", true)
	v.SetDefault("jobs.archivalSchedule", "0 30 2 * * *")
	v.SetDefault("jobs.lockTTL", 600)
}
