package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the prompt generator.
type Config struct {
	HTTPPort    string
	JWTSecret   []byte
	AccessToken string        // shared secret exchanged for a session token
	TokenTTL    time.Duration // lifetime of issued session tokens

	Provider    ProviderConfig
	Dispatch    DispatchConfig
	Discovery   DiscoveryConfig
	Credentials CredentialsConfig
	Redis       RedisConfig
	Limits      LimitsConfig
	AttemptLog  AttemptLogConfig
	Export      ExportConfig
}

// ProviderConfig selects and configures the upstream generation provider
type ProviderConfig struct {
	Type           string // gemini or openai
	BaseURL        string // empty = provider default
	DefaultModel   string // used when discovery cannot list models
	RequestTimeout time.Duration
	SecretKeys     string // keys from the secrets source, comma separated
}

// DispatchConfig holds failover and pacing settings
type DispatchConfig struct {
	RetryFactor   int           // attempt budget = pool size x RetryFactor
	BaseDelay     time.Duration // pacing after a success for a single-key pool
	MinDelay      time.Duration // lower bound of the pacing delay
	RetryDelay    time.Duration // pause between failed attempts
	ExpectJSON    bool          // ask for and unwrap a JSON envelope
	Lenient       bool          // accept cleaned raw text when the envelope is missing
	ResponseField string        // envelope field holding the generated text
	MaxQuantity   int
}

// DiscoveryConfig holds model discovery cache settings
type DiscoveryConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// CredentialsConfig holds the local credential cache settings
type CredentialsConfig struct {
	FilePath   string // empty disables the cache
	Passphrase string // empty stores the file unencrypted
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string // empty disables the shared limiter
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LimitsConfig holds per-credential request limits
type LimitsConfig struct {
	RequestsPerMinute int // 0 = unlimited
}

// AttemptLogConfig holds settings for the JSONL attempt log
type AttemptLogConfig struct {
	Enabled          bool
	Backend          string // file or redis
	RedisKey         string
	RedisMaxEntries  int64
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// ExportConfig controls where result files are written
type ExportConfig struct {
	Directory string
	Format    string // txt or html
	S3Bucket  string // non-empty uploads to S3 instead of the local directory
	S3Region  string
	S3Prefix  string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(os.Getenv(key))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:    getEnvString("HTTP_PORT", "8080"),
		JWTSecret:   []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		AccessToken: getEnvString("ACCESS_TOKEN", ""),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 15*time.Minute),
		Provider: ProviderConfig{
			Type:           getEnvString("PROVIDER_TYPE", "gemini"),
			BaseURL:        getEnvString("PROVIDER_BASE_URL", ""),
			DefaultModel:   getEnvString("PROVIDER_DEFAULT_MODEL", ""),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			SecretKeys:     getEnvString("PROMPTFORGE_API_KEYS", ""),
		},
		Dispatch: DispatchConfig{
			RetryFactor:   getEnvInt("DISPATCH_RETRY_FACTOR", 2),
			BaseDelay:     getEnvDuration("DISPATCH_BASE_DELAY", 5*time.Second),
			MinDelay:      getEnvDuration("DISPATCH_MIN_DELAY", 1*time.Second),
			RetryDelay:    getEnvDuration("DISPATCH_RETRY_DELAY", 1*time.Second),
			ExpectJSON:    getEnvBool("DISPATCH_EXPECT_JSON", true),
			Lenient:       getEnvBool("DISPATCH_LENIENT", true),
			ResponseField: getEnvString("DISPATCH_RESPONSE_FIELD", "prompt"),
			MaxQuantity:   getEnvInt("DISPATCH_MAX_QUANTITY", 100),
		},
		Discovery: DiscoveryConfig{
			CacheSize: getEnvInt("DISCOVERY_CACHE_SIZE", 256),
			CacheTTL:  getEnvDuration("DISCOVERY_CACHE_TTL", 1*time.Hour),
		},
		Credentials: CredentialsConfig{
			FilePath:   getEnvString("CREDENTIALS_FILE", ""),
			Passphrase: getEnvString("CREDENTIALS_PASSPHRASE", ""),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Limits: LimitsConfig{
			RequestsPerMinute: getEnvInt("LIMIT_REQUESTS_PER_MINUTE", 0),
		},
		AttemptLog: AttemptLogConfig{
			Enabled:          getEnvBool("ATTEMPT_LOG_ENABLED", false),
			Backend:          getEnvString("ATTEMPT_LOG_BACKEND", "file"),
			RedisKey:         getEnvString("ATTEMPT_LOG_REDIS_KEY", "promptforge:attempts"),
			RedisMaxEntries:  getEnvInt64("ATTEMPT_LOG_REDIS_MAX_ENTRIES", 100000),
			FilePathTemplate: getEnvString("ATTEMPT_LOG_FILE_PATH_TEMPLATE", "./logs/attempts-%s.jsonl"),
			MaxSize:          getEnvInt64("ATTEMPT_LOG_MAX_SIZE", 10_485_760),              // default 10 MB
			MaxFiles:         getEnvInt("ATTEMPT_LOG_MAX_FILES", 5),                        // default 5
			BufferSize:       getEnvInt("ATTEMPT_LOG_BUFFER_SIZE", 100),                    // default 100
			FlushInterval:    getEnvDuration("ATTEMPT_LOG_FLUSH_INTERVAL", 10*time.Second), // default 10 seconds
		},
		Export: ExportConfig{
			Directory: getEnvString("EXPORT_DIRECTORY", "."),
			Format:    getEnvString("EXPORT_FORMAT", "txt"),
			S3Bucket:  getEnvString("EXPORT_S3_BUCKET", ""),
			S3Region:  getEnvString("EXPORT_S3_REGION", "us-east-1"),
			S3Prefix:  getEnvString("EXPORT_S3_PREFIX", "prompts/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would make a batch run meaningless.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported PROVIDER_TYPE: %s", c.Provider.Type)
	}
	if c.Dispatch.RetryFactor < 1 {
		return fmt.Errorf("DISPATCH_RETRY_FACTOR must be at least 1, got %d", c.Dispatch.RetryFactor)
	}
	if c.Dispatch.MaxQuantity < 1 {
		return fmt.Errorf("DISPATCH_MAX_QUANTITY must be at least 1, got %d", c.Dispatch.MaxQuantity)
	}
	if c.Dispatch.MinDelay > c.Dispatch.BaseDelay {
		return fmt.Errorf("DISPATCH_MIN_DELAY (%s) exceeds DISPATCH_BASE_DELAY (%s)", c.Dispatch.MinDelay, c.Dispatch.BaseDelay)
	}
	switch c.AttemptLog.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported ATTEMPT_LOG_BACKEND: %s", c.AttemptLog.Backend)
	}
	if c.AttemptLog.Enabled && c.AttemptLog.Backend == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("ATTEMPT_LOG_BACKEND=redis requires REDIS_ADDRESS")
	}
	switch c.Export.Format {
	case "txt", "html":
	default:
		return fmt.Errorf("unsupported EXPORT_FORMAT: %s", c.Export.Format)
	}
	return nil
}
