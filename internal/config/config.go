package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "QUICKNOTE"

	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultMaxConcurrentRequests = 4
	defaultDatabaseDSN           = "quicknote.db"
	defaultDatabaseTimeout       = 5
	defaultIdentityTimeout       = 5
	defaultAttachmentsBackend    = AttachmentsBackendFilesystem
	defaultAttachmentsRoot       = "attachments"
	defaultMinioRegion           = "us-east-1"
	defaultLogLevel              = "info"

	legacyDatabaseEnv = "MONGO_CLIENT_URI_STRING"
	legacyIdentityEnv = "ACCOUNT_API_URL"
)

const (
	AttachmentsBackendFilesystem = "filesystem"
	AttachmentsBackendMinio      = "minio"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress           string
	MaxConcurrentRequests int64
	// AllowedOrigins lists the browser origins that may make credentialed
	// cross-origin requests. Empty allows any origin without credentials.
	AllowedOrigins []string

	DatabaseDSN     string
	DatabaseTimeout time.Duration

	IdentityBaseURL   string
	IdentityTimeout   time.Duration
	IdentityJWTSecret string

	AttachmentsBackend   string
	AttachmentsRoot      string
	RequireOwnedDocument bool

	Minio MinioConfig

	LogLevel string
}

// MinioConfig holds the object store settings used when the attachments
// backend is "minio".
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// LoadDotEnv loads variables from the given files into the process
// environment without overriding values that are already set. Missing files
// are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.max_concurrent_requests", defaultMaxConcurrentRequests)
	configViper.SetDefault("database.timeout_seconds", defaultDatabaseTimeout)
	configViper.SetDefault("identity.timeout_seconds", defaultIdentityTimeout)
	configViper.SetDefault("attachments.backend", defaultAttachmentsBackend)
	configViper.SetDefault("attachments.root", defaultAttachmentsRoot)
	configViper.SetDefault("attachments.require_owned_document", true)
	configViper.SetDefault("minio.region", defaultMinioRegion)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		MaxConcurrentRequests: configViper.GetInt64("http.max_concurrent_requests"),
		AllowedOrigins:        splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDSN:           firstNonBlank(configViper.GetString("database.dsn"), os.Getenv(legacyDatabaseEnv), defaultDatabaseDSN),
		DatabaseTimeout:       time.Duration(configViper.GetInt("database.timeout_seconds")) * time.Second,
		IdentityBaseURL:       firstNonBlank(configViper.GetString("identity.base_url"), os.Getenv(legacyIdentityEnv)),
		IdentityTimeout:       time.Duration(configViper.GetInt("identity.timeout_seconds")) * time.Second,
		IdentityJWTSecret:     configViper.GetString("identity.jwt_secret"),
		AttachmentsBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("attachments.backend"))),
		AttachmentsRoot:       configViper.GetString("attachments.root"),
		RequireOwnedDocument:  configViper.GetBool("attachments.require_owned_document"),
		Minio: MinioConfig{
			Endpoint:  configViper.GetString("minio.endpoint"),
			AccessKey: configViper.GetString("minio.access_key"),
			SecretKey: configViper.GetString("minio.secret_key"),
			Bucket:    configViper.GetString("minio.bucket"),
			Region:    configViper.GetString("minio.region"),
			UseSSL:    configViper.GetBool("minio.use_ssl"),
		},
		LogLevel: configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("http.max_concurrent_requests must be positive")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("http.allowed_origins must list explicit origins, not %q", origin)
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("http.allowed_origins entry %q must start with http:// or https://", origin)
		}
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.IdentityBaseURL) == "" && strings.TrimSpace(c.IdentityJWTSecret) == "" {
		return fmt.Errorf("identity.base_url or identity.jwt_secret is required")
	}
	switch c.AttachmentsBackend {
	case AttachmentsBackendFilesystem:
		if strings.TrimSpace(c.AttachmentsRoot) == "" {
			return fmt.Errorf("attachments.root is required for the filesystem backend")
		}
	case AttachmentsBackendMinio:
		if strings.TrimSpace(c.Minio.Endpoint) == "" {
			return fmt.Errorf("minio.endpoint is required for the minio backend")
		}
		if strings.TrimSpace(c.Minio.Bucket) == "" {
			return fmt.Errorf("minio.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("attachments.backend %q is not supported", c.AttachmentsBackend)
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// splitList accepts both repeated values and comma separated entries, as env
// variables arrive as a single string.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
