// Package config holds the dorfkoenig service configuration.
package config

import (
	"time"

	infraconfig "github.com/wepublish/dorfkoenig/infrastructure/config"
	"github.com/wepublish/dorfkoenig/infrastructure/profiling"
	infraredis "github.com/wepublish/dorfkoenig/infrastructure/redis"
	"github.com/wepublish/dorfkoenig/internal/database"
	"github.com/wepublish/dorfkoenig/internal/llm"
	"github.com/wepublish/dorfkoenig/internal/units"
)

// Default configuration values.
const (
	defaultServiceName  = "dorfkoenig"
	defaultServicePort  = 8070
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"
	defaultDBHost       = "localhost"
	defaultDBPort       = "5432"
	defaultDBName       = "dorfkoenig"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"

	defaultScraperProvider = ScraperFirecrawl
	defaultLLMTimeout      = 90 * time.Second
	defaultLLMMaxRetries   = 2
	defaultEmailFrom       = "Dorfkönig <scouts@labs.wepublish.cloud>"
	defaultWhatsAppVersion = "v21.0"
)

// Scraper providers.
const (
	ScraperFirecrawl = "firecrawl"
	ScraperDirect    = "direct"
)

// Config holds the application configuration.
type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Database       database.Config      `yaml:"database"`
	Redis          infraredis.Config    `yaml:"redis"`
	Auth           AuthConfig           `yaml:"auth"`
	Logging        LoggingConfig        `yaml:"logging"`
	Scraper        ScraperConfig        `yaml:"scraper"`
	LLM            LLMConfig            `yaml:"llm"`
	Embeddings     EmbeddingsConfig     `yaml:"embeddings"`
	Email          EmailConfig          `yaml:"email"`
	WhatsApp       WhatsAppConfig       `yaml:"whatsapp"`
	Correspondents CorrespondentsConfig `yaml:"correspondents"`
	Uploads        UploadsConfig        `yaml:"uploads"`
	Profiling      profiling.Config     `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Port        int      `env:"DORFKOENIG_PORT" yaml:"port"`
	Debug       bool     `env:"APP_DEBUG"       yaml:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS"    yaml:"cors_origins"`
}

// AuthConfig holds the bearer token secret. An empty secret disables auth,
// which is only meant for local development.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"` //nolint:gosec // config field
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// ScraperConfig selects the scrape collaborator. With the firecrawl provider
// the direct scraper is the fallback.
type ScraperConfig struct {
	Provider string `env:"SCRAPER_PROVIDER"   yaml:"provider"`
	APIKey   string `env:"FIRECRAWL_API_KEY"  yaml:"api_key"` //nolint:gosec // config field
	BaseURL  string `env:"FIRECRAWL_BASE_URL" yaml:"base_url"`
}

// LLMConfig configures the chat model.
type LLMConfig struct {
	APIKey         string        `env:"ANTHROPIC_API_KEY"      yaml:"api_key"` //nolint:gosec // config field
	Model          string        `env:"ANTHROPIC_MODEL"        yaml:"model"`
	BaseURL        string        `env:"ANTHROPIC_BASE_URL"     yaml:"base_url"`
	RequestsPerSec float64       `env:"LLM_REQUESTS_PER_SEC"   yaml:"requests_per_sec"`
	MaxRetries     int           `env:"LLM_MAX_RETRIES"        yaml:"max_retries"`
	Timeout        time.Duration `env:"LLM_TIMEOUT"            yaml:"timeout"`
}

// EmbeddingsConfig configures the embedding model.
type EmbeddingsConfig struct {
	APIKey     string `env:"GEMINI_API_KEY"       yaml:"api_key"` //nolint:gosec // config field
	Model      string `env:"EMBEDDING_MODEL"      yaml:"model"`
	Dimensions int    `env:"EMBEDDING_DIMENSIONS" yaml:"dimensions"`
}

// EmailConfig configures Resend.
type EmailConfig struct {
	APIKey string `env:"RESEND_API_KEY" yaml:"api_key"` //nolint:gosec // config field
	From   string `env:"EMAIL_FROM"     yaml:"from"`
}

// WhatsAppConfig configures the Cloud API client and the webhook secrets.
type WhatsAppConfig struct {
	PhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID" yaml:"phone_number_id"`
	APIToken      string `env:"WHATSAPP_API_TOKEN"       yaml:"api_token"`    //nolint:gosec // config field
	AppSecret     string `env:"WHATSAPP_APP_SECRET"      yaml:"app_secret"`   //nolint:gosec // config field
	VerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"    yaml:"verify_token"` //nolint:gosec // config field
	APIVersion    string `env:"WHATSAPP_API_VERSION"     yaml:"api_version"`
}

// CorrespondentsConfig holds the village directory as raw JSON.
type CorrespondentsConfig struct {
	JSON string `env:"BAJOUR_CORRESPONDENTS" yaml:"json"`
}

// UploadsConfig bounds manual text uploads.
type UploadsConfig struct {
	HourlyLimit int `env:"UPLOAD_HOURLY_LIMIT" yaml:"hourly_limit"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setLoggingDefaults(&cfg.Logging)
	setScraperDefaults(&cfg.Scraper)
	setLLMDefaults(&cfg.LLM)
	setEmbeddingsDefaults(&cfg.Embeddings)
	if cfg.Email.From == "" {
		cfg.Email.From = defaultEmailFrom
	}
	if cfg.WhatsApp.APIVersion == "" {
		cfg.WhatsApp.APIVersion = defaultWhatsAppVersion
	}
	if cfg.Uploads.HourlyLimit == 0 {
		cfg.Uploads.HourlyLimit = units.UploadLimit
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
}

func setDatabaseDefaults(db *database.Config) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == "" {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.DBName == "" {
		db.DBName = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

func setScraperDefaults(s *ScraperConfig) {
	if s.Provider == "" {
		s.Provider = defaultScraperProvider
	}
}

func setLLMDefaults(l *LLMConfig) {
	if l.Model == "" {
		l.Model = llm.DefaultChatModel
	}
	if l.RequestsPerSec == 0 {
		l.RequestsPerSec = llm.DefaultRequestsPerSec
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = defaultLLMMaxRetries
	}
	if l.Timeout == 0 {
		l.Timeout = defaultLLMTimeout
	}
}

func setEmbeddingsDefaults(e *EmbeddingsConfig) {
	if e.Model == "" {
		e.Model = llm.DefaultEmbeddingModel
	}
	if e.Dimensions == 0 {
		e.Dimensions = llm.DefaultEmbeddingDimensions
	}
}

// Validate validates the configuration. Collaborator keys are required for
// the remote services the pipeline cannot run without.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Scraper.Provider {
	case ScraperFirecrawl:
		if err := infraconfig.ValidateRequired("scraper.api_key", c.Scraper.APIKey); err != nil {
			return err
		}
	case ScraperDirect:
	default:
		return &infraconfig.ValidationError{
			Field:   "scraper.provider",
			Message: "must be one of: firecrawl, direct",
		}
	}
	if err := infraconfig.ValidateRequired("llm.api_key", c.LLM.APIKey); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("embeddings.api_key", c.Embeddings.APIKey); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 0 {
		return &infraconfig.ValidationError{Field: "embeddings.dimensions", Message: "must be positive"}
	}
	if c.Uploads.HourlyLimit < 0 {
		return &infraconfig.ValidationError{Field: "uploads.hourly_limit", Message: "must not be negative"}
	}
	return nil
}

// VerificationEnabled reports whether the WhatsApp flow is configured.
func (c *Config) VerificationEnabled() bool {
	return c.WhatsApp.PhoneNumberID != "" && c.WhatsApp.APIToken != ""
}
