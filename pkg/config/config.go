package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Local         LocalSinkConfig     `mapstructure:"local"`
	Remote        RemoteSinkConfig    `mapstructure:"remote"`
	Roles         RolesConfig         `mapstructure:"roles"`
	Session       SessionConfig       `mapstructure:"session"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	GRPCPort       string        `mapstructure:"grpc_port"`
	Env            string        `mapstructure:"env"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig describes the OpenAI-compatible completion endpoint
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Temperature  float64       `mapstructure:"temperature"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LocalSinkConfig configures the embedded message store
type LocalSinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Required bool   `mapstructure:"required"`
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
}

// RemoteSinkConfig configures the REDCap forwarder
type RemoteSinkConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Required    bool          `mapstructure:"required"`
	Endpoint    string        `mapstructure:"endpoint"`
	Credentials string        `mapstructure:"credentials"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Event       string        `mapstructure:"event"`
	CheckFields bool          `mapstructure:"check_fields"`
	Fields      RemoteFields  `mapstructure:"fields"`
}

// RemoteFields maps message attributes onto REDCap field names.
// An empty MessageLength or Complete disables that field. Complete names the
// instrument's form-complete flag, which is set to "1" on every record.
type RemoteFields struct {
	RecordID       string `mapstructure:"record_id"`
	SessionID      string `mapstructure:"session_id"`
	ConversationID string `mapstructure:"conversation_id"`
	Role           string `mapstructure:"role"`
	Message        string `mapstructure:"message"`
	Timestamp      string `mapstructure:"timestamp"`
	MessageLength  string `mapstructure:"message_length"`
	Complete       string `mapstructure:"complete"`
}

// RolesConfig controls how incoming role labels are accepted
type RolesConfig struct {
	Policy  string            `mapstructure:"policy"`
	Aliases map[string]string `mapstructure:"aliases"`
}

type SessionConfig struct {
	Store  string        `mapstructure:"store"`
	MaxAge time.Duration `mapstructure:"max_age"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type AdminConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	// ExportDir holds server-side exports; empty disables them
	ExportDir string `mapstructure:"export_dir"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Path    string `mapstructure:"path"`
}

type SecurityConfig struct {
	RateLimit         float64 `mapstructure:"rate_limit"`
	RateBurst         int     `mapstructure:"rate_burst"`
	OpenAPIValidation bool    `mapstructure:"openapi_validation"`
}

type ObservabilityConfig struct {
	Metrics bool `mapstructure:"metrics"`
	Tracing bool `mapstructure:"tracing"`
}

// Role policies
const (
	RolePolicyStrict    = "strict"
	RolePolicyNormalize = "normalize"
)

// Options points Load at the configuration files. Empty paths are skipped.
type Options struct {
	EnvFile      string
	ConfigFile   string
	SecretsFile  string
	ScenarioFile string
}

// DefaultOptions mirrors the file layout used by the deployment scripts
func DefaultOptions() Options {
	return Options{
		EnvFile:      ".env",
		ConfigFile:   getEnv("CHATLOG_CONFIG", "config.toml"),
		SecretsFile:  getEnv("CHATLOG_SECRETS", "secrets.toml"),
		ScenarioFile: getEnv("CHATLOG_SCENARIO", "scenario.toml"),
	}
}

// Load resolves the layered configuration and validates it
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		// a missing .env is normal outside development
		_ = godotenv.Load(opts.EnvFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("remote.endpoint", "CHATLOG_REMOTE_ENDPOINT", "REDCAP_API_URL")
	_ = v.BindEnv("remote.credentials", "CHATLOG_REMOTE_CREDENTIALS", "REDCAP_API_TOKEN")
	_ = v.BindEnv("server.port", "CHATLOG_SERVER_PORT", "PORT")
	_ = v.BindEnv("logging.level", "CHATLOG_LOGGING_LEVEL", "LOG_LEVEL")

	for _, path := range []string{opts.ConfigFile, opts.SecretsFile, opts.ScenarioFile} {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderFiles(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5500")
	v.SetDefault("server.grpc_port", "")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.history_limit", 10)
	v.SetDefault("llm.timeout", 20*time.Second)

	v.SetDefault("local.enabled", true)
	v.SetDefault("local.required", true)
	v.SetDefault("local.driver", "sqlite")
	v.SetDefault("local.path", "chat_logs.db")
	v.SetDefault("local.dsn", "")

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.required", false)
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.credentials", "")
	v.SetDefault("remote.timeout", 8*time.Second)
	v.SetDefault("remote.event", "")
	v.SetDefault("remote.check_fields", true)
	v.SetDefault("remote.fields.record_id", "record_id")
	v.SetDefault("remote.fields.session_id", "session_id")
	v.SetDefault("remote.fields.conversation_id", "conversation_id")
	v.SetDefault("remote.fields.role", "role")
	v.SetDefault("remote.fields.message", "message")
	v.SetDefault("remote.fields.timestamp", "timestamp")
	v.SetDefault("remote.fields.message_length", "")
	v.SetDefault("remote.fields.complete", "message_complete")

	v.SetDefault("roles.policy", RolePolicyStrict)
	v.SetDefault("roles.aliases", map[string]string{
		"agent": "assistant",
		"ai":    "assistant",
		"bot":   "assistant",
		"model": "assistant",
		"human": "user",
	})

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.max_age", 24*time.Hour)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "chat")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_ttl", 8*time.Hour)
	v.SetDefault("admin.export_dir", "exports")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.path", "chat-backend")

	v.SetDefault("security.rate_limit", 5.0)
	v.SetDefault("security.rate_burst", 10)
	v.SetDefault("security.openapi_validation", true)

	v.SetDefault("observability.metrics", true)
	v.SetDefault("observability.tracing", false)
}

func mergeFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// applyProviderFiles fills the LLM settings from scenario.toml
// ([llm_provider] name/model) and secrets.toml ([<provider>] API_KEY/API_URL).
func applyProviderFiles(v *viper.Viper, cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = v.GetString("llm_provider.name")
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = v.GetString("llm_provider.model")
	}
	if p := strings.ToLower(cfg.LLM.Provider); p != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v.GetString(p + ".api_key")
		}
		if cfg.LLM.APIURL == "" {
			cfg.LLM.APIURL = v.GetString(p + ".api_url")
		}
	}
	if cfg.Remote.Endpoint == "" {
		cfg.Remote.Endpoint = v.GetString("redcap.api_url")
	}
	if cfg.Remote.Credentials == "" {
		cfg.Remote.Credentials = v.GetString("redcap.api_token")
	}
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}

	if c.Local.Enabled {
		switch c.Local.Driver {
		case "sqlite":
			if c.Local.Path == "" {
				errs = append(errs, errors.New("local.path is required for the sqlite driver"))
			}
		case "postgres":
			if c.Local.DSN == "" {
				errs = append(errs, errors.New("local.dsn is required for the postgres driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("local.driver %q is not supported", c.Local.Driver))
		}
	} else if c.Local.Required {
		errs = append(errs, errors.New("local.required is set but local.enabled is false"))
	}

	if c.Remote.Enabled {
		if c.Remote.Endpoint == "" {
			errs = append(errs, errors.New("remote.endpoint is required when remote.enabled"))
		}
		if c.Remote.Credentials == "" && !c.Vault.Enabled {
			errs = append(errs, errors.New("remote.credentials is required when remote.enabled"))
		}
		if c.Remote.Timeout < time.Second || c.Remote.Timeout > 10*time.Second {
			errs = append(errs, fmt.Errorf("remote.timeout %s must be between 1s and 10s", c.Remote.Timeout))
		}
		if c.Remote.Timeout >= c.Server.RequestTimeout {
			errs = append(errs, errors.New("remote.timeout must be below server.request_timeout"))
		}
		f := c.Remote.Fields
		for name, value := range map[string]string{
			"record_id":       f.RecordID,
			"session_id":      f.SessionID,
			"conversation_id": f.ConversationID,
			"role":            f.Role,
			"message":         f.Message,
			"timestamp":       f.Timestamp,
		} {
			if value == "" {
				errs = append(errs, fmt.Errorf("remote.fields.%s must not be empty", name))
			}
		}
	} else if c.Remote.Required {
		errs = append(errs, errors.New("remote.required is set but remote.enabled is false"))
	}

	switch c.Roles.Policy {
	case RolePolicyStrict, RolePolicyNormalize:
	default:
		errs = append(errs, fmt.Errorf("roles.policy %q must be %q or %q", c.Roles.Policy, RolePolicyStrict, RolePolicyNormalize))
	}

	switch c.Session.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("session.store %q must be memory or redis", c.Session.Store))
	}

	if c.LLM.HistoryLimit < 0 {
		errs = append(errs, errors.New("llm.history_limit must not be negative"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
