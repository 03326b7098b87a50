package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	DefaultPort = 3000

	// APIPrefix is the reserved path prefix forwarded to the upstream.
	APIPrefix = "/api"

	// FallbackDocument is served for every route without a matching file.
	FallbackDocument = "index.html"
)

// ErrInvalidUpstream is returned by ParseUpstream for values that cannot be
// used as a proxy target.
var ErrInvalidUpstream = errors.New("invalid upstream url")

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Environment  string        `mapstructure:"environment"`
	StaticDir    string        `mapstructure:"static_dir"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type UpstreamConfig struct {
	URL              string        `mapstructure:"url"`
	ForwardedHeaders bool          `mapstructure:"forwarded_headers"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

// Config is built once at startup and handed to every component by value
// or pointer; nothing reads the environment after Load returns.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// Load reads config.yaml from ./config or the working directory when present,
// then applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given file instead of searching.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.forwarded_headers", false)
	v.SetDefault("upstream.health_interval", "30s")
	v.SetDefault("upstream.breaker_threshold", 0)
	v.SetDefault("upstream.breaker_reset", "10s")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.compress", true)
	v.SetDefault("admin.address", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Names used by the hosting platform and the previous Node deployment.
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.environment", "ENVIRONMENT", "NODE_ENV")
	_ = v.BindEnv("server.static_dir", "STATIC_DIR")
	_ = v.BindEnv("upstream.url", "BACKEND_URL")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.file", "LOG_FILE")
	_ = v.BindEnv("admin.address", "ADMIN_ADDRESS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Environment = normalizeEnvironment(c.Server.Environment)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Upstream.URL = normalizeUpstream(c.Upstream.URL)

	if c.Server.StaticDir == "" {
		c.Server.StaticDir = defaultStaticDir(c.Server.Environment)
	}
	if abs, err := filepath.Abs(c.Server.StaticDir); err == nil {
		c.Server.StaticDir = abs
	}
}

// Addr is the listen address of the edge server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ProxyEnabled reports whether an upstream was configured.
func (c *Config) ProxyEnabled() bool {
	return c.Upstream.URL != ""
}

// UpstreamURL returns the parsed upstream origin, or nil when proxying is
// disabled.
func (c *Config) UpstreamURL() *url.URL {
	if !c.ProxyEnabled() {
		return nil
	}
	u, err := ParseUpstream(c.Upstream.URL)
	if err != nil {
		return nil
	}
	return u
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Host, is.Host),
					validation.Field(&sc.Port,
						validation.Required,
						validation.Min(1),
						validation.Max(65535),
					),
					validation.Field(&sc.StaticDir, validation.Required),
					validation.Field(&sc.ReadTimeout, validation.Min(time.Duration(0))),
					validation.Field(&sc.WriteTimeout, validation.Min(time.Duration(0))),
					validation.Field(&sc.IdleTimeout, validation.Min(time.Duration(0))),
				)
			}),
		),
		validation.Field(&c.Upstream,
			validation.By(func(value interface{}) error {
				uc, ok := value.(UpstreamConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
				}
				return validation.ValidateStruct(&uc,
					validation.Field(&uc.URL, validation.By(validateUpstreamURL)),
					validation.Field(&uc.HealthInterval, validation.Min(time.Duration(0))),
					validation.Field(&uc.BreakerThreshold, validation.Min(0)),
					validation.Field(&uc.BreakerReset,
						validation.When(uc.BreakerThreshold > 0, validation.Required, validation.Min(time.Millisecond)),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.MaxSizeMB, validation.Min(0)),
					validation.Field(&lc.MaxBackups, validation.Min(0)),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address, validation.By(validateHostPort)),
				)
			}),
		),
	)
}

// ParseUpstream parses an upstream origin. Only scheme and host are allowed:
// the forwarded path must equal the inbound path, so a base path on the
// target would corrupt it.
func ParseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(normalizeUpstream(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpstream, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidUpstream)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidUpstream)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("%w: base path %q is not supported", ErrInvalidUpstream, u.Path)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("%w: query and fragment are not supported", ErrInvalidUpstream)
	}
	u.Path = ""
	u.RawPath = ""
	return u, nil
}

// normalizeUpstream accepts the bare host:port form handed out by the
// hosting platform and assumes plain http for it.
func normalizeUpstream(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func normalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", EnvProd:
		return EnvProd
	case "development", EnvDev, "":
		return EnvDev
	case EnvStaging:
		return EnvStaging
	default:
		// Anything else the Node deployment tolerated (test, ci) runs as dev.
		return EnvDev
	}
}

// defaultStaticDir places the bundle next to the deployed binary in prod and
// at ../dist/public when running from a build tree.
func defaultStaticDir(env string) string {
	base := "."
	if exe, err := os.Executable(); err == nil {
		base = filepath.Dir(exe)
	}
	if env == EnvProd {
		return filepath.Join(base, "public")
	}
	return filepath.Join(base, "..", "dist", "public")
}

func validateUpstreamURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if raw == "" {
		return nil
	}
	if _, err := ParseUpstream(raw); err != nil {
		return validation.NewError("validation_invalid_upstream", err.Error())
	}
	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
