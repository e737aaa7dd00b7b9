package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 32

// MinTokenLifetime is the shortest token lifetime accepted.
const MinTokenLifetime = time.Second

// DbConfig represents the connection pool settings for the database.
type DbConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Argon2Config holds the password hashing cost.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
}

// Config represents the configuration settings of the application. It is
// loaded once at start; nothing reloads it.
type Config struct {
	Addr          string        `yaml:"addr"`
	DatabaseURL   string        `yaml:"database_url"`
	Database      DbConfig      `yaml:"database"`
	Migrate       bool          `yaml:"migrate"`
	SigningSecret string        `yaml:"signing_secret"`
	TokenLifetime time.Duration `yaml:"token_lifetime"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	CORSOrigins   string        `yaml:"cors_origins"`
	Argon2        Argon2Config  `yaml:"argon2"`
}

// Default returns the configuration used for anything left unset.
func Default() Config {
	return Config{
		Addr:          ":8080",
		Migrate:       true,
		TokenLifetime: 24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
		CORSOrigins:   "*",
		Database: DbConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Argon2: Argon2Config{
			Memory:      64 * 1024,
			Iterations:  3,
			Parallelism: 2,
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// merged into the environment when present, then the YAML file at path is
// read when path is not empty, then LUMI_* variables override.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading .env: %w", err)
	}

	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("error unmarshalling %s: %w", path, err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("LUMI_ADDR", &c.Addr)
	if port, ok := lookup("LUMI_PORT"); ok && port != "" {
		c.Addr = ":" + port
	}
	str("LUMI_DATABASE_URL", &c.DatabaseURL)
	str("LUMI_SIGNING_SECRET", &c.SigningSecret)
	str("LUMI_LOG_LEVEL", &c.LogLevel)
	str("LUMI_LOG_FORMAT", &c.LogFormat)
	str("LUMI_CORS_ORIGINS", &c.CORSOrigins)

	if v, ok := lookup("LUMI_TOKEN_LIFETIME"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LUMI_TOKEN_LIFETIME: %w", err)
		}
		c.TokenLifetime = d
	}
	if v, ok := lookup("LUMI_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LUMI_MIGRATE: %w", err)
		}
		c.Migrate = b
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if len(c.SigningSecret) < MinSecretLength {
		return fmt.Errorf("signing_secret must be at least %d bytes", MinSecretLength)
	}
	if c.TokenLifetime < MinTokenLifetime {
		return fmt.Errorf("token_lifetime must be at least %s, got %s", MinTokenLifetime, c.TokenLifetime)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("log_format must be json or pretty, got %q", c.LogFormat)
	}
	return nil
}
