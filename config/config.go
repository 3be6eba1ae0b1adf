package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LogLevel  string
	LogFormat string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

type DatabaseConfig struct {
	Driver          string // sqlite3 or pgx
	Path            string // sqlite file
	DSN             string // postgres connection string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var defaults = map[string]any{
	"port":                 3001,
	"read_timeout":         15,
	"write_timeout":        15,
	"idle_timeout":         60,
	"db_driver":            DriverSQLite,
	"db_path":              "books.db",
	"db_dsn":               "",
	"db_max_open_conns":    25,
	"db_max_idle_conns":    25,
	"db_conn_max_lifetime": 300,
	"log_level":            "info",
	"log_format":           "text",
}

// Load creates a new Config from environment variables with defaults
func Load() *Config {
	cfg, err := LoadFile("")
	if err != nil {
		// only a named file can fail to load
		panic(err)
	}
	return cfg
}

// LoadFile is Load with an optional config file (yaml, toml or json) layered
// under the environment. A missing file is an error only when path is set.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var err error
	if path != "" {
		v.SetConfigFile(path)
		if rerr := v.ReadInConfig(); rerr != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(rerr, &notFound) {
				err = fmt.Errorf("config file %s not found: %w", path, rerr)
			} else {
				err = fmt.Errorf("read config %s: %w", path, rerr)
			}
		}
	}

	return fromViper(v), err
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         v.GetInt("port"),
			ReadTimeout:  v.GetInt("read_timeout"),
			WriteTimeout: v.GetInt("write_timeout"),
			IdleTimeout:  v.GetInt("idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("db_driver"),
			Path:            v.GetString("db_path"),
			DSN:             v.GetString("db_dsn"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetInt("db_conn_max_lifetime"),
		},
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
}

// InMemory reports whether the sqlite database lives only in process memory
func (d DatabaseConfig) InMemory() bool {
	return d.Driver == DriverSQLite && d.DSN == "" && d.Path == ":memory:"
}

// DataSource returns the driver-specific connection string
func (d DatabaseConfig) DataSource() string {
	if d.Driver == DriverPostgres {
		return d.DSN
	}
	if d.DSN != "" {
		return d.DSN
	}
	return "file:" + d.Path + "?mode=rwc&_journal_mode=WAL&_busy_timeout=5000"
}

// Validate reports configuration that cannot be served
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" && c.Database.DSN == "" {
			return errors.New("db_path must be set for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("db_dsn must be set for pgx")
		}
	default:
		return fmt.Errorf("unsupported db_driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}
