// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUTHAPI_DATABASE_HOST.
const EnvPrefix = "AUTHAPI"

type Config struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		StaticDir       string        `yaml:"static_dir" split_words:"true"`
		AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	} `yaml:"server"`

	API struct {
		BasePath    string `yaml:"base_path" split_words:"true"`
		SwaggerHost string `yaml:"swagger_host" split_words:"true"`
	} `yaml:"api"`

	Database struct {
		Driver       string `yaml:"driver"` // postgres, sqlite or memory
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		User         string `yaml:"user"`
		Password     string `yaml:"password"`
		DBName       string `yaml:"dbname"`
		SSLMode      string `yaml:"sslmode"`
		SQLitePath   string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
		MaxOpenConns int    `yaml:"max_open_conns" split_words:"true"`
		Migrate      *bool  `yaml:"migrate"` // nil means true
	} `yaml:"database"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		DB       int           `yaml:"db"`
		Password string        `yaml:"password"`
		CacheTTL time.Duration `yaml:"cache_ttl" split_words:"true"`
	} `yaml:"redis"`

	Auth struct {
		TokenTTL        time.Duration `yaml:"token_ttl" split_words:"true"`
		HashCost        int           `yaml:"hash_cost" split_words:"true"`
		IssueAttempts   int           `yaml:"issue_attempts" split_words:"true"`
		HashConcurrency int64         `yaml:"hash_concurrency" split_words:"true"` // 0 is unbounded
		PurgeInterval   time.Duration `yaml:"purge_interval" split_words:"true"`   // 0 disables the purger
	} `yaml:"auth"`

	Bootstrap struct {
		Enabled  bool   `yaml:"enabled"`
		Email    string `yaml:"email"`
		Username string `yaml:"username"`
		Password string `yaml:"password"` // generated when empty
	} `yaml:"bootstrap"`

	Activity struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true"`
		MaxBackups int    `yaml:"max_backups" split_words:"true"`
		Stdout     bool   `yaml:"stdout"`
	} `yaml:"activity"`

	Relay struct {
		Stream        string        `yaml:"stream"`
		Group         string        `yaml:"group"`
		Consumer      string        `yaml:"consumer"`
		Block         time.Duration `yaml:"block"`
		Batch         int64         `yaml:"batch"`
		ChangeLogFile string        `yaml:"change_log_file" split_words:"true"`
	} `yaml:"relay"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// LoadConfig reads filename, applies AUTHAPI_* environment overrides and
// fills in defaults for anything left unset.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("error reading environment: %v", err)
	}

	config.SetDefaults()
	return config, nil
}

// SetDefaults fills zero values. It is safe to call on a hand-built Config.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.API.BasePath == "" {
		c.API.BasePath = "/"
	}

	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.DBName == "" {
		c.Database.DBName = "authdb"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "authapi.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}

	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.HashCost < 10 {
		c.Auth.HashCost = 10
	}
	if c.Auth.IssueAttempts <= 0 {
		c.Auth.IssueAttempts = 3
	}
	if c.Auth.HashConcurrency < 0 {
		c.Auth.HashConcurrency = 0
	}
	if c.Auth.PurgeInterval < 0 {
		c.Auth.PurgeInterval = 0
	}

	if c.Bootstrap.Email == "" {
		c.Bootstrap.Email = "admin@example.com"
	}
	if c.Bootstrap.Username == "" {
		c.Bootstrap.Username = "admin"
	}

	if c.Activity.MaxSizeMB <= 0 {
		c.Activity.MaxSizeMB = 100
	}
	if c.Activity.MaxBackups <= 0 {
		c.Activity.MaxBackups = 5
	}

	if c.Relay.Stream == "" {
		c.Relay.Stream = "tidb-changes"
	}
	if c.Relay.Group == "" {
		c.Relay.Group = "cdc-consumer-group"
	}
	if c.Relay.Consumer == "" {
		c.Relay.Consumer = "cdc-consumer"
	}
	if c.Relay.Block <= 0 {
		c.Relay.Block = 5 * time.Second
	}
	if c.Relay.Batch <= 0 {
		c.Relay.Batch = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// MigrateEnabled reports whether schema migrations run at startup.
func (c *Config) MigrateEnabled() bool {
	return c.Database.Migrate == nil || *c.Database.Migrate
}
