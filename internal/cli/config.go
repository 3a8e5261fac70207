package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pthm/flowscope/internal/dbutil"
)

const (
	maxWalkDepth = 25

	// EnvPrefix prefixes every configuration environment variable.
	EnvPrefix = "FLOWSCOPE"
)

// Source kinds.
const (
	SourceDir = "dir"
	SourceSQL = "sql"
)

// Config represents the flowscope configuration from flowscope.yaml.
type Config struct {
	// FlowsDir holds flow definition files for the dir source.
	FlowsDir string `mapstructure:"flows_dir" json:"flows_dir"`
	// Source selects where definitions are fetched from: dir or sql.
	Source string `mapstructure:"source" json:"source"`

	Log      LogConfig      `mapstructure:"log" json:"log"`
	Analysis AnalysisConfig `mapstructure:"analysis" json:"analysis"`
	Store    StoreConfig    `mapstructure:"store" json:"store"`
	Serve    ServeConfig    `mapstructure:"serve" json:"serve"`
	Doctor   DoctorConfig   `mapstructure:"doctor" json:"doctor"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// AnalysisConfig holds analysis engine settings.
type AnalysisConfig struct {
	MaxDepth         int  `mapstructure:"max_depth" json:"max_depth"`
	Workers          int  `mapstructure:"workers" json:"workers"`
	AlternatePasses  bool `mapstructure:"alternate_passes" json:"alternate_passes"`
	ExcludeExitEdges bool `mapstructure:"exclude_exit_edges" json:"exclude_exit_edges"`
}

// StoreConfig holds run store (and SQL source) connection settings.
type StoreConfig struct {
	Driver   string `mapstructure:"driver" json:"driver"`
	URL      string `mapstructure:"url" json:"url"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"name" json:"name"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// ServeConfig holds HTTP server settings.
type ServeConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// DoctorConfig holds doctor command settings.
type DoctorConfig struct {
	Verbose    bool          `mapstructure:"verbose" json:"verbose"`
	StaleAfter time.Duration `mapstructure:"stale_after" json:"stale_after"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// A .env file next to the config file (or in the working directory when no
// config file is found) is loaded first. Variables already set in the
// environment are not overridden.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Find the config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	// 3. Load .env, then bind environment variables
	envDir := "."
	if configPath != "" {
		envDir = filepath.Dir(configPath)
	}
	if err := loadDotEnv(filepath.Join(envDir, ".env")); err != nil {
		return nil, configPath, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}

	return &cfg, configPath, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Top-level defaults
	v.SetDefault("flows_dir", "flows")
	v.SetDefault("source", SourceDir)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Analysis defaults
	v.SetDefault("analysis.max_depth", 10)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.alternate_passes", false)
	v.SetDefault("analysis.exclude_exit_edges", false)

	// Store defaults
	v.SetDefault("store.driver", string(dbutil.Postgres))
	v.SetDefault("store.url", "")
	v.SetDefault("store.host", "")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "")
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.sslmode", "prefer")

	// Serve defaults
	v.SetDefault("serve.addr", ":8080")

	// Doctor defaults
	v.SetDefault("doctor.verbose", false)
	v.SetDefault("doctor.stale_after", "168h")
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceDir, SourceSQL:
	default:
		return fmt.Errorf("source must be %q or %q, got %q", SourceDir, SourceSQL, c.Source)
	}
	if _, err := dbutil.ParseDialect(c.Store.Driver); err != nil {
		return err
	}
	if c.Analysis.MaxDepth < 1 {
		return fmt.Errorf("analysis.max_depth must be at least 1, got %d", c.Analysis.MaxDepth)
	}
	return nil
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for flowscope.yaml or flowscope.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Auto-discovery: walk up to .git or maxWalkDepth
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		// Try flowscope.yaml then flowscope.yml
		for _, name := range []string{"flowscope.yaml", "flowscope.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Check for repo boundary (.git file or directory)
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break // Stop at repo root
		}

		// Move up
		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached filesystem root
		}
		dir = parent
	}

	return "", nil // No config found, use defaults
}

// Dialect returns the configured store dialect.
func (c *Config) Dialect() (dbutil.Dialect, error) {
	return dbutil.ParseDialect(c.Store.Driver)
}

// HasStore reports whether enough store settings are present to connect.
func (c *Config) HasStore() bool {
	return c.Store.URL != "" || c.Store.Host != ""
}

// DSN returns the store connection string.
// If store.url is set, it's returned directly. For SQLite the URL is the
// database path. Otherwise, builds a PostgreSQL DSN from discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Store

	if db.URL != "" {
		return db.URL, nil
	}

	if d, _ := c.Dialect(); d == dbutil.SQLite {
		return "", fmt.Errorf("store.url is required for the sqlite driver")
	}

	// Build DSN from discrete fields
	if db.Host == "" {
		return "", fmt.Errorf("store.host is required when store.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("store.name is required when store.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("store.user is required when store.url is not set")
	}

	// Build postgres:// URL
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}

	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Redacted returns a copy safe to print: passwords are masked, including
// one embedded in store.url.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Store.Password != "" {
		out.Store.Password = "********"
	}
	if u, err := url.Parse(out.Store.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "********")
			out.Store.URL = u.String()
		}
	}
	return &out
}

// ResolvedFlowsDir returns the effective flows directory, with a
// command-specific override taking precedence over the config.
func (c *Config) ResolvedFlowsDir(commandDir string) string {
	if commandDir != "" {
		return commandDir
	}
	return c.FlowsDir
}
