// Package config loads the loader's settings from an optional YAML file with
// environment-variable overrides.
//
// Secrets (PGPASSWORD) only come from the environment. Every field has a
// default, so running with no file and no environment reproduces the classic
// local setup: postgres at 127.0.0.1, database sparkifydb, user/password
// student, input under data/song_data and data/log_data.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full loader configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Data     DataConfig     `yaml:"data"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the storage backend and how to reach it.
type DatabaseConfig struct {
	Kind string `yaml:"kind" env:"ETL_DB_KIND" env-default:"postgres"`

	// DSN, when set, is used verbatim and the fields below are ignored.
	DSN string `yaml:"dsn" env:"ETL_DB_DSN"`

	Host     string `yaml:"host" env:"PGHOST" env-default:"127.0.0.1"`
	Port     int    `yaml:"port" env:"PGPORT"` // 0 = backend default
	User     string `yaml:"user" env:"PGUSER" env-default:"student"`
	Password string `yaml:"-" env:"PGPASSWORD" env-default:"student"` // Secret - not in YAML
	Name     string `yaml:"name" env:"PGDATABASE" env-default:"sparkifydb"`
	SSLMode  string `yaml:"sslmode" env:"PGSSLMODE" env-default:"disable"`

	// StatementsDir optionally holds <statement>.sql files that replace the
	// backend's built-in SQL one statement at a time.
	StatementsDir string `yaml:"statements_dir" env:"ETL_STATEMENTS_DIR"`
}

// DataConfig locates the two input trees.
type DataConfig struct {
	SongRoot string `yaml:"song_root" env:"ETL_SONG_ROOT" env-default:"data/song_data"`
	LogRoot  string `yaml:"log_root" env:"ETL_LOG_ROOT" env-default:"data/log_data"`
	Pattern  string `yaml:"pattern" env:"ETL_FILE_PATTERN" env-default:"*.json"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend        string `yaml:"backend" env:"METRICS_BACKEND" env-default:"none"`
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" env-default:"http://localhost:9091"`
	Tags           string `yaml:"tags" env:"METRICS_TAGS"`
	Job            string `yaml:"job" env:"METRICS_JOB" env-default:"etl_songplays"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads path (if it exists) and applies environment overrides and
// defaults. An empty path or a missing file means environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Usage renders the environment variables the config understands.
func Usage() string {
	var cfg Config
	s, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return s
}

// ConnectionString returns the DSN for the configured backend.
//
// Host fields are rendered as a URL, so credentials containing quotes or
// separators are escaped rather than split into extra keywords.
//
// Edge cases:
//   - An explicit DSN always wins.
//   - sqlite has no host form; it needs a DSN (file path).
func (d DatabaseConfig) ConnectionString() (string, error) {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		return dsn, nil
	}

	switch d.Kind {
	case "postgres":
		port := d.Port
		if port == 0 {
			port = 5432
		}
		q := url.Values{}
		if d.SSLMode != "" {
			q.Set("sslmode", d.SSLMode)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     net.JoinHostPort(d.Host, strconv.Itoa(port)),
			Path:     "/" + d.Name,
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case "mssql":
		port := d.Port
		if port == 0 {
			port = 1433
		}
		q := url.Values{}
		q.Set("database", d.Name)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + strconv.Itoa(port),
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case "sqlite":
		return "", errors.New("config: sqlite requires database.dsn (ETL_DB_DSN)")

	default:
		return "", fmt.Errorf("config: unsupported database kind %q", d.Kind)
	}
}

// ---- validation ----

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the YAML path of the field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownKinds    = []string{"mssql", "postgres", "sqlite"}
	knownBackends = []string{"none", "pushgateway", "datadog"}
	knownLevels   = []string{"debug", "info", "warn", "error"}
)

// Validate checks the configuration without touching the database or the
// input directories.
func (c Config) Validate() []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !contains(knownKinds, c.Database.Kind) {
		add(SeverityError, "database.kind", "unsupported kind %q (want %s)", c.Database.Kind, strings.Join(knownKinds, "|"))
	} else if _, err := c.Database.ConnectionString(); err != nil {
		add(SeverityError, "database.dsn", "%v", err)
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		add(SeverityError, "database.port", "port %d out of range", c.Database.Port)
	}
	if c.Database.StatementsDir != "" {
		if fi, err := os.Stat(c.Database.StatementsDir); err != nil || !fi.IsDir() {
			add(SeverityError, "database.statements_dir", "%q is not a readable directory", c.Database.StatementsDir)
		}
	}

	if strings.TrimSpace(c.Data.SongRoot) == "" {
		add(SeverityError, "data.song_root", "must not be empty")
	}
	if strings.TrimSpace(c.Data.LogRoot) == "" {
		add(SeverityError, "data.log_root", "must not be empty")
	}
	if c.Data.Pattern == "" {
		add(SeverityError, "data.pattern", "must not be empty")
	} else if _, err := filepath.Match(c.Data.Pattern, ""); err != nil {
		add(SeverityError, "data.pattern", "invalid glob %q: %v", c.Data.Pattern, err)
	}

	switch c.Metrics.Backend {
	case "", "none":
	case "pushgateway":
		if _, err := url.ParseRequestURI(c.Metrics.PushgatewayURL); err != nil {
			add(SeverityError, "metrics.pushgateway_url", "invalid url %q", c.Metrics.PushgatewayURL)
		}
	case "datadog":
		if os.Getenv("DD_API_KEY") == "" {
			add(SeverityWarning, "metrics.backend", "datadog selected but DD_API_KEY is not set; submissions will be rejected")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want %s)", c.Metrics.Backend, strings.Join(knownBackends, "|"))
	}
	if c.Metrics.Backend != "" && c.Metrics.Backend != "none" && strings.TrimSpace(c.Metrics.Job) == "" {
		add(SeverityError, "metrics.job", "must not be empty when metrics are enabled")
	}

	if !contains(knownLevels, strings.ToLower(c.Log.Level)) {
		add(SeverityError, "log.level", "unknown level %q (want %s)", c.Log.Level, strings.Join(knownLevels, "|"))
	}

	return issues
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
