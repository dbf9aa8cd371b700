// Package config loads the library console configuration from command-line
// flags, LIBRARY_* environment variables, a .env file and defaults, in that
// order of precedence.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"

	"library-ledger/library"
)

// Flag names.
const (
	FlagFineRate   = "fine-rate"
	FlagGraceDays  = "grace-days"
	FlagMaxBooks   = "max-books"
	FlagDriver     = "driver"
	FlagDBPath     = "db"
	FlagDSN        = "dsn"
	FlagPGClient   = "pg-client"
	FlagTimeout    = "timeout"
	FlagEnv        = "env"
	FlagLogLevel   = "log-level"
	FlagLogFormat  = "log-format"
	FlagLogFile    = "log-file"
	FlagOutput     = "output"
	FlagEnvFile    = "env-file"
	DefaultEnvFile = ".env"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration. It is read once at startup and
// never changed afterwards.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Store  StoreConfig
	Policy PolicyConfig
	Output OutputConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment    string        `validate:"oneof=development staging production"`
	CommandTimeout time.Duration `validate:"gt=0"`
}

// LoggerConfig holds logging configuration. An empty File disables the log
// file.
type LoggerConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=auto json pretty"`
	File   string
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver   string `validate:"oneof=sqlite postgres"`
	Path     string `validate:"required_if=Driver sqlite"`
	DSN      string `validate:"required_if=Driver postgres"`
	PGClient string `validate:"oneof=pgx pq"`
}

// PolicyConfig holds the borrowing rules.
type PolicyConfig struct {
	FineRatePerDay    float64 `validate:"gte=0"`
	GracePeriodDays   int     `validate:"gte=0"`
	MaxBooksPerMember int     `validate:"gte=1"`
}

// OutputConfig selects how results are printed.
type OutputConfig struct {
	Format string `validate:"oneof=table json"`
}

// LoanPolicy converts the policy section into the ledger's Policy.
func (c *Config) LoanPolicy() library.Policy {
	return library.Policy{
		FineRatePerDay:    c.Policy.FineRatePerDay,
		GracePeriodDays:   c.Policy.GracePeriodDays,
		MaxBooksPerMember: c.Policy.MaxBooksPerMember,
	}
}

// RegisterFlags adds the configuration flags to fs. Defaults shown in help
// are the built-in defaults; environment values still override them unless
// the flag is given explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	d := library.DefaultPolicy()
	fs.Float64(FlagFineRate, d.FineRatePerDay, "Fine charged per overdue day")
	fs.Int(FlagGraceDays, d.GracePeriodDays, "Days a book may be kept without a fine")
	fs.Int(FlagMaxBooks, d.MaxBooksPerMember, "Maximum open loans per member")
	fs.String(FlagDriver, DriverSQLite, "Store driver (sqlite, postgres)")
	fs.String(FlagDBPath, "library.db", "SQLite database path")
	fs.String(FlagDSN, "", "PostgreSQL connection string")
	fs.String(FlagPGClient, "pgx", "PostgreSQL client (pgx, pq)")
	fs.Duration(FlagTimeout, 10*time.Second, "Timeout applied to each command")
	fs.String(FlagEnv, "development", "Environment (development, staging, production)")
	fs.String(FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	fs.String(FlagLogFormat, "auto", "Console log format (auto, json, pretty)")
	fs.String(FlagLogFile, "library_system.log", "Log file path, empty to disable")
	fs.StringP(FlagOutput, "o", "table", "Output format (table, json)")
	fs.String(FlagEnvFile, DefaultEnvFile, "Path to .env file")
}

// Load builds the configuration with precedence:
// 1. Command-line flags that were set explicitly.
// 2. Environment variables.
// 3. .env file.
// 4. Flag defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	envFile := DefaultEnvFile
	if f := fs.Lookup(FlagEnvFile); f != nil {
		envFile = f.Value.String()
	}
	// A missing .env file is fine; a malformed one is not.
	if err := loadEnvFile(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	l := loader{fs: fs}
	cfg := &Config{
		App: AppConfig{
			Environment:    l.str(FlagEnv, "LIBRARY_ENV"),
			CommandTimeout: l.duration(FlagTimeout, "LIBRARY_COMMAND_TIMEOUT"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(l.str(FlagLogLevel, "LIBRARY_LOG_LEVEL")),
			Format: strings.ToLower(l.str(FlagLogFormat, "LIBRARY_LOG_FORMAT")),
			File:   l.str(FlagLogFile, "LIBRARY_LOG_FILE"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(l.str(FlagDriver, "LIBRARY_DB_DRIVER")),
			Path:     l.str(FlagDBPath, "LIBRARY_DB_PATH"),
			DSN:      l.str(FlagDSN, "LIBRARY_DB_DSN"),
			PGClient: strings.ToLower(l.str(FlagPGClient, "LIBRARY_PG_CLIENT")),
		},
		Policy: PolicyConfig{
			FineRatePerDay:    l.float(FlagFineRate, "LIBRARY_FINE_RATE_PER_DAY"),
			GracePeriodDays:   l.int(FlagGraceDays, "LIBRARY_GRACE_PERIOD_DAYS"),
			MaxBooksPerMember: l.int(FlagMaxBooks, "LIBRARY_MAX_BOOKS_PER_MEMBER"),
		},
		Output: OutputConfig{
			Format: strings.ToLower(l.str(FlagOutput, "LIBRARY_OUTPUT")),
		},
	}
	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fieldMessage(e))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(e validator.FieldError) string {
	name := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of [%s]", name, e.Value(), e.Param())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", name, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

// loader resolves one value at a time and collects parse errors.
type loader struct {
	fs   *pflag.FlagSet
	errs []error
}

// raw returns the explicit flag value, else the environment value, else the
// flag default.
func (l *loader) raw(flag, envKey string) string {
	f := l.fs.Lookup(flag)
	if f != nil && f.Changed {
		return f.Value.String()
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	if f != nil {
		return f.DefValue
	}
	return ""
}

func (l *loader) str(flag, envKey string) string {
	return strings.TrimSpace(l.raw(flag, envKey))
}

func (l *loader) int(flag, envKey string) int {
	s := l.str(flag, envKey)
	v, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: must be an integer", envKey, s))
	}
	return v
}

func (l *loader) float(flag, envKey string) float64 {
	s := l.str(flag, envKey)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: must be a number", envKey, s))
	}
	return v
}

func (l *loader) duration(flag, envKey string) time.Duration {
	s := l.str(flag, envKey)
	v, err := time.ParseDuration(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", envKey, s, err))
	}
	return v
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Variables already set in
// the environment are left untouched.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
