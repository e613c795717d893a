package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers selectable through the connection string
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config holds database configuration
// ARCHITECTURAL DISCOVERY: Configuration struct provides all database settings
// needed for production deployment without hardcoded values
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	WriteTimeout    time.Duration `json:"write_timeout"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: SQLite performs well with 10 connections for the
// chat-room scale of concurrent readers this relay is built for
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./courier.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		WriteTimeout:    30 * time.Second,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	return nil
}

// ParseDSN splits a store connection string of the form driver://path.
// A bare path is treated as a SQLite database file.
func ParseDSN(dsn string) (driver string, path string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", errors.New("store connection string cannot be empty")
	}

	scheme, rest, found := strings.Cut(dsn, "://")
	if !found {
		return DriverSQLite, dsn, nil
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		driver = DriverSQLite
	case DriverBadger:
		driver = DriverBadger
	default:
		return "", "", fmt.Errorf("unsupported store driver %q", scheme)
	}
	if rest == "" {
		return "", "", fmt.Errorf("store connection string %q has no path", dsn)
	}
	return driver, rest, nil
}

// SQLite optimization pragmas
// ARCHITECTURAL DISCOVERY: WAL mode enables concurrent reads while the manager
// keeps a single writer goroutine
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -16000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA busy_timeout = 5000",
}

// ApplyPragmas applies the performance pragmas to an open connection pool
func ApplyPragmas(db *sql.DB) error {
	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
