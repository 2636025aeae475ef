package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// DB represents a PostgreSQL database connection
type DB struct {
	client *sql.DB
	config *Config
	queue  *DbQueue
}

// GetConfig returns the original DB connection settings
func (d *DB) GetConfig() *Config {
	return d.config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host               string        // Database host
	Port               string        // Database port
	User               string        // Database user
	Password           string        // Database password
	Database           string        // Database name
	SSLMode            string        // SSL mode (disable, require, verify-ca, verify-full)
	MaxIdleConns       int           // Maximum number of idle connections
	MaxOpenConns       int           // Maximum number of open connections
	MaxLifetime        time.Duration // Maximum lifetime of a connection
	StatementTimeoutMs int           // Per-statement timeout applied to every connection
	DatabaseURL        string        // Original DATABASE_URL if used
}

// ConnectionString returns the PostgreSQL connection string
func (c *Config) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func (c *Config) validate() error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port == "" {
		return fmt.Errorf("database port is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 20 * time.Minute
	}
}

// New creates a new PostgreSQL database connection and makes sure the schema exists
func New(config *Config) (*DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	dsn := AugmentDSNWithTimeout(config.ConnectionString(), config.StatementTimeoutMs)
	client, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	if err := client.Ping(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := setupSchema(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	log.Info().
		Str("host", config.Host).
		Str("database", config.Database).
		Int("max_open_conns", config.MaxOpenConns).
		Msg("Connected to PostgreSQL")

	return NewWithClient(client, config), nil
}

// NewWithClient wraps an already opened connection. The schema is not touched.
func NewWithClient(client *sql.DB, config *Config) *DB {
	return &DB{client: client, config: config, queue: NewDbQueue(client)}
}

// ConfigFromEnv builds a Config from DATABASE_URL or the POSTGRES_* variables
func ConfigFromEnv() *Config {
	timeout, _ := strconv.Atoi(os.Getenv("POSTGRES_STATEMENT_TIMEOUT_MS"))

	if url := os.Getenv("DATABASE_URL"); url != "" {
		return &Config{DatabaseURL: url, StatementTimeoutMs: timeout}
	}

	config := &Config{
		Host:               os.Getenv("POSTGRES_HOST"),
		Port:               os.Getenv("POSTGRES_PORT"),
		User:               os.Getenv("POSTGRES_USER"),
		Password:           os.Getenv("POSTGRES_PASSWORD"),
		Database:           os.Getenv("POSTGRES_DB"),
		SSLMode:            os.Getenv("POSTGRES_SSL_MODE"),
		StatementTimeoutMs: timeout,
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == "" {
		config.Port = "5432"
	}
	if config.User == "" {
		config.User = "postgres"
	}
	if config.Database == "" {
		config.Database = "catalog_backoffice"
	}
	return config
}

// InitFromEnv creates a PostgreSQL connection using environment variables
func InitFromEnv() (*DB, error) {
	return New(ConfigFromEnv())
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.client.Close()
}

// GetDB returns the underlying database connection
func (db *DB) GetDB() *sql.DB {
	return db.client
}

// Queue returns the curation job queue backed by this connection
func (db *DB) Queue() *DbQueue {
	return db.queue
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.client.PingContext(ctx)
}
