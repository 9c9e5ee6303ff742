// Package storefactory selects and opens a snapshot store from process configuration.
package storefactory

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Drivers understood by Open.
const (
	DriverFS       = "fs"
	DriverS3       = "s3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Postgres client libraries understood by Open.
const (
	ClientPGX  = "pgx"
	ClientSQL  = "sql"
	ClientSQLX = "sqlx"
)

// Config selects a snapshot store. Every field can be set through METAMODEL_SNAPSHOT_* variables.
type Config struct {
	Driver string `env:"METAMODEL_SNAPSHOT_DRIVER" envDefault:"fs"`

	// fs
	Dir string `env:"METAMODEL_SNAPSHOT_DIR" envDefault:"./snapshots"`

	// sqlite and postgres
	SQLitePath     string `env:"METAMODEL_SNAPSHOT_SQLITE_PATH" envDefault:"./snapshots.db"`
	PostgresDSN    string `env:"METAMODEL_SNAPSHOT_POSTGRES_DSN"`
	PostgresClient string `env:"METAMODEL_SNAPSHOT_POSTGRES_CLIENT" envDefault:"pgx"`
	Table          string `env:"METAMODEL_SNAPSHOT_TABLE" envDefault:"metamodel_snapshots"`
	CreateTable    bool   `env:"METAMODEL_SNAPSHOT_CREATE_TABLE" envDefault:"true"`

	S3 S3Config `envPrefix:"METAMODEL_SNAPSHOT_S3_"`
}

// S3Config configures the s3 driver.
type S3Config struct {
	Bucket          string `env:"BUCKET"`
	Prefix          string `env:"PREFIX"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	PathStyle       bool   `env:"PATH_STYLE"`
}

// ParseEnv loads a Config from the process environment.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// ParseEnvFrom loads a Config from the given variables instead of the process environment.
func ParseEnvFrom(environment map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
