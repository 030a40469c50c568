package datastore

import (
	"fmt"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresManager stores data in PostgreSQL, including Cloud SQL instances
// reached through the auth proxy or a private IP.
type PostgresManager struct {
	db       *gorm.DB
	location string
}

func postgresDSN(s *conf.DBSettings) string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	sslmode := s.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		s.Host, s.User, s.Password, s.Name, port, sslmode)
}

// NewPostgresManager connects through pgx and configures the connection pool.
func NewPostgresManager(settings *conf.DBSettings, log logger.Logger) (*PostgresManager, error) {
	db, err := gorm.Open(postgres.Open(postgresDSN(settings)), gormConfig(settings, log))
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("provider", conf.DBPostgres).
			Context("host", settings.Host).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresManager{
		db:       db,
		location: fmt.Sprintf("%s:%d/%s", settings.Host, settings.Port, settings.Name),
	}, nil
}

// Initialize creates the schema.
func (m *PostgresManager) Initialize() error { return migrate(m.db) }

// DB returns the underlying GORM database.
func (m *PostgresManager) DB() *gorm.DB { return m.db }

// Location returns host:port/database.
func (m *PostgresManager) Location() string { return m.location }

// Provider returns "postgres".
func (m *PostgresManager) Provider() string { return conf.DBPostgres }

// Close closes the database connection.
func (m *PostgresManager) Close() error { return closeDB(m.db) }
