package datastore

import (
	"fmt"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLManager stores data in a networked MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string // host:port/database for display
}

// mysqlDSN builds the go-sql-driver DSN. parseTime lets GORM scan DATETIME
// columns into time.Time.
func mysqlDSN(s *conf.DBSettings) string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.User, s.Password, s.Host, port, s.Name)
}

// NewMySQLManager connects to MySQL and configures the connection pool.
func NewMySQLManager(settings *conf.DBSettings, log logger.Logger) (*MySQLManager, error) {
	db, err := gorm.Open(mysql.Open(mysqlDSN(settings)), gormConfig(settings, log))
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("provider", conf.DBMySQL).
			Context("host", settings.Host).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		location: fmt.Sprintf("%s:%d/%s", settings.Host, settings.Port, settings.Name),
	}, nil
}

// Initialize creates the schema.
func (m *MySQLManager) Initialize() error { return migrate(m.db) }

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB { return m.db }

// Location returns host:port/database.
func (m *MySQLManager) Location() string { return m.location }

// Provider returns "mysql".
func (m *MySQLManager) Provider() string { return conf.DBMySQL }

// Close closes the database connection.
func (m *MySQLManager) Close() error { return closeDB(m.db) }
