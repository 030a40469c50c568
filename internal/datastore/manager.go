package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Manager owns one database connection and its schema.
type Manager interface {
	// Initialize creates or migrates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Location describes where the data lives, safe for logging.
	Location() string
	// Provider returns the configured backend name.
	Provider() string
	// Close closes the database connection.
	Close() error
}

// Open selects a Manager for the configured provider and initializes its schema.
func Open(settings *conf.DBSettings, log logger.Logger) (Manager, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	var (
		m   Manager
		err error
	)
	switch settings.Provider {
	case conf.DBMySQL:
		m, err = NewMySQLManager(settings, log)
	case conf.DBPostgres, conf.DBCloudSQL:
		m, err = NewPostgresManager(settings, log)
	case conf.DBSQLite, "":
		m, err = NewSQLiteManager(settings, log)
	default:
		return nil, errors.Newf("unsupported database provider %q", settings.Provider).
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Provider).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}

	log.Info("database ready",
		logger.String("provider", m.Provider()),
		logger.String("location", m.Location()))
	return m, nil
}

// gormConfig builds the shared GORM configuration. Debug routes every
// statement through the adapter at INFO instead of TRACE.
func gormConfig(settings *conf.DBSettings, log logger.Logger) *gorm.Config {
	var gl gorm_logger.Interface = logger.NewGormLoggerAdapter(log.Module("gorm"), settings.SlowThreshold)
	if settings.Debug {
		gl = gorm_logger.Default.LogMode(gorm_logger.Info)
	}
	return &gorm.Config{
		Logger:         gl,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	return nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// SQLiteManager stores everything in a single local file.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the SQLite file at settings.Path.
// The special path ":memory:" gives a private in-memory database.
func NewSQLiteManager(settings *conf.DBSettings, log logger.Logger) (*SQLiteManager, error) {
	dbPath := settings.Path
	if dbPath == "" {
		dbPath = "mink.db"
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Category(errors.CategoryFileIO).
					Context("path", dir).
					Build()
			}
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", dbPath)
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(settings, log))
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("provider", conf.DBSQLite).
			Context("path", dbPath).
			Build()
	}

	// SQLite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return &SQLiteManager{db: db, dbPath: dbPath}, nil
}

// Initialize creates the schema.
func (m *SQLiteManager) Initialize() error { return migrate(m.db) }

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB { return m.db }

// Location returns the database file path.
func (m *SQLiteManager) Location() string { return m.dbPath }

// Provider returns "sqlite".
func (m *SQLiteManager) Provider() string { return conf.DBSQLite }

// Close closes the database connection.
func (m *SQLiteManager) Close() error { return closeDB(m.db) }
