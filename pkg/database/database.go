package database

import (
	"errors"
	"fmt"

	"crm-service/internal/model"
	"crm-service/pkg/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// InitDB opens the configured database, applies pool settings and runs migrations
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.GetDSN())
	default:
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DB.GetDSN(),
			PreferSimpleProtocol: true, // Disables implicit prepared statement usage
		})
	}

	logLevel := cfg.DB.LogLevel
	if cfg.Server.Env == "production" && logLevel > logger.Error {
		logLevel = logger.Error
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	if cfg.DB.Driver == "sqlite" {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	db = conn
	return db, nil
}

// Migrate creates the schema and seeds the fixed category set
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Product{},
		&model.Lead{},
		&model.Activity{},
		&model.TaskNote{},
		&model.LeadProduct{},
	); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return SeedCategories(conn)
}

// SeedCategories makes sure every category of the enumeration exists
func SeedCategories(conn *gorm.DB) error {
	for _, name := range model.CategoryNames {
		var category model.Category
		err := conn.Where("name = ?", name).First(&category).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("look up category %s: %w", name, err)
		}
		if err := conn.Create(&model.Category{Name: name}).Error; err != nil {
			return fmt.Errorf("create category %s: %w", name, err)
		}
	}
	return nil
}

// OpenInMemory opens a private in-memory SQLite database with the schema
// applied. Every call returns an empty database.
func OpenInMemory() (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// The memory database lives and dies with its only connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// Ping checks that the connection is alive
func Ping() error {
	if db == nil {
		return errors.New("database is not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
