package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultMySQLDSN = "root:@tcp(127.0.0.1:3306)/template_tasks?charset=utf8mb4&parseTime=True&loc=Local"

// Config selects the driver ("mysql" or "sqlite") and its DSN.
type Config struct {
	Type     string
	DSN      string
	LogLevel string
}

// NewGormDB opens a connection. SQLite is used unless Type is "mysql".
func NewGormDB(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	dsn := cfg.DSN
	if cfg.Type == "mysql" {
		if dsn == "" {
			dsn = defaultMySQLDSN
			hlog.Infof("Using default MySQL DSN: %s", dsn)
		}
		dialector = mysql.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "templates.db"
			hlog.Infof("Using default SQLite DSN: %s", dsn)
		}
		dialector = sqlite.Open(dsn)
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	hlog.Infof("Database connection established (%s)", dialector.Name())
	return db, nil
}

// AutoMigrate performs auto-migration for the given GORM models.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	hlog.Infof("Database migration completed for %d models", len(models))
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn", "info":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
