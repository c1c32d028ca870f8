package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// Models lists every table managed by AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Subscription{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.Contract{},
		&models.Signature{},
		&models.Activity{},
		&models.WebhookEvent{},
		&models.Setting{},
	}
}

// SetupDatabase connects to MySQL, retrying while the server comes up, and
// migrates the schema.
func SetupDatabase(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err == nil {
			if err = DB.AutoMigrate(Models()...); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			return DB, nil
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1), zap.Int("max_attempts", maxRetries), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("connect database: %w", err)
}

func GetDB() *gorm.DB {
	return DB
}
