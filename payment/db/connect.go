package db

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the MySQL database described by dsn, e.g.
// user:pass@tcp(127.0.0.1:3306)/qris?charset=utf8mb4&parseTime=True&loc=Local
func Connect(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)

	logger.Info("Database connected")
	return conn, nil
}

// Sync creates or migrates the tables.
func Sync(conn *gorm.DB) error {
	return conn.AutoMigrate(&Product{}, &TrackedPayment{}, &AdminLog{})
}
