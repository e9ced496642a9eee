package util

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDatabase 打开数据库连接，driver 支持 sqlite（默认）/mysql/pg
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
