package database

import (
	"fmt"
	"log"
	"lsrw_console/internal/config"
	"lsrw_console/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 建表，只在 migrate 子命令或 debug 模式下执行
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Lesson{},
		&model.LessonMapping{},
		&model.Submission{},
		&model.Feedback{},
	)
	if err != nil {
		return err
	}

	log.Println("Database migration completed")
	return nil
}
