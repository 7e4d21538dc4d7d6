package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenUserStore opens a per-user SQLite store and brings it up to the last of the provided versions.
// It returns only after every pending migration has committed or one has failed.
func OpenUserStore(ctx context.Context, path string, versions []Version, log *zap.Logger) (*gorm.DB, int, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, 0, err
	}

	version, err := ApplyMigrations(ctx, db, versions, log)
	if err != nil {
		closeQuietly(db)
		return nil, version, err
	}

	if log != nil {
		log.Info("user store opened", zap.String("path", path), zap.Int("schema_version", version))
	}
	return db, version, nil
}

// OpenAuthStore opens the authentication-records database shared by all users.
func OpenAuthStore(path string, log *zap.Logger) (*gorm.DB, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&users.User{}); err != nil {
		closeQuietly(db)
		return nil, err
	}
	if log != nil {
		log.Info("auth store opened", zap.String("path", path))
	}
	return db, nil
}

func openSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func closeQuietly(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return err
}
