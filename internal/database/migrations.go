package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMigrationFailed indicates that a schema version step failed and was rolled back.
	ErrMigrationFailed = errors.New("database: migration failed")
	// ErrSchemaTooNew indicates that the persisted schema is ahead of the known versions.
	ErrSchemaTooNew = errors.New("database: schema version is newer than supported")
	// ErrInvalidVersions indicates that the version list is not contiguous from 1.
	ErrInvalidVersions = errors.New("database: invalid version list")
)

// TransformFunc rewrites stored data for a single schema version.
// It only touches the store through the transaction handle it receives.
type TransformFunc func(tx *gorm.DB, logger *zap.Logger) error

// Version describes an additive schema step and its optional one-time data transform.
type Version struct {
	Number     int
	Statements []string
	Transform  TransformFunc
}

// MigrationError reports the version that failed to apply.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("database: migration to version %d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Err}
}

type migrationRecord struct {
	Version          int   `gorm:"column:version;primaryKey;autoIncrement:false"`
	AppliedAtSeconds int64 `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "schema_versions"
}

// CurrentVersion returns the highest schema version recorded in the store, or 0 for a fresh store.
func CurrentVersion(ctx context.Context, db *gorm.DB) (int, error) {
	var version sql.NullInt64
	err := db.WithContext(ctx).Model(&migrationRecord{}).Select("MAX(version)").Row().Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// ApplyMigrations brings the store up to the last version in versions and returns the resulting version.
// Every version runs its statements, transform and marker insert in one transaction, so a failure leaves
// the store at the last fully applied version and the next call retries the failed step from scratch.
func ApplyMigrations(ctx context.Context, db *gorm.DB, versions []Version, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validateVersions(versions); err != nil {
		return 0, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&migrationRecord{}); err != nil {
		return 0, err
	}

	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	target := len(versions)
	if current > target {
		return current, fmt.Errorf("%w: stored %d, supported %d", ErrSchemaTooNew, current, target)
	}

	// A started version runs to completion or failure; request cancellation does not interrupt it.
	stepCtx := context.WithoutCancel(ctx)
	for _, version := range versions {
		if version.Number <= current {
			continue
		}
		stepErr := db.WithContext(stepCtx).Transaction(func(tx *gorm.DB) error {
			for _, statement := range version.Statements {
				if err := tx.Exec(statement).Error; err != nil {
					return fmt.Errorf("schema statement: %w", err)
				}
			}
			if version.Transform != nil {
				if err := version.Transform(tx, logger.With(zap.Int("version", version.Number))); err != nil {
					return fmt.Errorf("transform: %w", err)
				}
			}
			return tx.Create(&migrationRecord{
				Version:          version.Number,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if stepErr != nil {
			logger.Error("database migration failed",
				zap.Int("version", version.Number),
				zap.Int("stored_version", current),
				zap.Error(stepErr))
			return current, &MigrationError{Version: version.Number, Err: stepErr}
		}
		current = version.Number
		logger.Info("database migration applied", zap.Int("version", version.Number))
	}
	return current, nil
}

func validateVersions(versions []Version) error {
	if len(versions) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVersions)
	}
	for index, version := range versions {
		if version.Number != index+1 {
			return fmt.Errorf("%w: position %d holds version %d", ErrInvalidVersions, index, version.Number)
		}
	}
	return nil
}
