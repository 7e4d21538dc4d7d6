package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

const versionTable = "schema_versions"

// Source resolves the store of the connected user. Repositories receive a Source instead of
// reaching for a package-level store.
type Source interface {
	Current() (*Store, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Millis returns the clock reading as Unix milliseconds.
func (c Clock) Millis() int64 {
	if c == nil {
		return time.Now().UnixMilli()
	}
	return c().UnixMilli()
}

// Store is one user's open journal database.
type Store struct {
	UserID  string
	Name    string
	Path    string
	Version int

	mu sync.RWMutex
	db *gorm.DB
}

// DB exposes the GORM handle of the store, or nil once the store is closed.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close releases the underlying connection. Closing a closed store is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Snapshot is the JSON document produced by Export.
type Snapshot struct {
	UserID  string          `json:"userId"`
	Version int             `json:"schemaVersion"`
	Tables  []TableSnapshot `json:"tables"`
}

// TableSnapshot holds every row of one table in insertion order.
type TableSnapshot struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

// Export dumps every data table, ordered by table name and then by rowid.
// Two stores holding the same records export to identical bytes.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	handle := s.DB()
	if handle == nil {
		return nil, ErrNotConnected
	}
	db := handle.WithContext(ctx)

	var tables []string
	err := db.Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`).
		Scan(&tables).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", ErrStoreIO, err)
	}

	snapshot := Snapshot{UserID: s.UserID, Version: s.Version, Tables: make([]TableSnapshot, 0, len(tables))}
	for _, table := range tables {
		if table == versionTable {
			continue
		}
		rows := make([]map[string]any, 0)
		if err := db.Table(table).Order("rowid").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("%w: dump %s: %v", ErrStoreIO, table, err)
		}
		for _, row := range rows {
			for column, value := range row {
				if raw, ok := value.([]byte); ok {
					row[column] = string(raw)
				}
			}
		}
		snapshot.Tables = append(snapshot.Tables, TableSnapshot{Name: table, Rows: rows})
	}
	return json.MarshalIndent(snapshot, "", "  ")
}

// StoreName derives the store name of a user from the configured prefix.
func StoreName(prefix, userID string) (string, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if trimmed != userID || strings.ContainsAny(userID, `/\:`) || strings.Contains(userID, "..") || strings.ContainsRune(userID, 0) {
		return "", fmt.Errorf("%w: user id %q cannot name a store", ErrValidation, userID)
	}
	return prefix + "_" + userID, nil
}
