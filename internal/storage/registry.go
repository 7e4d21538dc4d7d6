package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/logging"
	"go.uber.org/zap"
)

const storeFileExtension = ".db"

var errMissingDataDir = errors.New("storage: data directory is required")

// RegistryConfig describes where user stores live and which schema they are migrated to.
type RegistryConfig struct {
	DataDir  string
	Prefix   string
	Versions []database.Version
	Logger   *zap.Logger
}

// Registry keeps at most one user store open per process.
// Connect and Disconnect are the only operations that replace the active store.
type Registry struct {
	dataDir  string
	prefix   string
	versions []database.Version
	logger   *zap.Logger

	mu     sync.RWMutex
	active *Store

	// use serializes whole units of work run through Do so a store is never swapped mid-operation.
	use sync.Mutex
}

// NewRegistry validates the configuration and constructs a Registry with no active store.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, errMissingDataDir
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "inkwell"
	}
	versions := cfg.Versions
	if len(versions) == 0 {
		versions = database.JournalVersions()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dataDir:  cfg.DataDir,
		prefix:   prefix,
		versions: versions,
		logger:   logger,
	}, nil
}

// PathFor returns the database file that backs the store of userID.
func (r *Registry) PathFor(userID string) (string, error) {
	name, err := StoreName(r.prefix, userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dataDir, name+storeFileExtension), nil
}

// Connect returns the open store of userID, opening and migrating it when needed.
// A store of a different user is closed before the new one is opened.
func (r *Registry) Connect(ctx context.Context, userID string) (*Store, error) {
	path, err := r.PathFor(userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.UserID == userID {
		return r.active, nil
	}
	if err := r.closeActiveLocked(); err != nil {
		return nil, err
	}

	db, version, err := database.OpenUserStore(ctx, path, r.versions, logging.ForUser(r.logger, userID))
	if err != nil {
		if errors.Is(err, database.ErrMigrationFailed) || errors.Is(err, database.ErrSchemaTooNew) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open store for %q: %v", ErrStoreIO, userID, err)
	}

	name, _ := StoreName(r.prefix, userID)
	r.active = &Store{UserID: userID, Name: name, Path: path, Version: version, db: db}
	r.logger.Info("user store connected", zap.String("user_id", userID), zap.String("store", name))
	return r.active, nil
}

// Disconnect closes and clears the active store. It is a no-op when nothing is connected.
func (r *Registry) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeActiveLocked()
}

// Current returns the active store or ErrNotConnected.
func (r *Registry) Current() (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, ErrNotConnected
	}
	return r.active, nil
}

// Do connects userID and runs fn while holding the registry's unit-of-work lock.
func (r *Registry) Do(ctx context.Context, userID string, fn func(*Store) error) error {
	r.use.Lock()
	defer r.use.Unlock()

	store, err := r.Connect(ctx, userID)
	if err != nil {
		return err
	}
	return fn(store)
}

// Release closes the store of userID when it is the active one, after any unit of work in Do finishes.
func (r *Registry) Release(userID string) error {
	r.use.Lock()
	defer r.use.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.active.UserID != userID {
		return nil
	}
	return r.closeActiveLocked()
}

// Destroy deletes the store file of userID together with every record in it.
// The store is closed first when it is the active one. Destroy must not be called from inside Do.
func (r *Registry) Destroy(userID string) error {
	path, err := r.PathFor(userID)
	if err != nil {
		return err
	}

	r.use.Lock()
	defer r.use.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.UserID == userID {
		if err := r.closeActiveLocked(); err != nil {
			return err
		}
	}
	for _, candidate := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(candidate); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %v", ErrStoreIO, candidate, err)
		}
	}
	r.logger.Info("user store destroyed", zap.String("user_id", userID))
	return nil
}

func (r *Registry) closeActiveLocked() error {
	if r.active == nil {
		return nil
	}
	previous := r.active
	r.active = nil
	if err := previous.Close(); err != nil {
		r.logger.Error("user store close failed", zap.String("user_id", previous.UserID), zap.Error(err))
		return fmt.Errorf("%w: close store for %q: %v", ErrStoreIO, previous.UserID, err)
	}
	r.logger.Info("user store disconnected", zap.String("user_id", previous.UserID))
	return nil
}
