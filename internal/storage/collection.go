package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	defaultKeyColumn = "id"
	defaultOrder     = "created_at_ms ASC, id ASC"
)

// CollectionConfig names the entity and table layout a Collection serves.
type CollectionConfig struct {
	Entity    string
	KeyColumn string
	Order     string
}

// Collection implements the CRUD plumbing shared by every repository. Each call resolves the
// connected store through the Source and annotates failures with the entity, operation and id.
type Collection[T any] struct {
	source    Source
	entity    string
	keyColumn string
	order     string
}

// NewCollection binds a Collection to a Source.
func NewCollection[T any](source Source, cfg CollectionConfig) Collection[T] {
	keyColumn := cfg.KeyColumn
	if keyColumn == "" {
		keyColumn = defaultKeyColumn
	}
	order := cfg.Order
	if order == "" {
		order = defaultOrder
	}
	return Collection[T]{source: source, entity: cfg.Entity, keyColumn: keyColumn, order: order}
}

// Entity returns the entity name used in error messages.
func (c Collection[T]) Entity() string {
	return c.entity
}

// Session returns a context-bound handle on the connected store.
func (c Collection[T]) Session(ctx context.Context, operation Operation, id string) (*gorm.DB, error) {
	if c.source == nil {
		return nil, Annotate(c.entity, operation, id, ErrNotConnected)
	}
	store, err := c.source.Current()
	if err != nil {
		return nil, Annotate(c.entity, operation, id, err)
	}
	db := store.DB()
	if db == nil {
		return nil, Annotate(c.entity, operation, id, ErrNotConnected)
	}
	return db.WithContext(ctx), nil
}

// Transaction runs fn in one store transaction and annotates whatever it returns.
func (c Collection[T]) Transaction(ctx context.Context, operation Operation, id string, fn func(tx *gorm.DB) error) error {
	db, err := c.Session(ctx, operation, id)
	if err != nil {
		return err
	}
	return Annotate(c.entity, operation, id, db.Transaction(fn))
}

// All returns every record in the collection's default order.
func (c Collection[T]) All(ctx context.Context) ([]T, error) {
	db, err := c.Session(ctx, OperationList, "")
	if err != nil {
		return nil, err
	}
	records := make([]T, 0)
	if err := db.Order(c.order).Find(&records).Error; err != nil {
		return nil, Annotate(c.entity, OperationList, "", err)
	}
	return records, nil
}

// Get returns the record stored under id or an ErrNotFound operation error.
func (c Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	db, err := c.Session(ctx, OperationGet, id)
	if err != nil {
		return nil, err
	}
	return c.take(db, OperationGet, id)
}

// GetTx is Get inside an open transaction.
func (c Collection[T]) GetTx(tx *gorm.DB, operation Operation, id string) (*T, error) {
	return c.take(tx, operation, id)
}

func (c Collection[T]) take(db *gorm.DB, operation Operation, id string) (*T, error) {
	var record T
	err := db.Where(c.keyColumn+" = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError(c.entity, operation, id)
	}
	if err != nil {
		return nil, Annotate(c.entity, operation, id, err)
	}
	return &record, nil
}

// Insert stores a new record.
func (c Collection[T]) Insert(ctx context.Context, record *T) error {
	db, err := c.Session(ctx, OperationCreate, "")
	if err != nil {
		return err
	}
	return Annotate(c.entity, OperationCreate, "", db.Create(record).Error)
}

// Replace loads the stored record of id, lets merge carry stored fields over to next, and saves
// next, all in one transaction.
func (c Collection[T]) Replace(ctx context.Context, id string, next *T, merge func(stored, next *T) error) error {
	return c.Transaction(ctx, OperationUpdate, id, func(tx *gorm.DB) error {
		stored, err := c.take(tx, OperationUpdate, id)
		if err != nil {
			return err
		}
		if merge != nil {
			if err := merge(stored, next); err != nil {
				return err
			}
		}
		return tx.Save(next).Error
	})
}

// Remove deletes the record stored under id. Removing an absent id is a no-op.
func (c Collection[T]) Remove(ctx context.Context, id string) error {
	db, err := c.Session(ctx, OperationDelete, id)
	if err != nil {
		return err
	}
	return Annotate(c.entity, OperationDelete, id, db.Where(c.keyColumn+" = ?", id).Delete(new(T)).Error)
}

// Query runs an indexed lookup. filter names the lookup in error messages.
func (c Collection[T]) Query(ctx context.Context, filter string, scope func(*gorm.DB) *gorm.DB) ([]T, error) {
	db, err := c.Session(ctx, OperationQuery, "")
	if err != nil {
		return nil, err
	}
	records := make([]T, 0)
	if err := scope(db.Model(new(T))).Order(c.order).Find(&records).Error; err != nil {
		return nil, QueryError(c.entity, filter, err)
	}
	return records, nil
}

// First runs an indexed lookup expected to match at most one record.
func (c Collection[T]) First(ctx context.Context, filter string, scope func(*gorm.DB) *gorm.DB) (*T, error) {
	db, err := c.Session(ctx, OperationQuery, "")
	if err != nil {
		return nil, err
	}
	var record T
	err = scope(db.Model(new(T))).Order(c.order).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &OperationError{Entity: c.entity, Operation: OperationQuery, Filter: filter, Kind: ErrNotFound}
	}
	if err != nil {
		return nil, QueryError(c.entity, filter, err)
	}
	return &record, nil
}
