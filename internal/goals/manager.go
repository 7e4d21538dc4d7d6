package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/ids"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	goalEntity = "goal"

	// maxHierarchyDepth bounds ancestor walks so a corrupted parent chain cannot loop forever.
	maxHierarchyDepth = 64
)

var errMissingSource = errors.New("goals: store source is required")

// Config carries the dependencies of the goal manager and tracker repository.
type Config struct {
	Source     storage.Source
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Manager owns every mutation of the goal hierarchy so both sides of a parent/child link change
// together in one transaction.
type Manager struct {
	goals  storage.Collection[Goal]
	clock  storage.Clock
	ids    ids.Provider
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		goals:  storage.NewCollection[Goal](cfg.Source, storage.CollectionConfig{Entity: goalEntity}),
		clock:  storage.Clock(clock),
		ids:    idProvider,
		logger: logger,
	}, nil
}

// GetAll returns every goal, oldest first.
func (m *Manager) GetAll(ctx context.Context) ([]Goal, error) {
	goals, err := m.goals.All(ctx)
	return goals, m.logFailure("goals.get_all", err)
}

// GetByID returns one goal.
func (m *Manager) GetByID(ctx context.Context, id string) (*Goal, error) {
	goal, err := m.goals.Get(ctx, id)
	return goal, m.logFailure("goals.get", err)
}

// Create inserts a goal. When a parent is named, the parent is re-read inside the same transaction
// and the new id is appended to its children.
func (m *Manager) Create(ctx context.Context, payload Goal) (*Goal, error) {
	if err := validateGoal(payload, storage.OperationCreate); err != nil {
		return nil, err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return nil, m.logFailure("goals.create", storage.IOError(goalEntity, storage.OperationCreate, "", err))
	}
	now := m.clock.Millis()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now
	payload.ChildGoalIDs = []string{}
	if payload.Status == "" {
		payload.Status = StatusActive
	}
	payload.ParentGoalID = normalizeParent(payload.ParentGoalID)

	err = m.goals.Transaction(ctx, storage.OperationCreate, "", func(tx *gorm.DB) error {
		if payload.ParentGoalID != nil {
			parent, err := m.goals.GetTx(tx, storage.OperationCreate, *payload.ParentGoalID)
			if err != nil {
				return err
			}
			if err := m.attachChild(tx, parent, id, now); err != nil {
				return err
			}
		}
		return tx.Create(&payload).Error
	})
	if err != nil {
		return nil, m.logFailure("goals.create", err)
	}
	return &payload, nil
}

// Update replaces the descriptive fields of a goal. Hierarchy links only change through Reparent.
func (m *Manager) Update(ctx context.Context, goal Goal) (*Goal, error) {
	if err := validateGoal(goal, storage.OperationUpdate); err != nil {
		return nil, err
	}
	err := m.goals.Replace(ctx, goal.ID, &goal, func(stored, next *Goal) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = m.clock.Millis()
		next.ParentGoalID = stored.ParentGoalID
		next.ChildGoalIDs = stored.ChildGoalIDs
		if next.Status == "" {
			next.Status = stored.Status
		}
		return nil
	})
	if err != nil {
		return nil, m.logFailure("goals.update", err)
	}
	return &goal, nil
}

// Delete removes a goal and detaches it from its parent. Children keep their parent reference.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.goals.Transaction(ctx, storage.OperationDelete, id, func(tx *gorm.DB) error {
		goal, err := m.goals.GetTx(tx, storage.OperationDelete, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if goal.ParentGoalID != nil {
			if err := m.detachChild(tx, *goal.ParentGoalID, id); err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&Goal{}).Error
	})
	return m.logFailure("goals.delete", err)
}

// Reparent moves a goal under parentID, or to the top level when parentID is nil.
// Moving a goal under itself or one of its descendants is rejected.
func (m *Manager) Reparent(ctx context.Context, id string, parentID *string) (*Goal, error) {
	parentID = normalizeParent(parentID)
	var moved *Goal
	err := m.goals.Transaction(ctx, storage.OperationUpdate, id, func(tx *gorm.DB) error {
		goal, err := m.goals.GetTx(tx, storage.OperationUpdate, id)
		if err != nil {
			return err
		}
		now := m.clock.Millis()

		if parentID != nil {
			if *parentID == id {
				return storage.ValidationError(goalEntity, storage.OperationUpdate, id, "a goal cannot be its own parent")
			}
			parent, err := m.goals.GetTx(tx, storage.OperationUpdate, *parentID)
			if err != nil {
				return err
			}
			descendant, err := m.hasAncestor(tx, parent, id)
			if err != nil {
				return err
			}
			if descendant {
				return storage.ValidationError(goalEntity, storage.OperationUpdate, id, fmt.Sprintf("goal %q is a descendant", *parentID))
			}
		}

		if samePointer(goal.ParentGoalID, parentID) {
			moved = goal
			return nil
		}
		if goal.ParentGoalID != nil {
			if err := m.detachChild(tx, *goal.ParentGoalID, id); err != nil {
				return err
			}
		}
		if parentID != nil {
			parent, err := m.goals.GetTx(tx, storage.OperationUpdate, *parentID)
			if err != nil {
				return err
			}
			if err := m.attachChild(tx, parent, id, now); err != nil {
				return err
			}
		}
		goal.ParentGoalID = parentID
		goal.UpdatedAtMillis = now
		moved = goal
		return tx.Save(goal).Error
	})
	if err != nil {
		return nil, m.logFailure("goals.reparent", err)
	}
	return moved, nil
}

// Hierarchy returns the ancestor chain from the root down to id. A dangling parent reference ends
// the chain; a cycle is cut where it first repeats.
func (m *Manager) Hierarchy(ctx context.Context, id string) ([]Goal, error) {
	db, err := m.goals.Session(ctx, storage.OperationQuery, id)
	if err != nil {
		return nil, m.logFailure("goals.hierarchy", err)
	}
	goal, err := m.goals.GetTx(db, storage.OperationGet, id)
	if err != nil {
		return nil, m.logFailure("goals.hierarchy", err)
	}
	ancestors, err := m.ancestors(db, goal)
	if err != nil {
		return nil, m.logFailure("goals.hierarchy", err)
	}
	chain := make([]Goal, 0, len(ancestors))
	for index := len(ancestors) - 1; index >= 0; index-- {
		chain = append(chain, ancestors[index])
	}
	return chain, nil
}

// Children returns the direct children of id in the order they were attached.
func (m *Manager) Children(ctx context.Context, id string) ([]Goal, error) {
	parent, err := m.goals.Get(ctx, id)
	if err != nil {
		return nil, m.logFailure("goals.children", err)
	}
	if len(parent.ChildGoalIDs) == 0 {
		return []Goal{}, nil
	}
	found, err := m.goals.Query(ctx, fmt.Sprintf("children of %q", id), func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", parent.ChildGoalIDs)
	})
	if err != nil {
		return nil, m.logFailure("goals.children", err)
	}
	byID := make(map[string]Goal, len(found))
	for _, child := range found {
		byID[child.ID] = child
	}
	children := make([]Goal, 0, len(found))
	for _, childID := range parent.ChildGoalIDs {
		if child, ok := byID[childID]; ok {
			children = append(children, child)
		}
	}
	return children, nil
}

// ListByStatus returns the goals in one lifecycle state.
func (m *Manager) ListByStatus(ctx context.Context, status Status) ([]Goal, error) {
	goals, err := m.goals.Query(ctx, fmt.Sprintf("status %q", status), func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	})
	return goals, m.logFailure("goals.list_by_status", err)
}

// ListBySourceEntry returns the goals that originated from one entry or review.
func (m *Manager) ListBySourceEntry(ctx context.Context, entryID string) ([]Goal, error) {
	goals, err := m.goals.Query(ctx, fmt.Sprintf("source entry %q", entryID), func(db *gorm.DB) *gorm.DB {
		return db.Where("source_entry_id = ?", entryID)
	})
	return goals, m.logFailure("goals.list_by_source_entry", err)
}

// ancestors walks parent links upward from start, start included, stopping at the root, at a
// dangling reference, at a repeated id, or at maxHierarchyDepth.
func (m *Manager) ancestors(db *gorm.DB, start *Goal) ([]Goal, error) {
	chain := []Goal{*start}
	visited := map[string]bool{start.ID: true}
	current := start
	for depth := 0; current.ParentGoalID != nil && depth < maxHierarchyDepth; depth++ {
		parentID := *current.ParentGoalID
		if visited[parentID] {
			m.logger.Warn("goal hierarchy cycle detected", zap.String("goal_id", start.ID), zap.String("repeated_id", parentID))
			break
		}
		parent, err := m.goals.GetTx(db, storage.OperationQuery, parentID)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		visited[parentID] = true
		chain = append(chain, *parent)
		current = parent
	}
	return chain, nil
}

// hasAncestor reports whether ancestorID appears above start. Unlike ancestors it has no depth
// limit; the visited set alone ends the walk.
func (m *Manager) hasAncestor(db *gorm.DB, start *Goal, ancestorID string) (bool, error) {
	visited := map[string]bool{start.ID: true}
	current := start
	for current.ParentGoalID != nil {
		parentID := *current.ParentGoalID
		if parentID == ancestorID {
			return true, nil
		}
		if visited[parentID] {
			return false, nil
		}
		visited[parentID] = true
		parent, err := m.goals.GetTx(db, storage.OperationQuery, parentID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		current = parent
	}
	return false, nil
}

func (m *Manager) attachChild(tx *gorm.DB, parent *Goal, childID string, now int64) error {
	for _, existing := range parent.ChildGoalIDs {
		if existing == childID {
			return nil
		}
	}
	parent.ChildGoalIDs = append(parent.ChildGoalIDs, childID)
	parent.UpdatedAtMillis = now
	return tx.Save(parent).Error
}

// detachChild re-reads the parent and drops childID from its children. A missing parent is ignored.
func (m *Manager) detachChild(tx *gorm.DB, parentID, childID string) error {
	parent, err := m.goals.GetTx(tx, storage.OperationUpdate, parentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(parent.ChildGoalIDs))
	for _, existing := range parent.ChildGoalIDs {
		if existing != childID {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == len(parent.ChildGoalIDs) {
		return nil
	}
	parent.ChildGoalIDs = remaining
	parent.UpdatedAtMillis = m.clock.Millis()
	return tx.Save(parent).Error
}

func (m *Manager) logFailure(operation string, err error) error {
	if err != nil && (errors.Is(err, storage.ErrStoreIO) || errors.Is(err, storage.ErrNotConnected)) {
		m.logger.Error("goal operation failed", zap.String("operation", operation), zap.Error(err))
	}
	return err
}

func validateGoal(goal Goal, operation storage.Operation) error {
	if strings.TrimSpace(goal.Title) == "" {
		return storage.ValidationError(goalEntity, operation, goal.ID, "title is required")
	}
	if goal.Status != "" {
		if _, err := ParseStatus(string(goal.Status)); err != nil {
			return storage.ValidationError(goalEntity, operation, goal.ID, err.Error())
		}
	}
	return nil
}

func normalizeParent(parentID *string) *string {
	if parentID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*parentID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func samePointer(left, right *string) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}
