package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/ids"
	"gorm.io/gorm"
)

var (
	// ErrInvalidUser indicates the record is missing a username or password hash.
	ErrInvalidUser = errors.New("users: invalid user")
	// ErrUserNotFound indicates no record matches the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("users: username already exists")
)

// ServiceConfig describes the dependencies required for authentication-record storage.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
}

// Service stores authentication records keyed by a unique username.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	idGen ids.Provider
}

// NewService constructs the authentication-record service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := cfg.IDProvider
	if idGen == nil {
		idGen = ids.NewUUIDProvider()
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		idGen: idGen,
	}, nil
}

// NewUser captures the fields supplied when registering.
type NewUser struct {
	Username     string
	PasswordHash string
	DisplayName  string
}

// GetUserByUsername returns the record registered under username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", NormalizeUsername(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: lookup by username: %w", err)
	}
	return &user, nil
}

// GetUserByID returns the record with the provided identifier.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(userID)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: lookup by id: %w", err)
	}
	return &user, nil
}

// UsernameExists reports whether username is already registered.
func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", NormalizeUsername(username)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("users: username check: %w", err)
	}
	return count > 0, nil
}

// CreateUser registers a new record with a fresh identifier.
func (s *Service) CreateUser(ctx context.Context, input NewUser) (*User, error) {
	username := NormalizeUsername(input.Username)
	if username == "" || strings.TrimSpace(input.PasswordHash) == "" {
		return nil, ErrInvalidUser
	}

	userID, err := s.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("users: id generation: %w", err)
	}
	user := User{
		ID:           userID,
		Username:     username,
		PasswordHash: input.PasswordHash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		LastSeenAt:   s.now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, ErrUsernameTaken) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("users: create %q: %w", username, err)
	}
	return &user, nil
}

// UpdateUser persists changes to an existing record. The username stays unique.
func (s *Service) UpdateUser(ctx context.Context, user User) (*User, error) {
	user.Username = NormalizeUsername(user.Username)
	if user.ID == "" || user.Username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, ErrInvalidUser
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		if err := tx.Where("id = ?", user.ID).Take(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		var clashes int64
		if err := tx.Model(&User{}).Where("username = ? AND id <> ?", user.Username, user.ID).Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return ErrUsernameTaken
		}
		user.CreatedAt = existing.CreatedAt
		return tx.Save(&user).Error
	})
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUsernameTaken) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("users: update %q: %w", user.ID, err)
	}
	return &user, nil
}

// Touch records a successful sign-in.
func (s *Service) Touch(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("last_seen_at", s.now().UTC()).Error
}
