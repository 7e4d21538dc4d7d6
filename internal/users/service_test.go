package users

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("user-%d", s.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: &sequenceIDs{},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestCreateUserNormalizesUsernameAndAssignsID(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.CreateUser(ctx, NewUser{Username: "  Alice ", PasswordHash: "hash", DisplayName: "Alice A."})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected generated id user-1, got %q", user.ID)
	}
	if user.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", user.Username)
	}

	loaded, err := service.GetUserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if loaded.ID != user.ID {
		t.Fatalf("expected lookup to return %q, got %q", user.ID, loaded.ID)
	}

	exists, err := service.UsernameExists(ctx, "alice")
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if !exists {
		t.Fatalf("expected username to exist")
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateUser(ctx, NewUser{Username: "bob", PasswordHash: "hash"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := service.CreateUser(ctx, NewUser{Username: "Bob", PasswordHash: "other"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestCreateUserRequiresCredentials(t *testing.T) {
	service := newTestService(t)
	_, err := service.CreateUser(context.Background(), NewUser{Username: " ", PasswordHash: "hash"})
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestGetUserByIDReportsMissingRecord(t *testing.T) {
	service := newTestService(t)
	_, err := service.GetUserByID(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateUserKeepsUsernamesUnique(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	carol, err := service.CreateUser(ctx, NewUser{Username: "carol", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create carol failed: %v", err)
	}
	if _, err := service.CreateUser(ctx, NewUser{Username: "dave", PasswordHash: "hash"}); err != nil {
		t.Fatalf("create dave failed: %v", err)
	}

	renamed := *carol
	renamed.Username = "dave"
	if _, err := service.UpdateUser(ctx, renamed); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	renamed.Username = "caroline"
	renamed.DisplayName = "Caroline"
	updated, err := service.UpdateUser(ctx, renamed)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Username != "caroline" {
		t.Fatalf("expected username to change, got %q", updated.Username)
	}
	loaded, err := service.GetUserByID(ctx, carol.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DisplayName != "Caroline" {
		t.Fatalf("expected display name to persist, got %q", loaded.DisplayName)
	}

	missing := *carol
	missing.ID = "ghost"
	missing.Username = "ghost"
	if _, err := service.UpdateUser(ctx, missing); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
