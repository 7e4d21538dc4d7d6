package journal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/stretchr/testify/require"
)

type sequenceIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s-%03d", s.prefix, s.next), nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(value time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = value
}

type fixture struct {
	registry *storage.Registry
	clock    *manualClock
	config   Config
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	registry, err := storage.NewRegistry(storage.RegistryConfig{DataDir: t.TempDir(), Prefix: "journal"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Disconnect() })
	_, err = registry.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	clock := &manualClock{now: time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)}
	return fixture{
		registry: registry,
		clock:    clock,
		config: Config{
			Source:     registry,
			Clock:      clock.Now,
			IDProvider: &sequenceIDs{prefix: "id"},
		},
	}
}
