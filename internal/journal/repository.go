package journal

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/ids"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"go.uber.org/zap"
)

var errMissingSource = errors.New("journal: store source is required")

// Config carries the dependencies shared by every journal repository.
type Config struct {
	Source     storage.Source
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

type base struct {
	clock  storage.Clock
	ids    ids.Provider
	logger *zap.Logger
}

func newBase(cfg Config) (base, error) {
	if cfg.Source == nil {
		return base{}, errMissingSource
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
	return base{clock: storage.Clock(clock), ids: idProvider, logger: logger}, nil
}

func (b base) now() int64 {
	return b.clock.Millis()
}

func (b base) newID(entity string) (string, error) {
	id, err := b.ids.NewID()
	if err != nil {
		return "", storage.IOError(entity, storage.OperationCreate, "", err)
	}
	return id, nil
}

// fail logs repository failures that reach the store and passes err through.
func (b base) fail(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrStoreIO) || errors.Is(err, storage.ErrNotConnected) {
		b.logger.Error("journal repository failure", zap.String("operation", operation), zap.Error(err))
	}
	return err
}
