package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// storeRetryAttempts is how many times a transient failure is retried
// before the operation surfaces as store-unavailable
const storeRetryAttempts = 3

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB creates a new Badger database connection
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		// Corrupted or unopenable stores fail fast rather than limping along
		logger.Fatal().Err(err).Str("path", config.Path).Msg("BadgerDB: Failed to open database")
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// RunGC triggers a value log garbage collection cycle. Badger returns
// ErrNoRewrite when nothing needed collecting, which is not a failure.
func (b *BadgerDB) RunGC() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Badger().RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
		return err
	}
	return nil
}

// WithRetry runs fn, retrying transient failures with exponential backoff.
// Exhausted retries surface as a store-unavailable error wrapping the cause.
func (b *BadgerDB) WithRetry(ctx context.Context, op string, fn func() error) error {
	backoff := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt <= storeRetryAttempts; attempt++ {
		if attempt > 0 {
			b.logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Err(err).
				Msg("Retrying storage operation after transient failure")
			select {
			case <-ctx.Done():
				kind, _ := models.KindOf(ctx.Err())
				return models.WrapKind(kind, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !isTransientStoreError(err) {
			return err
		}
	}

	return models.WrapKind(models.ErrStoreUnavailable, fmt.Errorf("%s: %w", op, err))
}

// isTransientStoreError reports whether an error is worth retrying.
// Write conflicts between concurrent transactions are transient; everything
// else (missing keys, closed DB, checksum failures) is not.
func isTransientStoreError(err error) bool {
	return errors.Is(err, badgerdb.ErrConflict)
}
