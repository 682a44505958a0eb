package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
)

// schemaVersionKey stores the current schema version as a raw badger key
const schemaVersionKey = "schema:version"

// schemaVersion is bumped when stored record shapes change
const schemaVersion = "1"

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	page      interfaces.PageStorage
	bit       interfaces.BitStorage
	crossRef  interfaces.CrossRefStorage
	rule      interfaces.RuleStorage
	job       interfaces.JobStorage
	searchLog interfaces.SearchLogStorage
	threshold interfaces.ThresholdStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager and runs migration
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		page:      NewPageStorage(db, logger),
		bit:       NewBitStorage(db, logger),
		crossRef:  NewCrossRefStorage(db, logger),
		rule:      NewRuleStorage(db, logger),
		job:       NewJobStorage(db, logger),
		searchLog: NewSearchLogStorage(db, logger),
		threshold: NewThresholdStorage(db, logger),
		logger:    logger,
	}

	if err := manager.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Migrate prepares the store for this schema version. Safe to run on every
// startup: existing data is left alone and re-running changes nothing.
func (m *Manager) Migrate(ctx context.Context) error {
	var existing string
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		})
	})
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existing == schemaVersion {
		return nil
	}

	if err := m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(schemaVersionKey), []byte(schemaVersion))
	}); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	m.logger.Info().
		Str("from", existing).
		Str("to", schemaVersion).
		Msg("Schema migrated")

	return nil
}

// PageStorage returns the Page storage interface
func (m *Manager) PageStorage() interfaces.PageStorage {
	return m.page
}

// BitStorage returns the LearningBit storage interface
func (m *Manager) BitStorage() interfaces.BitStorage {
	return m.bit
}

// CrossRefStorage returns the CrossReference storage interface
func (m *Manager) CrossRefStorage() interfaces.CrossRefStorage {
	return m.crossRef
}

// RuleStorage returns the CategorizationRule storage interface
func (m *Manager) RuleStorage() interfaces.RuleStorage {
	return m.rule
}

// JobStorage returns the CrawlJob storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// SearchLogStorage returns the SearchRecord storage interface
func (m *Manager) SearchLogStorage() interfaces.SearchLogStorage {
	return m.searchLog
}

// ThresholdStorage returns the AdaptiveThresholds storage interface
func (m *Manager) ThresholdStorage() interfaces.ThresholdStorage {
	return m.threshold
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// RunGC triggers badger value log garbage collection
func (m *Manager) RunGC() error {
	if m.db != nil {
		return m.db.RunGC()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
