package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	content  interfaces.ContentStorage
	progress interfaces.ProgressStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		content:  NewContentStorage(db, logger),
		progress: NewProgressStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// ContentStorage returns the content store interface
func (m *Manager) ContentStorage() interfaces.ContentStorage {
	return m.content
}

// ProgressStorage returns the progress store interface
func (m *Manager) ProgressStorage() interfaces.ProgressStorage {
	return m.progress
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
