package history

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"

	"github.com/flowforge/flowforge/internal/domain"
)

const keyPrefix = "execution:"

// Store persists execution records in an embedded badger database. Records
// are keyed by execution id; saving an existing id overwrites the previous
// record.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates the store under dataDir. Badger's own logging is silenced;
// operational events go through the configured slog logger instead.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(filepath.Join(dataDir, "history")).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to open history store",
			Details: map[string]interface{}{"dir": dataDir, "error": err.Error()},
		}
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "history"),
	}, nil
}

func (s *Store) SaveExecution(execution *domain.PipelineExecution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+execution.ID), payload)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("execution persisted",
		"execution_id", execution.ID,
		"status", string(execution.Status))
	return nil
}

func (s *Store) GetExecution(executionID string) (*domain.PipelineExecution, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + executionID))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.NewNotFoundError("execution", executionID)
	}
	if err != nil {
		return nil, err
	}

	var execution domain.PipelineExecution
	if err := json.Unmarshal(payload, &execution); err != nil {
		return nil, err
	}
	return &execution, nil
}

// ListExecutions returns up to limit stored records, most recently started
// first. limit <= 0 means no limit.
func (s *Store) ListExecutions(limit int) ([]*domain.PipelineExecution, error) {
	var executions []*domain.PipelineExecution
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			payload, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var execution domain.PipelineExecution
			if err := json.Unmarshal(payload, &execution); err != nil {
				s.logger.Warn("skipping unreadable execution record",
					"key", string(it.Item().Key()),
					"error", err.Error())
				continue
			}
			executions = append(executions, &execution)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})
	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}
	return executions, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
