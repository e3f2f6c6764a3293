// Package tracestore persists exported trace bundles in LevelDB so a caller
// can re-run a dispute from any previously captured step without keeping the
// engine alive.
package tracestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/steptrace/steptrace/emulator"
	"github.com/steptrace/steptrace/log"
)

var (
	tracePrefix = []byte("trace|")
	rootPrefix  = []byte("root|")
)

// Store wraps LevelDB for trace bundle persistence. Thread-safe: LevelDB
// handles its own synchronization.
type Store struct {
	db *leveldb.DB
}

// NewStore opens or creates a LevelDB database at the given path. If path is
// empty, uses in-memory storage.
func NewStore(path string) (*Store, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		memStorage := leveldbstorage.NewMemStorage()
		db, err = leveldb.Open(memStorage, nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open trace store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewMemoryStore creates an in-memory Store for testing.
func NewMemoryStore() (*Store, error) {
	return NewStore("")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func traceKey(step uint64) []byte {
	key := make([]byte, len(tracePrefix)+8)
	copy(key, tracePrefix)
	binary.BigEndian.PutUint64(key[len(tracePrefix):], step)
	return key
}

func rootKey(root common.Hash) []byte {
	return append(append([]byte{}, rootPrefix...), root.Bytes()...)
}

// Put stores the bundle under its step index and indexes the before/after
// state roots back to that step.
func (s *Store) Put(change *emulator.StateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal trace step %d: %w", change.Step, err)
	}
	if err := s.db.Put(traceKey(change.Step), data, nil); err != nil {
		return fmt.Errorf("store trace step %d: %w", change.Step, err)
	}

	var stepBytes [8]byte
	binary.BigEndian.PutUint64(stepBytes[:], change.Step)
	for _, state := range []*emulator.EmulatorState{change.StateBefore, change.StateAfter} {
		if state == nil {
			continue
		}
		if err := s.db.Put(rootKey(state.StateRoot()), stepBytes[:], nil); err != nil {
			return fmt.Errorf("index root for step %d: %w", change.Step, err)
		}
	}
	log.Debug(log.StoreMonitoring, "stored trace", "step", change.Step, "bytes", len(data))
	return nil
}

// GetByStep retrieves the bundle captured at the given step. Returns
// (nil, false, nil) if not found.
func (s *Store) GetByStep(step uint64) (*emulator.StateChange, bool, error) {
	data, err := s.db.Get(traceKey(step), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get trace step %d: %w", step, err)
	}
	var change emulator.StateChange
	if err := json.Unmarshal(data, &change); err != nil {
		return nil, false, fmt.Errorf("decode trace step %d: %w", step, err)
	}
	return &change, true, nil
}

// StepByRoot resolves a state root to the step whose bundle carries it.
func (s *Store) StepByRoot(root common.Hash) (uint64, bool, error) {
	data, err := s.db.Get(rootKey(root), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get root %s: %w", root.Hex(), err)
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// Steps lists all stored step indices in ascending order.
func (s *Store) Steps() ([]uint64, error) {
	iter := s.db.NewIterator(util.BytesPrefix(tracePrefix), nil)
	defer iter.Release()

	var steps []uint64
	for iter.Next() {
		key := iter.Key()
		steps = append(steps, binary.BigEndian.Uint64(key[len(tracePrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}
	return steps, nil
}
