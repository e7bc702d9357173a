package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/internal/securestore"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
)

const snapshotVersion = 1

type recordSnapshot struct {
	Version   int                     `json:"version"`
	Documents []models.DocumentRecord `json:"documents"`
}

// RecordStore is an arena of records in insertion order plus a hash index.
// Inserts are serialized by writeMu and persisted before they become
// visible; readers only ever wait for the in-memory swap.
//
// A snapshot file may be shared between processes. Inserts hold an exclusive
// lock on path+".lock" and reload the snapshot before the uniqueness check,
// so a record written by another process is never overwritten.
type RecordStore struct {
	writeMu sync.Mutex
	seen    fileStamp // guarded by writeMu

	mu      sync.RWMutex
	records []models.DocumentRecord
	index   map[common.Hash]uint64

	path   string
	secret string
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func NewRecordStore() *RecordStore {
	return &RecordStore{index: make(map[common.Hash]uint64)}
}

func NewPersistentRecordStore(path string) (*RecordStore, error) {
	return NewEncryptedPersistentRecordStore(path, "")
}

func NewEncryptedPersistentRecordStore(path, passphrase string) (*RecordStore, error) {
	s := &RecordStore{
		index:  make(map[common.Hash]uint64),
		path:   path,
		secret: passphrase,
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Insert appends records atomically. Any hash already present, or repeated
// within records, rejects the whole call.
func (s *RecordStore) Insert(_ context.Context, records []models.DocumentRecord) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.path != "" {
		unlock, err := s.lockFile()
		if err != nil {
			return 0, err
		}
		defer unlock()
		if err := s.refreshLocked(); err != nil {
			return 0, err
		}
	}

	s.mu.RLock()
	current := s.records
	first := uint64(len(current))
	for i, rec := range records {
		if _, exists := s.index[rec.Hash]; exists {
			s.mu.RUnlock()
			return 0, &registry.DocumentAlreadyExistsError{Hash: rec.Hash}
		}
		for _, prev := range records[:i] {
			if prev.Hash == rec.Hash {
				s.mu.RUnlock()
				return 0, &registry.DocumentAlreadyExistsError{Hash: rec.Hash}
			}
		}
	}
	s.mu.RUnlock()

	next := make([]models.DocumentRecord, len(current), len(current)+len(records))
	copy(next, current)
	for _, rec := range records {
		next = append(next, rec.Clone())
	}
	if err := s.persistSnapshot(next); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.records = next
	for i := range records {
		s.index[next[first+uint64(i)].Hash] = first + uint64(i)
	}
	s.mu.Unlock()
	return first, nil
}

func (s *RecordStore) Has(_ context.Context, hash common.Hash) (bool, error) {
	if err := s.refreshForRead(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[hash]
	return ok, nil
}

func (s *RecordStore) Get(_ context.Context, hash common.Hash) (models.DocumentRecord, bool, error) {
	if err := s.refreshForRead(); err != nil {
		return models.DocumentRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[hash]
	if !ok {
		return models.DocumentRecord{}, false, nil
	}
	return s.records[pos].Clone(), true, nil
}

func (s *RecordStore) Count(_ context.Context) (uint64, error) {
	if err := s.refreshForRead(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

func (s *RecordStore) HashAt(_ context.Context, index uint64) (common.Hash, bool, error) {
	if err := s.refreshForRead(); err != nil {
		return common.Hash{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index >= uint64(len(s.records)) {
		return common.Hash{}, false, nil
	}
	return s.records[index].Hash, true, nil
}

func (s *RecordStore) Close() error {
	return nil
}

// lockFile takes the cross-process write lock for the snapshot.
func (s *RecordStore) lockFile() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock registry snapshot: %w", err)
	}
	return func() { _ = lock.Unlock() }, nil
}

// refreshForRead picks up records committed by another process. It is
// skipped while a local insert is in flight so reads never wait on a write.
func (s *RecordStore) refreshForRead() error {
	if s.path == "" || !s.writeMu.TryLock() {
		return nil
	}
	defer s.writeMu.Unlock()
	return s.refreshLocked()
}

// refreshLocked reloads the snapshot when the file changed since it was last
// seen. The caller holds writeMu.
func (s *RecordStore) refreshLocked() error {
	if s.path == "" {
		return nil
	}
	stamp, err := statSnapshot(s.path)
	if err != nil {
		return err
	}
	if stamp == s.seen {
		return nil
	}
	if err := s.load(); err != nil {
		return err
	}
	s.seen = stamp
	return nil
}

func statSnapshot(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

func (s *RecordStore) load() error {
	data, err := securestore.ReadFile(s.path, s.secret)
	if err != nil {
		return err
	}
	var snapshot recordSnapshot
	if len(data) > 0 {
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("decode registry snapshot: %w", err)
		}
		if snapshot.Version != snapshotVersion {
			return fmt.Errorf("%w: snapshot version %d", ErrCorruptSnapshot, snapshot.Version)
		}
	}
	index := make(map[common.Hash]uint64, len(snapshot.Documents))
	for i, rec := range snapshot.Documents {
		if _, dup := index[rec.Hash]; dup {
			return fmt.Errorf("%w: duplicate hash %s at position %d", ErrCorruptSnapshot, rec.Hash.Hex(), i)
		}
		index[rec.Hash] = uint64(i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snapshot.Documents
	s.index = index
	return nil
}

func (s *RecordStore) persistSnapshot(records []models.DocumentRecord) error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(recordSnapshot{Version: snapshotVersion, Documents: records})
	if err != nil {
		return err
	}
	if err := securestore.WriteFile(s.path, s.secret, data); err != nil {
		return err
	}
	stamp, err := statSnapshot(s.path)
	if err != nil {
		return err
	}
	s.seen = stamp
	return nil
}
