package state

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCheckpoint = []byte("checkpoint")
	keyCheckpoint    = []byte("session")
)

// Store persists checkpoints.
type Store interface {
	Save(cp *Checkpoint) error
	Load() (*Checkpoint, error)
	Close() error
}

// OpenStore picks a store by file extension: .json and .json.gz use a
// FileStore, anything else a BoltStore.
func OpenStore(path string) (Store, error) {
	switch {
	case strings.HasSuffix(path, ".json.gz"):
		return NewFileStore(strings.TrimSuffix(path, ".gz"), true), nil
	case strings.HasSuffix(path, ".json"):
		return NewFileStore(path, false), nil
	default:
		return NewBoltStore(path)
	}
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) a BoltDB checkpoint file.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoint)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Save saves the checkpoint.
func (s *BoltStore) Save(cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoint)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put(keyCheckpoint, data)
	})
}

// Load returns the stored checkpoint, or nil when none was saved.
func (s *BoltStore) Load() (*Checkpoint, error) {
	var cp Checkpoint
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoint)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get(keyCheckpoint)
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}
	return &cp, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// FileStore implements Store using JSON files.
type FileStore struct {
	path       string
	compressed bool
}

// NewFileStore creates a new file-based checkpoint store. With compressed
// set the data lives at path + ".gz".
func NewFileStore(path string, compressed bool) *FileStore {
	return &FileStore{path: path, compressed: compressed}
}

// Save writes the checkpoint to disk.
func (s *FileStore) Save(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if s.compressed {
		return s.saveCompressed(data)
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *FileStore) saveCompressed(data []byte) error {
	file, err := os.Create(s.path + ".gz")
	if err != nil {
		return err
	}
	defer file.Close()

	gw := gzip.NewWriter(file)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// Load reads the checkpoint, or returns nil when the file does not exist.
func (s *FileStore) Load() (*Checkpoint, error) {
	var data []byte
	var err error

	if s.compressed {
		data, err = s.loadCompressed()
	} else {
		data, err = os.ReadFile(s.path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *FileStore) loadCompressed() ([]byte, error) {
	file, err := os.Open(s.path + ".gz")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

// MemoryStore keeps the last checkpoint in memory.
type MemoryStore struct {
	cp *Checkpoint
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(cp *Checkpoint) error {
	s.cp = cp
	return nil
}

func (s *MemoryStore) Load() (*Checkpoint, error) {
	return s.cp, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
