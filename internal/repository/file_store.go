package repository

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"sync"
)

type fileBackend interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	Delete(filename string) error
	Path(filename string) string
}

// FileStore maps each key to one file on local disk. Writes go through an atomic
// rename, so a crash never leaves a half-written ledger snapshot behind. Counters are
// additionally guarded by an advisory file lock, so ledgerctl and the API server can
// share a data directory without handing out the same seat twice.
type FileStore struct {
	files fileBackend
	mu    sync.Mutex
}

// NewFileStore wraps a storage.LocalStorage (or anything with the same shape).
func NewFileStore(files fileBackend) *FileStore {
	return &FileStore{files: files}
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.files.Read(fileName(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, wrapKV("get", key, ErrKeyNotFound)
	}
	return data, wrapKV("get", key, err)
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.files.Save(fileName(key), value)
	return wrapKV("put", key, err)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return wrapKV("delete", key, s.files.Delete(fileName(key)))
}

// Increment serialises read-increment-write with a mutex inside the process and an
// exclusive lock on {counter}.lock across processes.
func (s *FileStore) Increment(ctx context.Context, key string, seed int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.files.Path(fileName(key) + ".lock"))
	if err != nil {
		return 0, wrapKV("increment", key, err)
	}
	defer unlock()

	current := seed
	raw, err := s.files.Read(fileName(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return 0, wrapKV("increment", key, err)
	default:
		n, perr := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if perr != nil {
			return 0, wrapKV("increment", key, ErrCorruptCounter)
		}
		current = n
	}
	current++
	if _, err := s.files.Save(fileName(key), []byte(strconv.FormatInt(current, 10))); err != nil {
		return 0, wrapKV("increment", key, err)
	}
	return current, nil
}

var fileNameReplacer = strings.NewReplacer(":", "/", "..", "_", "\\", "_")

func fileName(key string) string {
	return fileNameReplacer.Replace(key) + ".json"
}
