package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const pebbleKeySeparator = "\x00"

// PebbleBackend keeps widget storage in an embedded pebble database. Keys are
// "<namespace>\x00<item key>".
type PebbleBackend struct {
	database *pebble.DB
}

// OpenPebbleBackend opens or creates a pebble database at directory on fileSystem.
func OpenPebbleBackend(directory string, fileSystem vfs.FS) (*PebbleBackend, error) {
	trimmedDirectory := strings.TrimSpace(directory)
	if trimmedDirectory == "" {
		return nil, ErrMissingDataSourceName
	}
	if fileSystem == vfs.Default {
		if mkdirErr := os.MkdirAll(filepath.Dir(trimmedDirectory), 0o700); mkdirErr != nil {
			return nil, fmt.Errorf("storage: prepare pebble directory: %w", mkdirErr)
		}
	}
	database, openErr := pebble.Open(trimmedDirectory, &pebble.Options{FS: fileSystem})
	if openErr != nil {
		return nil, fmt.Errorf("storage: open pebble database: %w", openErr)
	}
	return &PebbleBackend{database: database}, nil
}

func (backend *PebbleBackend) Namespace(namespace string) (NamespaceStore, error) {
	trimmedNamespace, namespaceErr := validateNamespace(namespace)
	if namespaceErr != nil {
		return nil, namespaceErr
	}
	return &pebbleLocalStore{database: backend.database, keyPrefix: trimmedNamespace + pebbleKeySeparator}, nil
}

func (backend *PebbleBackend) Close() error {
	if backend == nil || backend.database == nil {
		return nil
	}
	return backend.database.Close()
}

type pebbleLocalStore struct {
	database  *pebble.DB
	keyPrefix string
}

func (store *pebbleLocalStore) GetItem(key string) (string, bool, error) {
	if keyErr := validateKey(key); keyErr != nil {
		return "", false, keyErr
	}
	value, closer, getErr := store.database.Get([]byte(store.keyPrefix + key))
	if errors.Is(getErr, pebble.ErrNotFound) {
		return "", false, nil
	}
	if getErr != nil {
		return "", false, fmt.Errorf("storage: read %s: %w", key, getErr)
	}
	defer closer.Close()
	// value is only valid until closer runs
	return string(value), true, nil
}

func (store *pebbleLocalStore) SetItem(key string, value string) error {
	if keyErr := validateKey(key); keyErr != nil {
		return keyErr
	}
	if setErr := store.database.Set([]byte(store.keyPrefix+key), []byte(value), pebble.Sync); setErr != nil {
		return fmt.Errorf("storage: write %s: %w", key, setErr)
	}
	return nil
}
