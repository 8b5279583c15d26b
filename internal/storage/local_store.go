package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// Backend names accepted by OpenBackend besides the SQL driver names.
const (
	// BackendNameMemory keeps widget storage in process memory.
	BackendNameMemory = "memory"
	// BackendNamePebble keeps widget storage in a pebble directory named by the DSN.
	BackendNamePebble = "pebble"
	// BackendNameRedis keeps widget storage in redis hashes; the DSN is a redis URL.
	BackendNameRedis = "redis"
)

var (
	// ErrMissingNamespace indicates a visitor-scoped store was requested without a namespace.
	ErrMissingNamespace = errors.New("storage: missing namespace")
	// ErrNamespaceTooLong indicates a namespace longer than model.MaxStorageNamespaceLength.
	ErrNamespaceTooLong = errors.New("storage: namespace too long")
	// ErrMissingStorageKey indicates an empty item key.
	ErrMissingStorageKey = errors.New("storage: missing storage key")
	// ErrUnsupportedBackend indicates an unknown storage backend name.
	ErrUnsupportedBackend = errors.New("storage: unsupported backend")
)

// NamespaceStore is a string-keyed store scoped to one visitor namespace, the server-side
// counterpart of browser local storage.
type NamespaceStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key string, value string) error
}

// Backend hands out namespace stores backed by one storage engine.
type Backend interface {
	Namespace(namespace string) (NamespaceStore, error)
	Close() error
}

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	Driver string
	DSN    string
}

// OpenBackend opens the configured backend. SQL drivers are migrated before use.
func OpenBackend(ctx context.Context, configuration BackendConfig) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(configuration.Driver))
	switch driver {
	case BackendNameMemory:
		return NewMemoryBackend(), nil
	case DriverNameSQLite, DriverNamePostgres:
		database, openErr := OpenDatabase(Config{DriverName: driver, DataSourceName: configuration.DSN})
		if openErr != nil {
			return nil, openErr
		}
		if migrateErr := AutoMigrate(database); migrateErr != nil {
			return nil, migrateErr
		}
		return NewDatabaseBackend(database), nil
	case BackendNamePebble:
		return OpenPebbleBackend(configuration.DSN, vfs.Default)
	case BackendNameRedis:
		return OpenRedisBackend(ctx, RedisConfig{URL: configuration.DSN})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, configuration.Driver)
	}
}

func validateNamespace(namespace string) (string, error) {
	trimmedNamespace := strings.TrimSpace(namespace)
	if trimmedNamespace == "" {
		return "", ErrMissingNamespace
	}
	if len(trimmedNamespace) > model.MaxStorageNamespaceLength {
		return "", fmt.Errorf("%w: %d bytes", ErrNamespaceTooLong, len(trimmedNamespace))
	}
	return trimmedNamespace, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrMissingStorageKey
	}
	return nil
}

// MemoryLocalStore is an in-process NamespaceStore.
type MemoryLocalStore struct {
	mutex sync.RWMutex
	items map[string]string
}

// NewMemoryLocalStore returns an empty store.
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{items: make(map[string]string)}
}

func (store *MemoryLocalStore) GetItem(key string) (string, bool, error) {
	if keyErr := validateKey(key); keyErr != nil {
		return "", false, keyErr
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	value, found := store.items[key]
	return value, found, nil
}

func (store *MemoryLocalStore) SetItem(key string, value string) error {
	if keyErr := validateKey(key); keyErr != nil {
		return keyErr
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.items[key] = value
	return nil
}

// MemoryBackend keeps one MemoryLocalStore per namespace. Contents are lost on restart.
type MemoryBackend struct {
	mutex  sync.Mutex
	stores map[string]*MemoryLocalStore
}

// NewMemoryBackend returns a backend whose namespaces live until the process exits.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]*MemoryLocalStore)}
}

func (backend *MemoryBackend) Namespace(namespace string) (NamespaceStore, error) {
	trimmedNamespace, namespaceErr := validateNamespace(namespace)
	if namespaceErr != nil {
		return nil, namespaceErr
	}
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	store, found := backend.stores[trimmedNamespace]
	if !found {
		store = NewMemoryLocalStore()
		backend.stores[trimmedNamespace] = store
	}
	return store, nil
}

func (backend *MemoryBackend) Close() error {
	return nil
}
