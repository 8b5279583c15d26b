package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// DatabaseBackend stores widget items in the widget_storage_entries table.
type DatabaseBackend struct {
	database *gorm.DB
}

// NewDatabaseBackend wraps a migrated database.
func NewDatabaseBackend(database *gorm.DB) *DatabaseBackend {
	return &DatabaseBackend{database: database}
}

func (backend *DatabaseBackend) Namespace(namespace string) (NamespaceStore, error) {
	return NewDatabaseLocalStore(backend.database, namespace)
}

func (backend *DatabaseBackend) Close() error {
	sqlDatabase, sqlErr := backend.database.DB()
	if sqlErr != nil {
		return sqlErr
	}
	return sqlDatabase.Close()
}

// DatabaseLocalStore is a NamespaceStore over one namespace of the storage table.
type DatabaseLocalStore struct {
	database  *gorm.DB
	namespace string
}

// NewDatabaseLocalStore scopes the widget storage table to one namespace.
func NewDatabaseLocalStore(database *gorm.DB, namespace string) (*DatabaseLocalStore, error) {
	trimmedNamespace, namespaceErr := validateNamespace(namespace)
	if namespaceErr != nil {
		return nil, namespaceErr
	}
	return &DatabaseLocalStore{database: database, namespace: trimmedNamespace}, nil
}

func (store *DatabaseLocalStore) GetItem(key string) (string, bool, error) {
	if keyErr := validateKey(key); keyErr != nil {
		return "", false, keyErr
	}
	var entry model.StorageEntry
	queryErr := store.database.
		Where("namespace = ? AND item_key = ?", store.namespace, key).
		Take(&entry).Error
	if errors.Is(queryErr, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if queryErr != nil {
		return "", false, fmt.Errorf("storage: read %s: %w", key, queryErr)
	}
	return entry.ItemValue, true, nil
}

func (store *DatabaseLocalStore) SetItem(key string, value string) error {
	if keyErr := validateKey(key); keyErr != nil {
		return keyErr
	}
	entry := model.StorageEntry{Namespace: store.namespace, ItemKey: key, ItemValue: value}
	upsertErr := store.database.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_value", "updated_at"}),
	}).Create(&entry).Error
	if upsertErr != nil {
		return fmt.Errorf("storage: write %s: %w", key, upsertErr)
	}
	return nil
}
