package model

import "time"

// MaxStorageNamespaceLength bounds a storage namespace; it matches the Namespace column size.
const MaxStorageNamespaceLength = 128

// StorageEntry persists one visitor-local storage item inside a namespace.
type StorageEntry struct {
	Namespace string    `gorm:"primaryKey;size:128"`
	ItemKey   string    `gorm:"primaryKey;size:255"`
	ItemValue string    `gorm:"not null;size:2000"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name stable across model renames.
func (StorageEntry) TableName() string { return "widget_storage_entries" }
