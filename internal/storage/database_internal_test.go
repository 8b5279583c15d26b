package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOpenDatabaseFailureMessage = "open failure"

func TestOpenDatabaseWrapsOpenerError(testingT *testing.T) {
	originalOpeners := databaseOpeners
	testingT.Cleanup(func() {
		databaseOpeners = originalOpeners
	})

	databaseOpeners = map[string]databaseOpener{
		DriverNameSQLite: func(Config) (*gorm.DB, error) {
			return nil, errors.New(testOpenDatabaseFailureMessage)
		},
	}

	_, openErr := OpenDatabase(Config{DriverName: DriverNameSQLite, DataSourceName: "file:invalid"})
	require.ErrorContains(testingT, openErr, errorMessageOpenDatabase)
	require.ErrorContains(testingT, openErr, testOpenDatabaseFailureMessage)
}

func TestOpenDatabaseRejectsUnknownDrivers(testingT *testing.T) {
	_, missingErr := OpenDatabase(Config{})
	require.ErrorIs(testingT, missingErr, ErrMissingDatabaseDriverName)

	_, unsupportedErr := OpenDatabase(Config{DriverName: "oracle", DataSourceName: "dsn"})
	require.ErrorIs(testingT, unsupportedErr, ErrUnsupportedDatabaseDriver)

	_, postgresErr := OpenDatabase(Config{DriverName: DriverNamePostgres})
	require.ErrorIs(testingT, postgresErr, ErrMissingDataSourceName)
}

func TestOpenSQLiteDatabaseReportsOpenError(testingT *testing.T) {
	missingDirectory := filepath.Join(testingT.TempDir(), "missing")
	dataSourceName := fmt.Sprintf("file:%s?mode=rwc&_foreign_keys=on", filepath.Join(missingDirectory, "test.db"))

	_, openErr := openSQLiteDatabase(Config{DataSourceName: dataSourceName})
	require.ErrorContains(testingT, openErr, errorMessageOpenSQLiteDatabase)
}
