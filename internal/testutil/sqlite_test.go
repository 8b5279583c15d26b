package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/testutil"
)

func TestNewSQLiteTestDatabaseUsesSharedInMemoryDatabases(testingT *testing.T) {
	configuration := testutil.NewSQLiteTestDatabase(testingT).Configuration()
	require.Equal(testingT, storage.DriverNameSQLite, configuration.DriverName)

	for _, expectedParameter := range []string{"mode=memory", "cache=shared", "_foreign_keys=on"} {
		require.Contains(testingT, configuration.DataSourceName, expectedParameter)
	}

	require.NotEqual(testingT,
		testutil.NewSQLiteTestDatabase(testingT).DataSourceName(),
		testutil.NewSQLiteTestDatabase(testingT).DataSourceName(),
	)
}

func TestOpenMigratedCreatesStorageTable(testingT *testing.T) {
	database := testutil.NewSQLiteTestDatabase(testingT).OpenMigrated(testingT)
	require.True(testingT, database.Migrator().HasTable(&model.StorageEntry{}))
}
