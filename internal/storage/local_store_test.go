package storage_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/testutil"
)

const (
	testNamespaceFirst    = "visitor-a"
	testNamespaceSecond   = "visitor-b"
	testStorageKey        = "chatbot_deviceId"
	testStorageValue      = "device_1700000000000_abcdefghi"
	testReplacementValue  = "device_1700000000001_jklmnopqr"
	redisAddressVariable  = "TEST_REDIS_ADDR"
	testRedisKeyPrefix    = "chatbotwidget:test:"
	testPebbleDirectory   = "/widget-profile"
	testMissingKeyForRead = "chatbot_welcome_bot-1"
)

func exerciseBackend(testingT *testing.T, backend storage.Backend) {
	testingT.Helper()

	_, namespaceErr := backend.Namespace("   ")
	require.ErrorIs(testingT, namespaceErr, storage.ErrMissingNamespace)

	firstStore, firstErr := backend.Namespace(testNamespaceFirst)
	require.NoError(testingT, firstErr)
	secondStore, secondErr := backend.Namespace(testNamespaceSecond)
	require.NoError(testingT, secondErr)

	_, found, readErr := firstStore.GetItem(testMissingKeyForRead)
	require.NoError(testingT, readErr)
	require.False(testingT, found)

	require.NoError(testingT, firstStore.SetItem(testStorageKey, testStorageValue))
	value, found, readErr := firstStore.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.True(testingT, found)
	require.Equal(testingT, testStorageValue, value)

	require.NoError(testingT, firstStore.SetItem(testStorageKey, testReplacementValue))
	value, _, readErr = firstStore.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.Equal(testingT, testReplacementValue, value)

	_, found, readErr = secondStore.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.False(testingT, found)

	reopenedStore, reopenErr := backend.Namespace(testNamespaceFirst)
	require.NoError(testingT, reopenErr)
	value, found, readErr = reopenedStore.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.True(testingT, found)
	require.Equal(testingT, testReplacementValue, value)

	require.ErrorIs(testingT, firstStore.SetItem("", testStorageValue), storage.ErrMissingStorageKey)

	longestNamespace := strings.Repeat("n", model.MaxStorageNamespaceLength)
	longestStore, longestErr := backend.Namespace(longestNamespace)
	require.NoError(testingT, longestErr)
	require.NoError(testingT, longestStore.SetItem(testStorageKey, testStorageValue))
	value, found, readErr = longestStore.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.True(testingT, found)
	require.Equal(testingT, testStorageValue, value)

	_, tooLongErr := backend.Namespace(longestNamespace + "n")
	require.ErrorIs(testingT, tooLongErr, storage.ErrNamespaceTooLong)
}

func TestMemoryBackend(testingT *testing.T) {
	exerciseBackend(testingT, storage.NewMemoryBackend())
}

func TestDatabaseBackend(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)
	backend, openErr := storage.OpenBackend(context.Background(), storage.BackendConfig{
		Driver: storage.DriverNameSQLite,
		DSN:    sqliteDatabase.DataSourceName(),
	})
	require.NoError(testingT, openErr)
	testingT.Cleanup(func() {
		require.NoError(testingT, backend.Close())
	})
	exerciseBackend(testingT, backend)
}

func TestPebbleBackendPersistsAcrossReopen(testingT *testing.T) {
	fileSystem := vfs.NewMem()
	backend, openErr := storage.OpenPebbleBackend(testPebbleDirectory, fileSystem)
	require.NoError(testingT, openErr)
	exerciseBackend(testingT, backend)
	require.NoError(testingT, backend.Close())

	reopenedBackend, reopenErr := storage.OpenPebbleBackend(testPebbleDirectory, fileSystem)
	require.NoError(testingT, reopenErr)
	defer reopenedBackend.Close()
	store, namespaceErr := reopenedBackend.Namespace(testNamespaceFirst)
	require.NoError(testingT, namespaceErr)
	value, found, readErr := store.GetItem(testStorageKey)
	require.NoError(testingT, readErr)
	require.True(testingT, found)
	require.Equal(testingT, testReplacementValue, value)
}

func TestRedisBackend(testingT *testing.T) {
	redisAddress := os.Getenv(redisAddressVariable)
	if redisAddress == "" {
		testingT.Skipf("%s not set", redisAddressVariable)
	}
	backend, openErr := storage.OpenRedisBackend(context.Background(), storage.RedisConfig{
		URL:       "redis://" + redisAddress + "/0",
		KeyPrefix: testRedisKeyPrefix + storage.NewID() + ":",
	})
	require.NoError(testingT, openErr)
	defer backend.Close()
	exerciseBackend(testingT, backend)
}

func TestOpenBackendValidatesConfiguration(testingT *testing.T) {
	_, unsupportedErr := storage.OpenBackend(context.Background(), storage.BackendConfig{Driver: "mongodb", DSN: "mongodb://localhost"})
	require.ErrorIs(testingT, unsupportedErr, storage.ErrUnsupportedBackend)

	_, missingDSNErr := storage.OpenBackend(context.Background(), storage.BackendConfig{Driver: storage.DriverNameSQLite})
	require.ErrorIs(testingT, missingDSNErr, storage.ErrMissingDataSourceName)

	_, redisErr := storage.OpenBackend(context.Background(), storage.BackendConfig{Driver: storage.BackendNameRedis, DSN: "://bad"})
	require.Error(testingT, redisErr)

	memoryBackend, memoryErr := storage.OpenBackend(context.Background(), storage.BackendConfig{Driver: " Memory "})
	require.NoError(testingT, memoryErr)
	require.IsType(testingT, &storage.MemoryBackend{}, memoryBackend)
}
