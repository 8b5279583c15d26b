package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKeyPrefix        = "chatbotwidget:storage:"
	defaultRedisOperationTimeout = 2 * time.Second
)

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	URL              string
	KeyPrefix        string
	OperationTimeout time.Duration
}

// RedisBackend keeps each namespace in one redis hash.
type RedisBackend struct {
	client           *redis.Client
	keyPrefix        string
	operationTimeout time.Duration
}

// OpenRedisBackend connects to redis and verifies the connection with PING.
func OpenRedisBackend(ctx context.Context, configuration RedisConfig) (*RedisBackend, error) {
	trimmedURL := strings.TrimSpace(configuration.URL)
	if trimmedURL == "" {
		return nil, ErrMissingDataSourceName
	}
	options, parseErr := redis.ParseURL(trimmedURL)
	if parseErr != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", parseErr)
	}
	backend := NewRedisBackend(redis.NewClient(options), configuration)
	pingContext, cancel := context.WithTimeout(ctx, backend.operationTimeout)
	defer cancel()
	if pingErr := backend.client.Ping(pingContext).Err(); pingErr != nil {
		_ = backend.client.Close()
		return nil, fmt.Errorf("storage: ping redis: %w", pingErr)
	}
	return backend, nil
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client, configuration RedisConfig) *RedisBackend {
	keyPrefix := configuration.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	operationTimeout := configuration.OperationTimeout
	if operationTimeout <= 0 {
		operationTimeout = defaultRedisOperationTimeout
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix, operationTimeout: operationTimeout}
}

func (backend *RedisBackend) Namespace(namespace string) (NamespaceStore, error) {
	trimmedNamespace, namespaceErr := validateNamespace(namespace)
	if namespaceErr != nil {
		return nil, namespaceErr
	}
	return &redisLocalStore{backend: backend, hashKey: backend.keyPrefix + trimmedNamespace}, nil
}

func (backend *RedisBackend) Close() error {
	return backend.client.Close()
}

type redisLocalStore struct {
	backend *RedisBackend
	hashKey string
}

func (store *redisLocalStore) GetItem(key string) (string, bool, error) {
	if keyErr := validateKey(key); keyErr != nil {
		return "", false, keyErr
	}
	operationContext, cancel := context.WithTimeout(context.Background(), store.backend.operationTimeout)
	defer cancel()
	value, getErr := store.backend.client.HGet(operationContext, store.hashKey, key).Result()
	if errors.Is(getErr, redis.Nil) {
		return "", false, nil
	}
	if getErr != nil {
		return "", false, fmt.Errorf("storage: read %s: %w", key, getErr)
	}
	return value, true, nil
}

func (store *redisLocalStore) SetItem(key string, value string) error {
	if keyErr := validateKey(key); keyErr != nil {
		return keyErr
	}
	operationContext, cancel := context.WithTimeout(context.Background(), store.backend.operationTimeout)
	defer cancel()
	if setErr := store.backend.client.HSet(operationContext, store.hashKey, key, value).Err(); setErr != nil {
		return fmt.Errorf("storage: write %s: %w", key, setErr)
	}
	return nil
}
