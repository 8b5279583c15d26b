package widget

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	// StorageKeyDeviceID holds the anonymous device identifier.
	StorageKeyDeviceID = "chatbot_deviceId"
	// StorageKeyUserName holds the generated display name.
	StorageKeyUserName = "chatbot_userName"

	deviceIDPrefix           = "device_"
	deviceIDSuffixLength     = 9
	deviceIDAlphabet         = "0123456789abcdefghijklmnopqrstuvwxyz"
	userNamePrefix           = "User "
	userNameNumberUpperBound = 1000
)

// DeviceIdentityStore creates and persists the device identifier and display name.
type DeviceIdentityStore struct {
	store      LocalStore
	now        func() time.Time
	randomIntN func(int) int
}

// NewDeviceIdentityStore constructs an identity store backed by local storage.
func NewDeviceIdentityStore(store LocalStore) *DeviceIdentityStore {
	return &DeviceIdentityStore{
		store:      store,
		now:        time.Now,
		randomIntN: rand.IntN,
	}
}

// GetOrCreateDeviceID returns the persisted device id, generating
// device_<epochMillis>_<9 base36 chars> on first use.
func (identity *DeviceIdentityStore) GetOrCreateDeviceID() (string, error) {
	return identity.getOrCreate(StorageKeyDeviceID, identity.generateDeviceID)
}

// GetOrCreateUserName returns the persisted display name, generating "User <0-999>" on first use.
func (identity *DeviceIdentityStore) GetOrCreateUserName() (string, error) {
	return identity.getOrCreate(StorageKeyUserName, identity.generateUserName)
}

func (identity *DeviceIdentityStore) getOrCreate(storageKey string, generate func() string) (string, error) {
	storedValue, found, readErr := identity.store.GetItem(storageKey)
	if readErr != nil {
		return "", fmt.Errorf("widget: read %s: %w", storageKey, readErr)
	}
	if found && storedValue != "" {
		return storedValue, nil
	}
	generatedValue := generate()
	if writeErr := identity.store.SetItem(storageKey, generatedValue); writeErr != nil {
		return "", fmt.Errorf("widget: write %s: %w", storageKey, writeErr)
	}
	return generatedValue, nil
}

func (identity *DeviceIdentityStore) generateDeviceID() string {
	var suffixBuilder strings.Builder
	for index := 0; index < deviceIDSuffixLength; index++ {
		suffixBuilder.WriteByte(deviceIDAlphabet[identity.randomIntN(len(deviceIDAlphabet))])
	}
	return deviceIDPrefix + strconv.FormatInt(identity.now().UnixMilli(), 10) + "_" + suffixBuilder.String()
}

func (identity *DeviceIdentityStore) generateUserName() string {
	return userNamePrefix + strconv.Itoa(identity.randomIntN(userNameNumberUpperBound))
}

// AvatarInitial is the upper-cased first character of a display name.
func AvatarInitial(userName string) string {
	for _, character := range strings.TrimSpace(userName) {
		return strings.ToUpper(string(character))
	}
	return ""
}
