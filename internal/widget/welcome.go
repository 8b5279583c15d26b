package widget

import "fmt"

const (
	storageKeyWelcomePopupPattern   = "chatbot_welcome_%s"
	storageKeyWelcomeMessagePattern = "chatbot_welcome_message_%s_%s"
	storageFlagSet                  = "true"
)

// WelcomePopupStorageKey is the popup-gate flag key, scoped to a chatbot.
func WelcomePopupStorageKey(chatbotID string) string {
	return fmt.Sprintf(storageKeyWelcomePopupPattern, chatbotID)
}

// WelcomeMessageStorageKey is the greeting-gate flag key, scoped to a chatbot and a device.
func WelcomeMessageStorageKey(chatbotID string, deviceID string) string {
	return fmt.Sprintf(storageKeyWelcomeMessagePattern, chatbotID, deviceID)
}

// WelcomeGate holds the two independent one-shot onboarding flags. Once set they are never
// cleared by the widget.
type WelcomeGate struct {
	store     LocalStore
	chatbotID string
	deviceID  string
}

// NewWelcomeGate constructs the gate for a chatbot on a device.
func NewWelcomeGate(store LocalStore, chatbotID string, deviceID string) *WelcomeGate {
	return &WelcomeGate{store: store, chatbotID: chatbotID, deviceID: deviceID}
}

// PopupSeen reports whether the onboarding popup was dismissed for this chatbot.
func (gate *WelcomeGate) PopupSeen() (bool, error) {
	return gate.flagSet(WelcomePopupStorageKey(gate.chatbotID))
}

// MarkPopupSeen persists the popup-gate flag.
func (gate *WelcomeGate) MarkPopupSeen() error {
	return gate.setFlag(WelcomePopupStorageKey(gate.chatbotID))
}

// Greeted reports whether the greeting bubble was injected for this chatbot and device.
func (gate *WelcomeGate) Greeted() (bool, error) {
	return gate.flagSet(WelcomeMessageStorageKey(gate.chatbotID, gate.deviceID))
}

// MarkGreeted persists the greeting-gate flag.
func (gate *WelcomeGate) MarkGreeted() error {
	return gate.setFlag(WelcomeMessageStorageKey(gate.chatbotID, gate.deviceID))
}

func (gate *WelcomeGate) flagSet(storageKey string) (bool, error) {
	storedValue, found, readErr := gate.store.GetItem(storageKey)
	if readErr != nil {
		return false, fmt.Errorf("widget: read %s: %w", storageKey, readErr)
	}
	return found && storedValue != "", nil
}

func (gate *WelcomeGate) setFlag(storageKey string) error {
	if writeErr := gate.store.SetItem(storageKey, storageFlagSet); writeErr != nil {
		return fmt.Errorf("widget: write %s: %w", storageKey, writeErr)
	}
	return nil
}
