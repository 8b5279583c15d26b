package widget

import (
	"strings"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// DefaultAPIBaseURL is the production chatbot backend used when an embed omits apiUrl.
const DefaultAPIBaseURL = "https://chatbot-xi-six-89.vercel.app/api"

// EmbedConfig is the script-tag configuration a host page supplies.
type EmbedConfig struct {
	ChatbotID string `json:"chatbotId"`
	Position  string `json:"position"`
	APIURL    string `json:"apiUrl"`
}

// Resolve validates the configuration and fills defaults. A missing chatbot id is fatal to
// widget construction.
func (config EmbedConfig) Resolve() (EmbedConfig, error) {
	chatbotID := strings.TrimSpace(config.ChatbotID)
	if chatbotID == "" {
		return EmbedConfig{}, ErrMissingChatbotID
	}
	apiURL := strings.TrimRight(strings.TrimSpace(config.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIBaseURL
	}
	return EmbedConfig{
		ChatbotID: chatbotID,
		Position:  model.NormalizeWidgetPosition(config.Position),
		APIURL:    apiURL,
	}, nil
}
