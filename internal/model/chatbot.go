package model

import "strings"

const (
	ChatbotThemeLight  = "light"
	ChatbotThemeDark   = "dark"
	ChatbotThemeCustom = "custom"

	WidgetPositionLeft  = "left"
	WidgetPositionRight = "right"

	DefaultChatbotName         = "Chatbot"
	DefaultChatbotPrimaryColor = "#3B82F6"
	DefaultChatbotIcon         = "💬"

	defaultPopupWelcomeText    = "We're here to help you!"
	defaultGreetingText        = "Hello! How can I help you today?"
	defaultReplyFallbackText   = "Thank you for your message! How can I help you?"
	defaultHomePreviewText     = "Welcome back! 🎉 How can I assist you today?"
	chatbotPrimaryColorPrefix  = "#"
	chatbotPrimaryColorHexSize = 7
)

// FAQ is a configured question/answer pair used for canned replies.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatbotPayload mirrors the loosely typed JSON document returned by the chatbot API.
type ChatbotPayload struct {
	ID              string `json:"id"`
	LegacyID        string `json:"_id"`
	Name            string `json:"name"`
	WelcomeMessage  string `json:"welcomeMessage"`
	PrimaryColor    string `json:"primaryColor"`
	Icon            string `json:"icon"`
	IconImage       string `json:"iconImage"`
	Theme           string `json:"theme"`
	Position        string `json:"position"`
	FAQs            []FAQ  `json:"faqs"`
	Personality     string `json:"personality"`
	KnowledgeSource string `json:"knowledgeSource"`
}

// ChatbotConfig is the resolved, read-only configuration a widget session works with.
// Every field carries its default already; renderers never re-default.
type ChatbotConfig struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	WelcomeMessage  string `json:"welcomeMessage"`
	PrimaryColor    string `json:"primaryColor"`
	Icon            string `json:"icon"`
	IconImage       string `json:"iconImage,omitempty"`
	Theme           string `json:"theme"`
	Position        string `json:"position"`
	FAQs            []FAQ  `json:"faqs"`
	Personality     string `json:"personality,omitempty"`
	KnowledgeSource string `json:"knowledgeSource,omitempty"`
}

// DefaultChatbotConfig returns the built-in configuration used when the API lookup fails.
func DefaultChatbotConfig(chatbotID string) ChatbotConfig {
	return ResolveChatbotConfig(ChatbotPayload{}, chatbotID)
}

// ResolveChatbotConfig applies per-field defaults to a payload. The requested id wins when the
// payload carries neither "id" nor "_id".
func ResolveChatbotConfig(payload ChatbotPayload, requestedChatbotID string) ChatbotConfig {
	resolvedID := strings.TrimSpace(payload.ID)
	if resolvedID == "" {
		resolvedID = strings.TrimSpace(payload.LegacyID)
	}
	if resolvedID == "" {
		resolvedID = strings.TrimSpace(requestedChatbotID)
	}

	faqs := make([]FAQ, 0, len(payload.FAQs))
	faqs = append(faqs, payload.FAQs...)

	return ChatbotConfig{
		ID:              resolvedID,
		Name:            valueOrDefault(payload.Name, DefaultChatbotName),
		WelcomeMessage:  payload.WelcomeMessage,
		PrimaryColor:    normalizePrimaryColor(payload.PrimaryColor),
		Icon:            valueOrDefault(payload.Icon, DefaultChatbotIcon),
		IconImage:       strings.TrimSpace(payload.IconImage),
		Theme:           normalizeTheme(payload.Theme),
		Position:        NormalizeWidgetPosition(payload.Position),
		FAQs:            faqs,
		Personality:     strings.TrimSpace(payload.Personality),
		KnowledgeSource: strings.TrimSpace(payload.KnowledgeSource),
	}
}

// PopupWelcomeText is the body of the one-time onboarding popup.
func (config ChatbotConfig) PopupWelcomeText() string {
	return valueOrDefault(config.WelcomeMessage, defaultPopupWelcomeText)
}

// GreetingText is the first bot bubble injected into an empty conversation.
func (config ChatbotConfig) GreetingText() string {
	return valueOrDefault(config.WelcomeMessage, defaultGreetingText)
}

// ReplyFallbackText is returned when no FAQ matches a visitor message.
func (config ChatbotConfig) ReplyFallbackText() string {
	return valueOrDefault(config.WelcomeMessage, defaultReplyFallbackText)
}

// HomePreviewFallbackText is shown on the home card before any message exists.
func HomePreviewFallbackText() string {
	return defaultHomePreviewText
}

// NormalizeWidgetPosition maps any value other than "left" to "right".
func NormalizeWidgetPosition(rawPosition string) string {
	if strings.EqualFold(strings.TrimSpace(rawPosition), WidgetPositionLeft) {
		return WidgetPositionLeft
	}
	return WidgetPositionRight
}

func normalizeTheme(rawTheme string) string {
	switch strings.ToLower(strings.TrimSpace(rawTheme)) {
	case ChatbotThemeDark:
		return ChatbotThemeDark
	case ChatbotThemeCustom:
		return ChatbotThemeCustom
	default:
		return ChatbotThemeLight
	}
}

func normalizePrimaryColor(rawColor string) string {
	trimmed := strings.TrimSpace(rawColor)
	if len(trimmed) != chatbotPrimaryColorHexSize || !strings.HasPrefix(trimmed, chatbotPrimaryColorPrefix) {
		return DefaultChatbotPrimaryColor
	}
	for _, character := range trimmed[1:] {
		isDigit := character >= '0' && character <= '9'
		isLowerHex := character >= 'a' && character <= 'f'
		isUpperHex := character >= 'A' && character <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return DefaultChatbotPrimaryColor
		}
	}
	return trimmed
}

func valueOrDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
