package widget

import (
	"context"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// LocalStore is the visitor-scoped, string-keyed persistent storage the widget relies on.
// Implementations are expected to be always available; errors are reported, never retried.
type LocalStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key string, value string) error
}

// ChatbotAPI is the slice of the external chatbot REST API a widget session consumes.
type ChatbotAPI interface {
	FetchChatbot(ctx context.Context, chatbotID string) (model.ChatbotConfig, error)
	SendMessage(ctx context.Context, message model.OutgoingMessage) error
}

// VisitorFacingError is implemented by errors that carry text meant for the visitor.
type VisitorFacingError interface {
	error
	VisitorMessage() string
}
