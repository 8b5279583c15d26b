package widget

import "errors"

var (
	// ErrMissingChatbotID indicates the embed or session configuration omitted the chatbot id.
	ErrMissingChatbotID = errors.New("widget: missing chatbot id")
	// ErrMissingLocalStore indicates a session was constructed without local storage.
	ErrMissingLocalStore = errors.New("widget: missing local store")
	// ErrEmptyMessage indicates the visitor tried to send only whitespace.
	ErrEmptyMessage = errors.New("widget: empty message")
	// ErrChatbotUnavailable indicates no chatbot configuration was loaded for the session.
	ErrChatbotUnavailable = errors.New("widget: chatbot configuration unavailable")
	// ErrSendInFlight indicates a previous send has not completed yet.
	ErrSendInFlight = errors.New("widget: send already in flight")
	// ErrWelcomePopupActive indicates the modal welcome popup has not been dismissed.
	ErrWelcomePopupActive = errors.New("widget: welcome popup active")
	// ErrSessionClosed indicates the session was torn down.
	ErrSessionClosed = errors.New("widget: session closed")
	// ErrUnknownTab indicates an unsupported tab name.
	ErrUnknownTab = errors.New("widget: unknown tab")
	// ErrEmptyTaskText indicates a task without text.
	ErrEmptyTaskText = errors.New("widget: empty task text")
	// ErrTaskIndexOutOfRange indicates a task position outside the list.
	ErrTaskIndexOutOfRange = errors.New("widget: task index out of range")
	// ErrConversationIndexOutOfRange indicates a history position outside the summaries.
	ErrConversationIndexOutOfRange = errors.New("widget: conversation index out of range")
)
