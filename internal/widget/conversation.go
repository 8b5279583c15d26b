package widget

import "github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"

// ConversationStore is the append-only, chronologically ordered message thread of one widget
// instance. It is not safe for concurrent use; Session serializes access.
type ConversationStore struct {
	messages []model.Message
}

// NewConversationStore constructs an empty thread.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Append adds a message to the tail.
func (conversation *ConversationStore) Append(message model.Message) {
	conversation.messages = append(conversation.messages, message)
}

// Messages returns a copy of the thread in insertion order.
func (conversation *ConversationStore) Messages() []model.Message {
	messages := make([]model.Message, len(conversation.messages))
	copy(messages, conversation.messages)
	return messages
}

// Len reports the number of messages.
func (conversation *ConversationStore) Len() int {
	return len(conversation.messages)
}

// Last returns the most recent message.
func (conversation *ConversationStore) Last() (model.Message, bool) {
	if len(conversation.messages) == 0 {
		return model.Message{}, false
	}
	return conversation.messages[len(conversation.messages)-1], true
}
