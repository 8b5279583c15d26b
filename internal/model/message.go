package model

import "time"

// MessageType tells who authored a message.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// Message is one entry of a widget conversation.
type Message struct {
	Type      MessageType `json:"type"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
	IsError   bool        `json:"isError,omitempty"`
}

// OutgoingMessage is the body posted to the chatbot API for every visitor message.
type OutgoingMessage struct {
	ChatbotID string      `json:"chatbotId"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	DeviceID  string      `json:"deviceId"`
}

// TaskItem is an entry of the widget-local to-do list.
type TaskItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}
