package widget

import (
	"strings"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// MessagePreview is the home-tab card summarizing the latest message.
type MessagePreview struct {
	Text     string `json:"text"`
	AgeLabel string `json:"ageLabel,omitempty"`
}

// HistorySummary is one row of the Messages list.
type HistorySummary struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	AgeLabel string `json:"ageLabel,omitempty"`
	Latest   bool   `json:"latest"`
}

// Snapshot is everything an adapter needs to render the widget.
type Snapshot struct {
	ChatbotID           string              `json:"chatbotId"`
	DeviceID            string              `json:"deviceId"`
	UserName            string              `json:"userName"`
	AvatarInitial       string              `json:"avatarInitial"`
	Greeting            string              `json:"greeting"`
	Chatbot             model.ChatbotConfig `json:"chatbot"`
	ConfigLoaded        bool                `json:"configLoaded"`
	WelcomePopupVisible bool                `json:"welcomePopupVisible"`
	PopupText           string              `json:"popupText"`
	ActiveTab           Tab                 `json:"activeTab"`
	MessagesView        MessagesView        `json:"messagesView"`
	Messages            []model.Message     `json:"messages"`
	MessageCount        int                 `json:"messageCount"`
	History             []HistorySummary    `json:"history"`
	HomePreview         MessagePreview      `json:"homePreview"`
	Sending             bool                `json:"sending"`
	Draft               string              `json:"draft"`
	Tasks               []model.TaskItem    `json:"tasks"`
	TaskProgress        TaskProgress        `json:"taskProgress"`
	Closed              bool                `json:"closed"`
}

func (session *Session) snapshotLocked() Snapshot {
	now := session.now()
	history := make([]HistorySummary, 0, len(session.history))
	for index, message := range session.history {
		history = append(history, HistorySummary{
			Index:    index,
			Text:     message.Text,
			AgeLabel: HourAgeLabel(message.Timestamp, now),
			Latest:   index == len(session.history)-1,
		})
	}

	return Snapshot{
		ChatbotID:           session.chatbot.ID,
		DeviceID:            session.deviceID,
		UserName:            session.userName,
		AvatarInitial:       AvatarInitial(session.userName),
		Greeting:            "Hello " + strings.ToLower(session.userName) + "!",
		Chatbot:             session.chatbot,
		ConfigLoaded:        session.configLoaded,
		WelcomePopupVisible: session.popupVisible,
		PopupText:           session.chatbot.PopupWelcomeText(),
		ActiveTab:           session.navigator.ActiveTab(),
		MessagesView:        session.navigator.MessagesView(),
		Messages:            session.conversation.Messages(),
		MessageCount:        session.conversation.Len(),
		History:             history,
		HomePreview:         session.homePreviewLocked(),
		Sending:             session.inFlight,
		Draft:               session.draft,
		Tasks:               session.tasks.Items(),
		TaskProgress:        session.tasks.Progress(),
		Closed:              session.closed,
	}
}

func (session *Session) homePreviewLocked() MessagePreview {
	latest, found := session.conversation.Last()
	if !found && len(session.history) > 0 {
		latest, found = session.history[len(session.history)-1], true
	}
	if !found {
		return MessagePreview{Text: model.HomePreviewFallbackText()}
	}
	return MessagePreview{Text: latest.Text, AgeLabel: DayAgeLabel(latest.Timestamp, session.now())}
}
