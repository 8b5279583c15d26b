package widget

import (
	"fmt"
	"strings"
)

// Tab is one of the four widget views.
type Tab string

const (
	TabHome     Tab = "home"
	TabMessages Tab = "messages"
	TabHelp     Tab = "help"
	TabTasks    Tab = "tasks"
)

// MessagesView is the nested state of the Messages tab.
type MessagesView string

const (
	MessagesViewList MessagesView = "list"
	MessagesViewChat MessagesView = "chat"
)

// ParseTab converts a tab name into a Tab.
func ParseTab(rawTab string) (Tab, error) {
	tab := Tab(strings.ToLower(strings.TrimSpace(rawTab)))
	switch tab {
	case TabHome, TabMessages, TabHelp, TabTasks:
		return tab, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTab, rawTab)
	}
}

// TabNavigator tracks the active view and the nested list/chat state of the Messages tab.
type TabNavigator struct {
	activeTab    Tab
	messagesView MessagesView
}

// NewTabNavigator starts on Home with the message list.
func NewTabNavigator() *TabNavigator {
	return &TabNavigator{activeTab: TabHome, messagesView: MessagesViewList}
}

// Switch activates a tab unconditionally.
func (navigator *TabNavigator) Switch(tab Tab) {
	navigator.activeTab = tab
}

// OpenChat moves the Messages tab into the chat thread.
func (navigator *TabNavigator) OpenChat() {
	navigator.activeTab = TabMessages
	navigator.messagesView = MessagesViewChat
}

// ShowList moves the Messages tab back to the summary list.
func (navigator *TabNavigator) ShowList() {
	navigator.messagesView = MessagesViewList
}

// ActiveTab reports the visible tab.
func (navigator *TabNavigator) ActiveTab() Tab {
	return navigator.activeTab
}

// MessagesView reports whether the Messages tab shows the list or the chat.
func (navigator *TabNavigator) MessagesView() MessagesView {
	return navigator.messagesView
}
