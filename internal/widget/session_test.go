package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

func TestNewSessionRequiresChatbotID(testingT *testing.T) {
	_, sessionErr := NewSession(context.Background(), SessionConfig{ChatbotID: "  ", Store: newMemoryStore()})
	require.ErrorIs(testingT, sessionErr, ErrMissingChatbotID)

	_, storeErr := NewSession(context.Background(), SessionConfig{ChatbotID: testChatbotID})
	require.ErrorIs(testingT, storeErr, ErrMissingLocalStore)
}

func TestWelcomePopupShownOncePerChatbot(testingT *testing.T) {
	store := newMemoryStore()
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))

	firstSession := newTestSession(testingT, store, api, testChatbotID)
	firstSnapshot := firstSession.Snapshot()
	require.True(testingT, firstSnapshot.WelcomePopupVisible)
	require.Equal(testingT, testWelcomeMessage, firstSnapshot.PopupText)

	require.ErrorIs(testingT, firstSession.SwitchTab(TabMessages), ErrWelcomePopupActive)
	require.ErrorIs(testingT, firstSession.SendMessage(context.Background(), "hello"), ErrWelcomePopupActive)
	require.ErrorIs(testingT, firstSession.AddTask("blocked"), ErrWelcomePopupActive)

	require.NoError(testingT, firstSession.DismissWelcome())
	require.NoError(testingT, firstSession.DismissWelcome())
	require.False(testingT, firstSession.Snapshot().WelcomePopupVisible)

	reloadedSession := newTestSession(testingT, store, api, testChatbotID)
	require.False(testingT, reloadedSession.Snapshot().WelcomePopupVisible)

	otherChatbotSession := newTestSession(testingT, store, api, testOtherChatbotID)
	require.True(testingT, otherChatbotSession.Snapshot().WelcomePopupVisible)
}

func TestDismissWelcomeKeepsPopupWhenFlagCannotPersist(testingT *testing.T) {
	store := &flakyStore{LocalStore: newMemoryStore()}
	session := newTestSession(testingT, store, newFakeChatbotAPI(newTestChatbot(testChatbotID, "")), testChatbotID)

	store.failWrites = true
	require.Error(testingT, session.DismissWelcome())
	require.True(testingT, session.Snapshot().WelcomePopupVisible)
}

func TestGreetingInjectedOncePerChatbotAndDevice(testingT *testing.T) {
	store := newMemoryStore()
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, ""))

	session := newReadySession(testingT, store, api)
	require.NoError(testingT, session.SwitchTab(TabMessages))
	require.NoError(testingT, session.SwitchTab(TabHome))
	require.NoError(testingT, session.SwitchTab(TabMessages))
	require.NoError(testingT, session.OpenChat())

	messages := session.Snapshot().Messages
	require.Len(testingT, messages, 1)
	require.Equal(testingT, model.MessageTypeBot, messages[0].Type)
	require.Equal(testingT, "Hello! How can I help you today?", messages[0].Text)

	greetedValue, found, readErr := store.GetItem(WelcomeMessageStorageKey(testChatbotID, session.DeviceID()))
	require.NoError(testingT, readErr)
	require.True(testingT, found)
	require.Equal(testingT, "true", greetedValue)

	reloadedSession := newTestSession(testingT, store, api, testChatbotID)
	require.NoError(testingT, reloadedSession.OpenChat())
	require.Empty(testingT, reloadedSession.Snapshot().Messages)
	require.Equal(testingT, session.DeviceID(), reloadedSession.DeviceID())
}

func TestSwitchTabNormalizesTabName(testingT *testing.T) {
	store := newMemoryStore()
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, ""))

	session := newReadySession(testingT, store, api)
	require.NoError(testingT, session.SwitchTab(Tab(" Messages ")))

	snapshot := session.Snapshot()
	require.Equal(testingT, TabMessages, snapshot.ActiveTab)
	require.Len(testingT, snapshot.Messages, 1)
	require.Equal(testingT, "Hello! How can I help you today?", snapshot.Messages[0].Text)
}

func TestEndToEndReplyUsesWelcomeMessageFallback(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	session := newReadySession(testingT, newMemoryStore(), api)

	require.NoError(testingT, session.SendMessage(context.Background(), "hello"))
	waitIdle(testingT, session)

	snapshot := session.Snapshot()
	require.False(testingT, snapshot.Sending)
	require.Len(testingT, snapshot.Messages, 2)
	require.Equal(testingT, model.MessageTypeUser, snapshot.Messages[0].Type)
	require.Equal(testingT, "hello", snapshot.Messages[0].Text)
	require.Equal(testingT, model.MessageTypeBot, snapshot.Messages[1].Type)
	require.Equal(testingT, testWelcomeMessage, snapshot.Messages[1].Text)
	require.False(testingT, snapshot.Messages[1].IsError)

	sent := api.sentMessages()
	require.Len(testingT, sent, 1)
	require.Equal(testingT, model.OutgoingMessage{
		ChatbotID: testChatbotID,
		Text:      "hello",
		Type:      model.MessageTypeUser,
		DeviceID:  session.DeviceID(),
	}, sent[0])
}

func TestSendReplyMatchesFAQ(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage,
		model.FAQ{Question: "pricing", Answer: "A"},
		model.FAQ{Question: "price list", Answer: "B"},
	))
	session := newReadySession(testingT, newMemoryStore(), api)

	require.NoError(testingT, session.SendMessage(context.Background(), "  what is your price list  "))
	waitIdle(testingT, session)

	messages := session.Snapshot().Messages
	require.Len(testingT, messages, 2)
	require.Equal(testingT, "what is your price list", messages[0].Text)
	require.Equal(testingT, "B", messages[1].Text)
}

func TestSendIsSingleFlight(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	api.release = make(chan struct{})
	api.sendStarted = make(chan struct{}, 1)
	session := newReadySession(testingT, newMemoryStore(), api)

	firstSendResult := make(chan error, 1)
	go func() {
		firstSendResult <- session.SendMessage(context.Background(), "first")
	}()

	select {
	case <-api.sendStarted:
	case <-time.After(testWaitTimeout):
		testingT.Fatal("first send never reached the api")
	}

	require.ErrorIs(testingT, session.SendMessage(context.Background(), "second"), ErrSendInFlight)
	inFlightSnapshot := session.Snapshot()
	require.True(testingT, inFlightSnapshot.Sending)
	require.Len(testingT, inFlightSnapshot.Messages, 1)
	require.Equal(testingT, "first", inFlightSnapshot.Messages[0].Text)

	close(api.release)
	require.NoError(testingT, <-firstSendResult)
	waitIdle(testingT, session)

	messages := session.Snapshot().Messages
	require.Len(testingT, messages, 2)
	require.Len(testingT, api.sentMessages(), 1)
}

func TestSendFailureAppendsSingleErrorBubble(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	api.sendErr = errTestUpstreamUnavailable
	session := newReadySession(testingT, newMemoryStore(), api)

	require.NoError(testingT, session.SendMessage(context.Background(), "hello"))

	snapshot := session.Snapshot()
	require.False(testingT, snapshot.Sending)
	require.Len(testingT, snapshot.Messages, 2)
	require.True(testingT, snapshot.Messages[1].IsError)
	require.Equal(testingT, model.MessageTypeBot, snapshot.Messages[1].Type)
	require.Equal(testingT, "Sorry, there was an error sending your message. Please try again.", snapshot.Messages[1].Text)

	api.mutex.Lock()
	api.sendErr = visitorError{message: "Chatbot is paused"}
	api.mutex.Unlock()
	require.NoError(testingT, session.SendMessage(context.Background(), "again"))

	messages := session.Snapshot().Messages
	require.Len(testingT, messages, 4)
	require.Equal(testingT, "Chatbot is paused", messages[3].Text)
	require.True(testingT, messages[3].IsError)

	errorBubbles := 0
	for _, message := range messages {
		if message.IsError {
			errorBubbles++
		}
	}
	require.Equal(testingT, 2, errorBubbles)
}

func TestSendRejectsEmptyText(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, ""))
	session := newReadySession(testingT, newMemoryStore(), api)

	require.ErrorIs(testingT, session.SendMessage(context.Background(), " \n\t "), ErrEmptyMessage)
	require.Empty(testingT, session.Snapshot().Messages)
	require.Empty(testingT, api.sentMessages())
}

func TestConfigFetchFailureFallsBackToDefaults(testingT *testing.T) {
	api := newFakeChatbotAPI(model.ChatbotConfig{})
	api.fetchErr = errTestUpstreamUnavailable
	session := newReadySession(testingT, newMemoryStore(), api)

	snapshot := session.Snapshot()
	require.False(testingT, snapshot.ConfigLoaded)
	require.Equal(testingT, model.DefaultChatbotConfig(testChatbotID), snapshot.Chatbot)
	require.Equal(testingT, "We're here to help you!", snapshot.PopupText)

	require.ErrorIs(testingT, session.SendMessage(context.Background(), "hello"), ErrChatbotUnavailable)
	require.Empty(testingT, session.Snapshot().Messages)
}

func TestCloseCancelsPendingReply(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	session := newReadySession(testingT, newMemoryStore(), api)
	scheduler := &manualReplyScheduler{}
	session.schedule = scheduler.schedule

	require.NoError(testingT, session.SendMessage(context.Background(), "hello"))
	require.Equal(testingT, []time.Duration{testShortReplyDelay}, scheduler.delays)

	session.Close()
	require.Equal(testingT, 1, scheduler.cancelled)

	scheduler.fire(0)
	snapshot := session.Snapshot()
	require.True(testingT, snapshot.Closed)
	require.False(testingT, snapshot.Sending)
	require.Len(testingT, snapshot.Messages, 1)

	require.ErrorIs(testingT, session.SendMessage(context.Background(), "after close"), ErrSessionClosed)
	require.ErrorIs(testingT, session.SwitchTab(TabHelp), ErrSessionClosed)
}

func TestHistorySelectionSeedsChat(testingT *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	history := []model.Message{
		{Type: model.MessageTypeBot, Text: "Your order shipped", Timestamp: now.Add(-26 * time.Hour)},
		{Type: model.MessageTypeBot, Text: "Invoice ready", Timestamp: now.Add(-3 * time.Hour)},
	}
	session, sessionErr := NewSession(context.Background(), SessionConfig{
		ChatbotID: testChatbotID,
		Store:     newMemoryStore(),
		API:       newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage)),
		History:   history,
		Clock:     func() time.Time { return now },
	})
	require.NoError(testingT, sessionErr)
	defer session.Close()
	require.NoError(testingT, session.DismissWelcome())

	snapshot := session.Snapshot()
	require.Equal(testingT, []HistorySummary{
		{Index: 0, Text: "Your order shipped", AgeLabel: "26h"},
		{Index: 1, Text: "Invoice ready", AgeLabel: "3h", Latest: true},
	}, snapshot.History)
	require.Equal(testingT, MessagePreview{Text: "Invoice ready", AgeLabel: "0d"}, snapshot.HomePreview)

	require.ErrorIs(testingT, session.OpenHistoryMessage(2), ErrConversationIndexOutOfRange)
	require.NoError(testingT, session.OpenHistoryMessage(0))

	opened := session.Snapshot()
	require.Equal(testingT, TabMessages, opened.ActiveTab)
	require.Equal(testingT, MessagesViewChat, opened.MessagesView)
	require.Len(testingT, opened.Messages, 1)
	require.Equal(testingT, "Your order shipped", opened.Messages[0].Text)
	require.Equal(testingT, MessagePreview{Text: "Your order shipped", AgeLabel: "1d"}, opened.HomePreview)

	require.NoError(testingT, session.ShowMessageList())
	require.Equal(testingT, MessagesViewList, session.Snapshot().MessagesView)
}

func TestHomePreviewFallsBackWithoutMessages(testingT *testing.T) {
	session := newReadySession(testingT, newMemoryStore(), newFakeChatbotAPI(newTestChatbot(testChatbotID, "")))
	require.Equal(testingT, MessagePreview{Text: "Welcome back! 🎉 How can I assist you today?"}, session.Snapshot().HomePreview)
}

func TestDraftIsClearedBySend(testingT *testing.T) {
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	session := newReadySession(testingT, newMemoryStore(), api)

	require.NoError(testingT, session.SetDraft("from the draft"))
	require.Equal(testingT, "from the draft", session.Snapshot().Draft)
	require.NoError(testingT, session.SendDraft(context.Background()))
	require.Equal(testingT, "", session.Snapshot().Draft)
	waitIdle(testingT, session)
	require.Equal(testingT, "from the draft", session.Snapshot().Messages[0].Text)
}

func TestSessionTasks(testingT *testing.T) {
	session := newReadySession(testingT, newMemoryStore(), newFakeChatbotAPI(newTestChatbot(testChatbotID, "")))

	require.NoError(testingT, session.AddTask("call back"))
	require.NoError(testingT, session.AddTask("send quote"))
	require.NoError(testingT, session.ToggleTask(1))
	require.ErrorIs(testingT, session.RemoveTask(4), ErrTaskIndexOutOfRange)

	snapshot := session.Snapshot()
	require.Equal(testingT, []model.TaskItem{{Text: "call back"}, {Text: "send quote", Completed: true}}, snapshot.Tasks)
	require.Equal(testingT, TaskProgress{Completed: 1, Total: 2, Percent: 50}, snapshot.TaskProgress)

	require.NoError(testingT, session.RemoveTask(0))
	require.Len(testingT, session.Snapshot().Tasks, 1)
}

func TestObserverReceivesEventsOutsideLock(testingT *testing.T) {
	var (
		eventsMutex sync.Mutex
		events      []SessionEvent
		session     *Session
	)
	observer := func(event SessionEvent) {
		// Reading the snapshot here would deadlock if events were dispatched under the lock.
		_ = session.Snapshot()
		eventsMutex.Lock()
		events = append(events, event)
		eventsMutex.Unlock()
	}

	var sessionErr error
	session, sessionErr = NewSession(context.Background(), SessionConfig{
		ChatbotID:  testChatbotID,
		Store:      newMemoryStore(),
		API:        newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage)),
		ReplyDelay: testShortReplyDelay,
		Observer:   observer,
	})
	require.NoError(testingT, sessionErr)
	require.NoError(testingT, session.DismissWelcome())
	require.NoError(testingT, session.SendMessage(context.Background(), "hello"))
	waitIdle(testingT, session)

	appendedTexts := func() []string {
		eventsMutex.Lock()
		defer eventsMutex.Unlock()
		var appended []string
		for _, event := range events {
			if event.Kind == SessionEventMessageAppended {
				appended = append(appended, event.Message.Text)
			}
		}
		return appended
	}
	require.Eventually(testingT, func() bool {
		return len(appendedTexts()) == 2
	}, testWaitTimeout, time.Millisecond)
	require.Equal(testingT, []string{"hello", testWelcomeMessage}, appendedTexts())

	require.Eventually(testingT, func() bool {
		eventsMutex.Lock()
		defer eventsMutex.Unlock()
		lastEvent := events[len(events)-1]
		return lastEvent.Kind == SessionEventStateChanged && !lastEvent.Snapshot.Sending
	}, testWaitTimeout, time.Millisecond)
	session.Close()

	eventsMutex.Lock()
	defer eventsMutex.Unlock()
	require.Equal(testingT, SessionEventClosed, events[len(events)-1].Kind)
	require.True(testingT, events[len(events)-1].Snapshot.Closed)
}

type flakyStore struct {
	LocalStore
	failWrites bool
}

func (store *flakyStore) SetItem(key string, value string) error {
	if store.failWrites {
		return errTestUpstreamUnavailable
	}
	return store.LocalStore.SetItem(key, value)
}

func TestObserverEventsCarryTheirCause(testingT *testing.T) {
	var (
		eventsMutex sync.Mutex
		causes      []SessionEventCause
	)
	api := newFakeChatbotAPI(newTestChatbot(testChatbotID, testWelcomeMessage))
	api.sendErr = errTestUpstreamUnavailable
	session, sessionErr := NewSession(context.Background(), SessionConfig{
		ChatbotID:  testChatbotID,
		Store:      newMemoryStore(),
		API:        api,
		ReplyDelay: testShortReplyDelay,
		Observer: func(event SessionEvent) {
			if event.Cause == "" {
				return
			}
			eventsMutex.Lock()
			causes = append(causes, event.Cause)
			eventsMutex.Unlock()
		},
	})
	require.NoError(testingT, sessionErr)
	testingT.Cleanup(session.Close)

	require.NoError(testingT, session.DismissWelcome())
	require.NoError(testingT, session.SwitchTab(TabMessages))
	require.NoError(testingT, session.SendMessage(context.Background(), "hello"))

	api.mutex.Lock()
	api.sendErr = nil
	api.mutex.Unlock()
	require.NoError(testingT, session.SendMessage(context.Background(), "again"))
	waitIdle(testingT, session)

	recordedCauses := func() []SessionEventCause {
		eventsMutex.Lock()
		defer eventsMutex.Unlock()
		return append([]SessionEventCause(nil), causes...)
	}
	require.Eventually(testingT, func() bool {
		return len(recordedCauses()) == 6
	}, testWaitTimeout, time.Millisecond)
	require.Equal(testingT, []SessionEventCause{
		SessionCauseWelcomeDismissed,
		SessionCauseGreeting,
		SessionCauseVisitorMessage,
		SessionCauseSendFailed,
		SessionCauseVisitorMessage,
		SessionCauseBotReply,
	}, recordedCauses())
}
