package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

const (
	// DefaultReplyDelay is the simulated typing delay before a bot reply appears.
	DefaultReplyDelay = 800 * time.Millisecond

	defaultSendErrorText = "Sorry, there was an error sending your message. Please try again."

	logEventMissingChatbotID    = "missing_chatbot_id"
	logEventFetchChatbotFailed  = "fetch_chatbot_failed"
	logEventSendMessageFailed   = "send_message_failed"
	logEventGreetingFlagFailed  = "greeting_flag_failed"
	logEventGreetingCheckFailed = "greeting_check_failed"
	logFieldChatbotID           = "chatbot_id"
	logFieldDeviceID            = "device_id"
)

// SessionEventKind names what changed in a session.
type SessionEventKind string

const (
	SessionEventMessageAppended SessionEventKind = "message_appended"
	SessionEventStateChanged    SessionEventKind = "state_changed"
	SessionEventClosed          SessionEventKind = "closed"
)

// SessionEventCause tells which transition produced an event. Plain state changes carry none.
type SessionEventCause string

const (
	SessionCauseWelcomeDismissed SessionEventCause = "welcome_dismissed"
	SessionCauseGreeting         SessionEventCause = "greeting"
	SessionCauseVisitorMessage   SessionEventCause = "visitor_message"
	SessionCauseBotReply         SessionEventCause = "bot_reply"
	SessionCauseSendFailed       SessionEventCause = "send_failed"
	SessionCauseHistorySeed      SessionEventCause = "history_seed"
)

// SessionEvent is delivered to the session observer after the session lock is released.
type SessionEvent struct {
	Kind     SessionEventKind  `json:"kind"`
	Cause    SessionEventCause `json:"cause,omitempty"`
	Message  *model.Message    `json:"message,omitempty"`
	Snapshot Snapshot          `json:"snapshot"`
}

// SessionConfig wires a widget session to its collaborators.
type SessionConfig struct {
	ChatbotID  string
	Store      LocalStore
	API        ChatbotAPI
	Logger     *zap.Logger
	ReplyDelay time.Duration
	// History holds prior message summaries shown in the Messages list.
	History  []model.Message
	Observer func(SessionEvent)
	Clock    func() time.Time
}

type replyScheduler func(delay time.Duration, deliver func()) (cancel func())

func scheduleWithTimer(delay time.Duration, deliver func()) func() {
	timer := time.AfterFunc(delay, deliver)
	return func() {
		timer.Stop()
	}
}

// Session is one widget instance: identity, onboarding gates, navigation, conversation and
// tasks. All methods are safe for concurrent use. Sends are single-flight: a second send is
// rejected until the bot reply of the first one is appended or its error path completes.
type Session struct {
	mutex sync.Mutex

	logger     *zap.Logger
	api        ChatbotAPI
	observer   func(SessionEvent)
	now        func() time.Time
	schedule   replyScheduler
	replyDelay time.Duration

	chatbot      model.ChatbotConfig
	configLoaded bool
	deviceID     string
	userName     string
	gate         *WelcomeGate
	popupVisible bool

	navigator    *TabNavigator
	conversation *ConversationStore
	history      []model.Message
	tasks        *TaskList
	draft        string

	inFlight    bool
	idleSignal  chan struct{}
	cancelReply func()
	closed      bool
	lastActive  time.Time

	pendingEvents []SessionEvent
}

// NewSession loads identity and configuration and returns a ready widget instance. A failed
// configuration lookup is logged and the session falls back to built-in defaults with sending
// disabled.
func NewSession(ctx context.Context, config SessionConfig) (*Session, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chatbotID := strings.TrimSpace(config.ChatbotID)
	if chatbotID == "" {
		logger.Error(logEventMissingChatbotID)
		return nil, ErrMissingChatbotID
	}
	if config.Store == nil {
		return nil, ErrMissingLocalStore
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	replyDelay := config.ReplyDelay
	if replyDelay <= 0 {
		replyDelay = DefaultReplyDelay
	}

	identity := NewDeviceIdentityStore(config.Store)
	identity.now = clock
	deviceID, deviceErr := identity.GetOrCreateDeviceID()
	if deviceErr != nil {
		return nil, deviceErr
	}
	userName, userNameErr := identity.GetOrCreateUserName()
	if userNameErr != nil {
		return nil, userNameErr
	}

	gate := NewWelcomeGate(config.Store, chatbotID, deviceID)
	popupSeen, popupErr := gate.PopupSeen()
	if popupErr != nil {
		return nil, popupErr
	}

	chatbot := model.DefaultChatbotConfig(chatbotID)
	configLoaded := false
	if config.API != nil {
		fetchedChatbot, fetchErr := config.API.FetchChatbot(ctx, chatbotID)
		if fetchErr != nil {
			logger.Warn(logEventFetchChatbotFailed, zap.String(logFieldChatbotID, chatbotID), zap.Error(fetchErr))
		} else {
			chatbot = fetchedChatbot
			configLoaded = true
		}
	}

	history := make([]model.Message, len(config.History))
	copy(history, config.History)

	session := &Session{
		logger:       logger,
		api:          config.API,
		observer:     config.Observer,
		now:          clock,
		schedule:     scheduleWithTimer,
		replyDelay:   replyDelay,
		chatbot:      chatbot,
		configLoaded: configLoaded,
		deviceID:     deviceID,
		userName:     userName,
		gate:         gate,
		popupVisible: !popupSeen,
		navigator:    NewTabNavigator(),
		history:      history,
		tasks:        NewTaskList(),
		lastActive:   clock(),
	}
	session.conversation = NewConversationStore()
	return session, nil
}

// DeviceID returns the device identifier the session correlates messages with.
func (session *Session) DeviceID() string {
	return session.deviceID
}

// Chatbot returns the resolved chatbot configuration.
func (session *Session) Chatbot() model.ChatbotConfig {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.chatbot
}

// LastActive reports when the session last handled a visitor action.
func (session *Session) LastActive() time.Time {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.lastActive
}

// Touch records visitor activity that does not change session state, such as a read.
func (session *Session) Touch() {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.touchLocked()
}

// DismissWelcome performs the popup gate transition. The flag is persisted before the popup is
// hidden; a persistence failure leaves the popup visible.
func (session *Session) DismissWelcome() error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if session.closed {
		return ErrSessionClosed
	}
	session.touchLocked()
	if !session.popupVisible {
		return nil
	}
	if markErr := session.gate.MarkPopupSeen(); markErr != nil {
		return markErr
	}
	session.popupVisible = false
	session.recordLocked(SessionEventStateChanged, SessionCauseWelcomeDismissed)
	return nil
}

// SwitchTab activates a tab. Entering Messages with an empty conversation runs the greeting
// gate.
func (session *Session) SwitchTab(tab Tab) error {
	parsedTab, parseErr := ParseTab(string(tab))
	if parseErr != nil {
		return parseErr
	}
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	session.navigator.Switch(parsedTab)
	if parsedTab == TabMessages {
		session.greetIfNeededLocked()
	}
	session.recordStateLocked(SessionEventStateChanged)
	return nil
}

// OpenChat moves the Messages tab into the chat thread without seeding it.
func (session *Session) OpenChat() error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	session.navigator.OpenChat()
	session.greetIfNeededLocked()
	session.recordStateLocked(SessionEventStateChanged)
	return nil
}

// OpenHistoryMessage selects a prior message summary: the chat view opens and the summary text
// is appended to the thread as a bot message.
func (session *Session) OpenHistoryMessage(index int) error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	if index < 0 || index >= len(session.history) {
		return ErrConversationIndexOutOfRange
	}
	selected := session.history[index]
	timestamp := selected.Timestamp
	if timestamp.IsZero() {
		timestamp = session.now()
	}
	session.navigator.OpenChat()
	session.appendLocked(model.Message{Type: model.MessageTypeBot, Text: selected.Text, Timestamp: timestamp}, SessionCauseHistorySeed)
	session.recordStateLocked(SessionEventStateChanged)
	return nil
}

// ShowMessageList returns the Messages tab to the summary list.
func (session *Session) ShowMessageList() error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	session.navigator.ShowList()
	session.recordStateLocked(SessionEventStateChanged)
	return nil
}

// SetDraft stores the visitor's unsent input.
func (session *Session) SetDraft(text string) error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	session.draft = text
	return nil
}

// SendDraft sends the stored draft.
func (session *Session) SendDraft(ctx context.Context) error {
	session.mutex.Lock()
	draft := session.draft
	session.mutex.Unlock()
	return session.SendMessage(ctx, draft)
}

// SendMessage appends the visitor message optimistically, posts it to the chatbot API and
// schedules the bot reply after the typing delay. A failed post appends one error bubble and
// releases the in-flight guard; it is not returned as an error.
func (session *Session) SendMessage(ctx context.Context, text string) error {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ErrEmptyMessage
	}

	session.mutex.Lock()
	if guardErr := session.sendGuardLocked(); guardErr != nil {
		session.unlockAndDispatch()
		return guardErr
	}
	session.appendLocked(model.Message{Type: model.MessageTypeUser, Text: trimmedText, Timestamp: session.now()}, SessionCauseVisitorMessage)
	session.draft = ""
	session.markInFlightLocked()
	session.recordStateLocked(SessionEventStateChanged)
	chatbot := session.chatbot
	outgoing := model.OutgoingMessage{
		ChatbotID: chatbot.ID,
		Text:      trimmedText,
		Type:      model.MessageTypeUser,
		DeviceID:  session.deviceID,
	}
	session.unlockAndDispatch()

	if sendErr := session.api.SendMessage(ctx, outgoing); sendErr != nil {
		session.logger.Warn(logEventSendMessageFailed,
			zap.String(logFieldChatbotID, chatbot.ID),
			zap.String(logFieldDeviceID, session.deviceID),
			zap.Error(sendErr),
		)
		session.completeSend(model.Message{
			Type:      model.MessageTypeBot,
			Text:      sendErrorText(sendErr),
			Timestamp: session.now(),
			IsError:   true,
		}, SessionCauseSendFailed)
		return nil
	}

	replyText := ResolveReply(trimmedText, chatbot.FAQs, chatbot.ReplyFallbackText())
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.closed {
		return nil
	}
	session.cancelReply = session.schedule(session.replyDelay, func() {
		session.completeSend(model.Message{Type: model.MessageTypeBot, Text: replyText, Timestamp: session.now()}, SessionCauseBotReply)
	})
	return nil
}

// WaitIdle blocks until no send is in flight or ctx ends.
func (session *Session) WaitIdle(ctx context.Context) error {
	session.mutex.Lock()
	idleSignal := session.idleSignal
	session.mutex.Unlock()
	if idleSignal == nil {
		return nil
	}
	select {
	case <-idleSignal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddTask appends a task to the local list.
func (session *Session) AddTask(text string) error {
	return session.mutateTasks(func(tasks *TaskList) error { return tasks.Add(text) })
}

// ToggleTask flips the completion state of a task.
func (session *Session) ToggleTask(index int) error {
	return session.mutateTasks(func(tasks *TaskList) error { return tasks.Toggle(index) })
}

// RemoveTask deletes a task by position.
func (session *Session) RemoveTask(index int) error {
	return session.mutateTasks(func(tasks *TaskList) error { return tasks.Remove(index) })
}

// Close tears the session down. A scheduled bot reply is cancelled, and one already firing
// becomes a no-op.
func (session *Session) Close() {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if session.closed {
		return
	}
	session.closed = true
	if session.cancelReply != nil {
		session.cancelReply()
		session.cancelReply = nil
	}
	session.clearInFlightLocked()
	session.recordStateLocked(SessionEventClosed)
}

// Snapshot returns a render-ready copy of the session state.
func (session *Session) Snapshot() Snapshot {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.snapshotLocked()
}

func (session *Session) mutateTasks(mutate func(*TaskList) error) error {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	if mutateErr := mutate(session.tasks); mutateErr != nil {
		return mutateErr
	}
	session.recordStateLocked(SessionEventStateChanged)
	return nil
}

func (session *Session) completeSend(message model.Message, cause SessionEventCause) {
	session.mutex.Lock()
	defer session.unlockAndDispatch()
	if session.closed {
		return
	}
	session.cancelReply = nil
	session.appendLocked(message, cause)
	session.clearInFlightLocked()
	session.recordStateLocked(SessionEventStateChanged)
}

func (session *Session) greetIfNeededLocked() {
	if session.conversation.Len() > 0 {
		return
	}
	greeted, greetedErr := session.gate.Greeted()
	if greetedErr != nil {
		session.logger.Warn(logEventGreetingCheckFailed, zap.String(logFieldChatbotID, session.chatbot.ID), zap.Error(greetedErr))
		return
	}
	if greeted {
		return
	}
	session.appendLocked(model.Message{Type: model.MessageTypeBot, Text: session.chatbot.GreetingText(), Timestamp: session.now()}, SessionCauseGreeting)
	if markErr := session.gate.MarkGreeted(); markErr != nil {
		session.logger.Warn(logEventGreetingFlagFailed, zap.String(logFieldChatbotID, session.chatbot.ID), zap.Error(markErr))
	}
}

func (session *Session) interactiveGuardLocked() error {
	if session.closed {
		return ErrSessionClosed
	}
	session.touchLocked()
	if session.popupVisible {
		return ErrWelcomePopupActive
	}
	return nil
}

func (session *Session) sendGuardLocked() error {
	if guardErr := session.interactiveGuardLocked(); guardErr != nil {
		return guardErr
	}
	if !session.configLoaded || session.api == nil {
		return ErrChatbotUnavailable
	}
	if session.inFlight {
		return ErrSendInFlight
	}
	return nil
}

func (session *Session) touchLocked() {
	session.lastActive = session.now()
}

func (session *Session) markInFlightLocked() {
	session.inFlight = true
	session.idleSignal = make(chan struct{})
}

func (session *Session) clearInFlightLocked() {
	session.inFlight = false
	if session.idleSignal != nil {
		close(session.idleSignal)
		session.idleSignal = nil
	}
}

func (session *Session) appendLocked(message model.Message, cause SessionEventCause) {
	session.conversation.Append(message)
	if session.observer == nil {
		return
	}
	appended := message
	session.pendingEvents = append(session.pendingEvents, SessionEvent{
		Kind:     SessionEventMessageAppended,
		Cause:    cause,
		Message:  &appended,
		Snapshot: session.snapshotLocked(),
	})
}

func (session *Session) recordStateLocked(kind SessionEventKind) {
	session.recordLocked(kind, "")
}

func (session *Session) recordLocked(kind SessionEventKind, cause SessionEventCause) {
	if session.observer == nil {
		return
	}
	session.pendingEvents = append(session.pendingEvents, SessionEvent{
		Kind:     kind,
		Cause:    cause,
		Snapshot: session.snapshotLocked(),
	})
}

func (session *Session) unlockAndDispatch() {
	pendingEvents := session.pendingEvents
	session.pendingEvents = nil
	observer := session.observer
	session.mutex.Unlock()
	if observer == nil {
		return
	}
	for _, event := range pendingEvents {
		observer(event)
	}
}

func sendErrorText(sendErr error) string {
	var visitorFacingErr VisitorFacingError
	if errors.As(sendErr, &visitorFacingErr) {
		if visitorMessage := strings.TrimSpace(visitorFacingErr.VisitorMessage()); visitorMessage != "" {
			return visitorMessage
		}
	}
	return defaultSendErrorText
}
