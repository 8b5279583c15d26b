package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
)

const (
	testChatbotID       = "chatbot-42"
	testOtherChatbotID  = "chatbot-77"
	testWelcomeMessage  = "Hi there!"
	testShortReplyDelay = 5 * time.Millisecond
	testWaitTimeout     = 2 * time.Second
)

var errTestUpstreamUnavailable = errors.New("upstream unavailable")

type fakeChatbotAPI struct {
	mutex       sync.Mutex
	chatbot     model.ChatbotConfig
	fetchErr    error
	sendErr     error
	sent        []model.OutgoingMessage
	release     chan struct{}
	sendStarted chan struct{}
}

func newFakeChatbotAPI(chatbot model.ChatbotConfig) *fakeChatbotAPI {
	return &fakeChatbotAPI{chatbot: chatbot}
}

func (api *fakeChatbotAPI) FetchChatbot(_ context.Context, chatbotID string) (model.ChatbotConfig, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	if api.fetchErr != nil {
		return model.ChatbotConfig{}, api.fetchErr
	}
	chatbot := api.chatbot
	if chatbot.ID == "" {
		chatbot.ID = chatbotID
	}
	return chatbot, nil
}

func (api *fakeChatbotAPI) SendMessage(ctx context.Context, message model.OutgoingMessage) error {
	api.mutex.Lock()
	api.sent = append(api.sent, message)
	release := api.release
	sendStarted := api.sendStarted
	sendErr := api.sendErr
	api.mutex.Unlock()

	if sendStarted != nil {
		sendStarted <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sendErr
}

func (api *fakeChatbotAPI) sentMessages() []model.OutgoingMessage {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	sent := make([]model.OutgoingMessage, len(api.sent))
	copy(sent, api.sent)
	return sent
}

type visitorError struct {
	message string
}

func (err visitorError) Error() string          { return "upstream rejected: " + err.message }
func (err visitorError) VisitorMessage() string { return err.message }

type manualReplyScheduler struct {
	mutex     sync.Mutex
	delays    []time.Duration
	callbacks []func()
	cancelled int
}

func (scheduler *manualReplyScheduler) schedule(delay time.Duration, deliver func()) func() {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	scheduler.delays = append(scheduler.delays, delay)
	scheduler.callbacks = append(scheduler.callbacks, deliver)
	return func() {
		scheduler.mutex.Lock()
		scheduler.cancelled++
		scheduler.mutex.Unlock()
	}
}

func (scheduler *manualReplyScheduler) fire(index int) {
	scheduler.mutex.Lock()
	callback := scheduler.callbacks[index]
	scheduler.mutex.Unlock()
	callback()
}

func newTestChatbot(chatbotID string, welcomeMessage string, faqs ...model.FAQ) model.ChatbotConfig {
	return model.ResolveChatbotConfig(model.ChatbotPayload{ID: chatbotID, WelcomeMessage: welcomeMessage, FAQs: faqs}, chatbotID)
}

func newTestSession(testingT *testing.T, store LocalStore, api ChatbotAPI, chatbotID string) *Session {
	testingT.Helper()
	session, sessionErr := NewSession(context.Background(), SessionConfig{
		ChatbotID:  chatbotID,
		Store:      store,
		API:        api,
		ReplyDelay: testShortReplyDelay,
	})
	require.NoError(testingT, sessionErr)
	testingT.Cleanup(session.Close)
	return session
}

func newReadySession(testingT *testing.T, store LocalStore, api ChatbotAPI) *Session {
	testingT.Helper()
	session := newTestSession(testingT, store, api, testChatbotID)
	require.NoError(testingT, session.DismissWelcome())
	return session
}

func waitIdle(testingT *testing.T, session *Session) {
	testingT.Helper()
	waitContext, cancel := context.WithTimeout(context.Background(), testWaitTimeout)
	defer cancel()
	require.NoError(testingT, session.WaitIdle(waitContext))
}

func newMemoryStore() *storage.MemoryLocalStore {
	return storage.NewMemoryLocalStore()
}
