package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

const (
	chatbotsPathPrefix = "/chatbots/"
	sendMessagePath    = "/messages/send"
)

// ChatbotAPIStub is an httptest server speaking the external chatbot REST API.
type ChatbotAPIStub struct {
	server *httptest.Server

	mutex         sync.Mutex
	chatbots      map[string]model.ChatbotPayload
	sent          []model.OutgoingMessage
	sendStatus    int
	sendErrorText string
	fetchStatus   int
}

// NewChatbotAPIStub starts a stub serving the given chatbot documents. The server stops when
// the test ends.
func NewChatbotAPIStub(testingT *testing.T, chatbots ...model.ChatbotPayload) *ChatbotAPIStub {
	testingT.Helper()
	stub := &ChatbotAPIStub{
		chatbots:    make(map[string]model.ChatbotPayload),
		sendStatus:  http.StatusOK,
		fetchStatus: http.StatusOK,
	}
	for _, chatbot := range chatbots {
		stub.chatbots[chatbot.ID] = chatbot
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serveHTTP))
	testingT.Cleanup(stub.server.Close)
	return stub
}

// URL is the API base URL, without a trailing slash.
func (stub *ChatbotAPIStub) URL() string {
	return stub.server.URL
}

// FailSends makes every subsequent send answer with status and an optional {"error": ...} body.
func (stub *ChatbotAPIStub) FailSends(status int, errorText string) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.sendStatus = status
	stub.sendErrorText = errorText
}

// FailFetches makes every subsequent chatbot lookup answer with status.
func (stub *ChatbotAPIStub) FailFetches(status int) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	stub.fetchStatus = status
}

// SentMessages returns the messages received so far.
func (stub *ChatbotAPIStub) SentMessages() []model.OutgoingMessage {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	sent := make([]model.OutgoingMessage, len(stub.sent))
	copy(sent, stub.sent)
	return sent
}

func (stub *ChatbotAPIStub) serveHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	switch {
	case request.Method == http.MethodGet && strings.HasPrefix(request.URL.Path, chatbotsPathPrefix):
		stub.serveChatbot(responseWriter, strings.TrimPrefix(request.URL.Path, chatbotsPathPrefix))
	case request.Method == http.MethodPost && request.URL.Path == sendMessagePath:
		stub.serveSend(responseWriter, request)
	default:
		http.NotFound(responseWriter, request)
	}
}

func (stub *ChatbotAPIStub) serveChatbot(responseWriter http.ResponseWriter, chatbotID string) {
	stub.mutex.Lock()
	fetchStatus := stub.fetchStatus
	chatbot, found := stub.chatbots[chatbotID]
	stub.mutex.Unlock()

	if fetchStatus != http.StatusOK {
		writeJSON(responseWriter, fetchStatus, map[string]string{"error": http.StatusText(fetchStatus)})
		return
	}
	if !found {
		writeJSON(responseWriter, http.StatusNotFound, map[string]string{"error": "Chatbot not found"})
		return
	}
	writeJSON(responseWriter, http.StatusOK, chatbot)
}

func (stub *ChatbotAPIStub) serveSend(responseWriter http.ResponseWriter, request *http.Request) {
	var message model.OutgoingMessage
	if decodeErr := json.NewDecoder(request.Body).Decode(&message); decodeErr != nil {
		writeJSON(responseWriter, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	stub.mutex.Lock()
	stub.sent = append(stub.sent, message)
	sendStatus := stub.sendStatus
	sendErrorText := stub.sendErrorText
	stub.mutex.Unlock()

	if sendStatus != http.StatusOK {
		body := map[string]string{}
		if sendErrorText != "" {
			body["error"] = sendErrorText
		}
		writeJSON(responseWriter, sendStatus, body)
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(responseWriter http.ResponseWriter, status int, body any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(status)
	_ = json.NewEncoder(responseWriter).Encode(body)
}
