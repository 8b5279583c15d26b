package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/apiclient"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/httpapi"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/testutil"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	testChatbotID       = "bot-1"
	testWelcomeMessage  = "Hi there!"
	testClientID        = "client_1700000000000_abcdefghi"
	testOtherClientID   = "client_1700000000000_zyxwvutsr"
	testSessionSecret   = "test-session-secret-0123456789abcdef"
	testReplyDelay      = 5 * time.Millisecond
	testEventualTimeout = 2 * time.Second
	testEventualTick    = 10 * time.Millisecond
)

type manualClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (clock *manualClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(duration)
}

type hostHarness struct {
	router       *gin.Engine
	registry     *httpapi.SessionRegistry
	stub         *testutil.ChatbotAPIStub
	clock        *manualClock
	rateLimiters *httpapi.ClientRateLimiters
}

type harnessOptions struct {
	ratePerSecond float64
	burst         int
}

func buildHostHarness(testingT *testing.T, options harnessOptions) *hostHarness {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	stub := testutil.NewChatbotAPIStub(testingT, model.ChatbotPayload{
		ID:             testChatbotID,
		Name:           "Support",
		WelcomeMessage: testWelcomeMessage,
		PrimaryColor:   "#10B981",
		FAQs:           []model.FAQ{{Question: "hours", Answer: "We are open 9 to 5."}},
	})
	clock := &manualClock{now: time.Now()}
	metrics := httpapi.NewMetrics()
	registry := httpapi.NewSessionRegistry(httpapi.SessionRegistryConfig{
		Backend: storage.NewMemoryBackend(),
		APIFactory: func(baseURL string, notices *events.NoticeBus) (widget.ChatbotAPI, error) {
			return apiclient.New(apiclient.Config{BaseURL: baseURL, Timeout: time.Second, Notices: notices})
		},
		DefaultAPIURL: stub.URL(),
		ReplyDelay:    testReplyDelay,
		Logger:        zap.NewNop(),
		Metrics:       metrics,
		Clock:         clock.Now,
	})
	testingT.Cleanup(registry.Close)

	ratePerSecond := options.ratePerSecond
	if ratePerSecond == 0 {
		ratePerSecond = 1000
	}
	burst := options.burst
	if burst == 0 {
		burst = 1000
	}
	rateLimiters := httpapi.NewClientRateLimiters(ratePerSecond, burst)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:       zap.NewNop(),
		Registry:     registry,
		CookieStore:  httpapi.NewClientCookieStore(testSessionSecret),
		RateLimiters: rateLimiters,
		Metrics:      metrics,
	})
	return &hostHarness{router: router, registry: registry, stub: stub, clock: clock, rateLimiters: rateLimiters}
}

func (harness *hostHarness) perform(testingT *testing.T, method string, path string, body any, clientID string) *httptest.ResponseRecorder {
	testingT.Helper()
	var requestBody bytes.Buffer
	if body != nil {
		require.NoError(testingT, json.NewEncoder(&requestBody).Encode(body))
	}
	request := httptest.NewRequest(method, path, &requestBody)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if clientID != "" {
		request.Header.Set(httpapi.WidgetClientHeader, clientID)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

type createdSession struct {
	SessionID string             `json:"sessionId"`
	Embed     widget.EmbedConfig `json:"embed"`
	Snapshot  widget.Snapshot    `json:"snapshot"`
}

func (harness *hostHarness) createSession(testingT *testing.T, clientID string, body map[string]any) createdSession {
	testingT.Helper()
	if body == nil {
		body = map[string]any{"chatbotId": testChatbotID}
	}
	recorder := harness.perform(testingT, http.MethodPost, "/api/widget/sessions", body, clientID)
	require.Equal(testingT, http.StatusCreated, recorder.Code, recorder.Body.String())
	var created createdSession
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &created))
	return created
}

func (harness *hostHarness) snapshot(testingT *testing.T, sessionID string, clientID string) widget.Snapshot {
	testingT.Helper()
	recorder := harness.perform(testingT, http.MethodGet, "/api/widget/sessions/"+sessionID, nil, clientID)
	require.Equal(testingT, http.StatusOK, recorder.Code, recorder.Body.String())
	var fetched createdSession
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &fetched))
	return fetched.Snapshot
}

func decodeError(testingT *testing.T, recorder *httptest.ResponseRecorder) string {
	testingT.Helper()
	var payload map[string]string
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload["error"]
}

func sessionPath(sessionID string, suffix string) string {
	return "/api/widget/sessions/" + sessionID + suffix
}
