package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

const (
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 30 * time.Second

	chatbotsPathPattern = "/chatbots/%s"
	sendMessagePath     = "/messages/send"
	contentTypeJSON     = "application/json"
	maxErrorBodyBytes   = 64 << 10

	logEventUpstreamError   = "chatbot_api_error"
	logEventUpstreamNetwork = "chatbot_api_network_error"
)

var (
	// ErrMissingBaseURL indicates the client was built without an API base URL.
	ErrMissingBaseURL = errors.New("apiclient: missing base url")
	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("apiclient: network error")
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Notices receives a visitor-facing notice for every failed request. Optional.
	Notices *events.NoticeBus
}

// Client talks to the external chatbot REST API. Cookies set by the API are kept and resent,
// mirroring browser requests made with credentials included.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	notices    *events.NoticeBus
}

// New validates the configuration and builds a client.
func New(config Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, parseErr := url.ParseRequestURI(baseURL); parseErr != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", parseErr)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		cookieJar, jarErr := cookiejar.New(nil)
		if jarErr != nil {
			return nil, fmt.Errorf("apiclient: cookie jar: %w", jarErr)
		}
		httpClient = &http.Client{Timeout: timeout, Jar: cookieJar}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger, notices: config.Notices}, nil
}

// BaseURL returns the normalized API base URL.
func (client *Client) BaseURL() string {
	return client.baseURL
}

// FetchChatbot loads and resolves the configuration of one chatbot.
func (client *Client) FetchChatbot(ctx context.Context, chatbotID string) (model.ChatbotConfig, error) {
	requestURL := client.baseURL + fmt.Sprintf(chatbotsPathPattern, url.PathEscape(chatbotID))
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if requestErr != nil {
		return model.ChatbotConfig{}, fmt.Errorf("apiclient: build request: %w", requestErr)
	}
	request.Header.Set("Accept", contentTypeJSON)

	var payload model.ChatbotPayload
	if doErr := client.do(request, &payload); doErr != nil {
		return model.ChatbotConfig{}, doErr
	}
	return model.ResolveChatbotConfig(payload, chatbotID), nil
}

// SendMessage posts a visitor message. The response body is not used.
func (client *Client) SendMessage(ctx context.Context, message model.OutgoingMessage) error {
	body, marshalErr := json.Marshal(message)
	if marshalErr != nil {
		return fmt.Errorf("apiclient: encode message: %w", marshalErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+sendMessagePath, bytes.NewReader(body))
	if requestErr != nil {
		return fmt.Errorf("apiclient: build request: %w", requestErr)
	}
	request.Header.Set("Content-Type", contentTypeJSON)
	request.Header.Set("Accept", contentTypeJSON)
	return client.do(request, nil)
}

func (client *Client) do(request *http.Request, target any) error {
	response, responseErr := client.httpClient.Do(request)
	if responseErr != nil {
		if ctxErr := request.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		networkErr := &NetworkError{URL: request.URL.String(), Err: responseErr}
		client.logger.Warn(logEventUpstreamNetwork, zap.String("url", networkErr.URL), zap.Error(responseErr))
		client.notify(networkErr.Description())
		return networkErr
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		errorBody, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		apiErr := newAPIError(response.StatusCode, errorBody)
		client.logger.Warn(logEventUpstreamError,
			zap.Int("status", apiErr.StatusCode),
			zap.String("message", apiErr.Message),
			zap.String("url", request.URL.String()),
		)
		client.notify(apiErr.Message)
		return apiErr
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(target); decodeErr != nil {
		return fmt.Errorf("apiclient: decode response: %w", decodeErr)
	}
	return nil
}

func (client *Client) notify(message string) {
	if client.notices == nil {
		return
	}
	client.notices.Publish(message, events.NoticeTypeError)
}
