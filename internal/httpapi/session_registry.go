package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	logEventSessionCreated = "widget_session_created"
	logEventSessionClosed  = "widget_session_closed"
)

var (
	// ErrSessionNotFound indicates an unknown session id, or one owned by another client.
	ErrSessionNotFound = errors.New("httpapi: session not found")
	// ErrAPIURLNotAllowed indicates an embed pointing at a chatbot API the host does not proxy.
	ErrAPIURLNotAllowed = errors.New("httpapi: api url not allowed")
)

// ChatbotAPIFactory builds the upstream client of one session. Failed requests are published
// on notices.
type ChatbotAPIFactory func(baseURL string, notices *events.NoticeBus) (widget.ChatbotAPI, error)

// SessionRegistryConfig wires a SessionRegistry.
type SessionRegistryConfig struct {
	Backend        storage.Backend
	APIFactory     ChatbotAPIFactory
	DefaultAPIURL  string
	AllowedAPIURLs []string
	ReplyDelay     time.Duration
	Logger         *zap.Logger
	Metrics        *Metrics
	Clock          func() time.Time
}

// HostedSession is a widget session served over HTTP together with its event fan-out.
type HostedSession struct {
	ID        string
	Namespace string
	Embed     widget.EmbedConfig
	Session   *widget.Session
	Events    *events.Broadcaster[widget.SessionEvent]
	Notices   *events.NoticeBus
}

// SessionRegistry owns every hosted widget session.
type SessionRegistry struct {
	mutex    sync.Mutex
	sessions map[string]*HostedSession

	backend        storage.Backend
	apiFactory     ChatbotAPIFactory
	defaultAPIURL  string
	allowedAPIURLs map[string]struct{}
	replyDelay     time.Duration
	logger         *zap.Logger
	metrics        *Metrics
	clock          func() time.Time
}

// NewSessionRegistry builds an empty registry. The configured API URL is always allowed.
func NewSessionRegistry(config SessionRegistryConfig) *SessionRegistry {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	defaultAPIURL := normalizeAPIURL(config.DefaultAPIURL)
	if defaultAPIURL == "" {
		defaultAPIURL = widget.DefaultAPIBaseURL
	}
	allowedAPIURLs := map[string]struct{}{defaultAPIURL: {}}
	for _, allowedAPIURL := range config.AllowedAPIURLs {
		if normalized := normalizeAPIURL(allowedAPIURL); normalized != "" {
			allowedAPIURLs[normalized] = struct{}{}
		}
	}
	return &SessionRegistry{
		sessions:       make(map[string]*HostedSession),
		backend:        config.Backend,
		apiFactory:     config.APIFactory,
		defaultAPIURL:  defaultAPIURL,
		allowedAPIURLs: allowedAPIURLs,
		replyDelay:     config.ReplyDelay,
		logger:         logger,
		metrics:        config.Metrics,
		clock:          clock,
	}
}

// Create starts a widget session for a visitor namespace.
func (registry *SessionRegistry) Create(ctx context.Context, namespace string, embed widget.EmbedConfig, history []model.Message) (*HostedSession, error) {
	if strings.TrimSpace(embed.APIURL) == "" {
		embed.APIURL = registry.defaultAPIURL
	}
	resolvedEmbed, resolveErr := embed.Resolve()
	if resolveErr != nil {
		return nil, resolveErr
	}
	if _, allowed := registry.allowedAPIURLs[resolvedEmbed.APIURL]; !allowed {
		return nil, fmt.Errorf("%w: %s", ErrAPIURLNotAllowed, resolvedEmbed.APIURL)
	}

	store, namespaceErr := registry.backend.Namespace(namespace)
	if namespaceErr != nil {
		return nil, namespaceErr
	}

	notices := events.NewNoticeBus()
	chatbotAPI, factoryErr := registry.apiFactory(resolvedEmbed.APIURL, notices)
	if factoryErr != nil {
		notices.Close()
		return nil, factoryErr
	}

	sessionEvents := events.NewBroadcaster[widget.SessionEvent]()
	observer := func(event widget.SessionEvent) {
		registry.metrics.observeSessionEvent(event)
		sessionEvents.Broadcast(event)
	}
	widgetSession, sessionErr := widget.NewSession(ctx, widget.SessionConfig{
		ChatbotID:  resolvedEmbed.ChatbotID,
		Store:      store,
		API:        chatbotAPI,
		Logger:     registry.logger,
		ReplyDelay: registry.replyDelay,
		History:    history,
		Observer:   observer,
		Clock:      registry.clock,
	})
	if sessionErr != nil {
		sessionEvents.Close()
		notices.Close()
		return nil, sessionErr
	}

	hosted := &HostedSession{
		ID:        storage.NewID(),
		Namespace: strings.TrimSpace(namespace),
		Embed:     resolvedEmbed,
		Session:   widgetSession,
		Events:    sessionEvents,
		Notices:   notices,
	}
	registry.mutex.Lock()
	registry.sessions[hosted.ID] = hosted
	sessionCount := len(registry.sessions)
	registry.mutex.Unlock()
	registry.metrics.setActiveSessions(sessionCount)

	registry.logger.Info(logEventSessionCreated,
		zap.String("session_id", hosted.ID),
		zap.String("chatbot_id", resolvedEmbed.ChatbotID),
		zap.String("device_id", widgetSession.DeviceID()),
	)
	return hosted, nil
}

// Get returns the session if it exists and belongs to namespace. A successful lookup counts as
// visitor activity.
func (registry *SessionRegistry) Get(sessionID string, namespace string) (*HostedSession, error) {
	registry.mutex.Lock()
	hosted, found := registry.sessions[sessionID]
	registry.mutex.Unlock()
	if !found || hosted.Namespace != strings.TrimSpace(namespace) {
		return nil, ErrSessionNotFound
	}
	hosted.Session.Touch()
	return hosted, nil
}

// Remove closes and forgets a session owned by namespace.
func (registry *SessionRegistry) Remove(sessionID string, namespace string) error {
	registry.mutex.Lock()
	hosted, found := registry.sessions[sessionID]
	if !found || hosted.Namespace != strings.TrimSpace(namespace) {
		registry.mutex.Unlock()
		return ErrSessionNotFound
	}
	delete(registry.sessions, sessionID)
	sessionCount := len(registry.sessions)
	registry.mutex.Unlock()

	registry.metrics.setActiveSessions(sessionCount)
	registry.closeHosted(hosted)
	return nil
}

// EvictIdle closes sessions whose last visitor action is older than cutoff. A session with an
// open event stream is still being watched and is kept.
func (registry *SessionRegistry) EvictIdle(cutoff time.Time) int {
	registry.mutex.Lock()
	var evicted []*HostedSession
	for sessionID, hosted := range registry.sessions {
		if hosted.Events.SubscriberCount() > 0 {
			continue
		}
		if hosted.Session.LastActive().Before(cutoff) {
			evicted = append(evicted, hosted)
			delete(registry.sessions, sessionID)
		}
	}
	sessionCount := len(registry.sessions)
	registry.mutex.Unlock()

	for _, hosted := range evicted {
		registry.closeHosted(hosted)
	}
	registry.metrics.setActiveSessions(sessionCount)
	registry.metrics.addEvicted(len(evicted))
	return len(evicted)
}

// Len reports the number of hosted sessions.
func (registry *SessionRegistry) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.sessions)
}

// Close shuts every session down.
func (registry *SessionRegistry) Close() {
	registry.mutex.Lock()
	hostedSessions := registry.sessions
	registry.sessions = make(map[string]*HostedSession)
	registry.mutex.Unlock()
	for _, hosted := range hostedSessions {
		registry.closeHosted(hosted)
	}
	registry.metrics.setActiveSessions(0)
}

func (registry *SessionRegistry) closeHosted(hosted *HostedSession) {
	hosted.Session.Close()
	hosted.Events.Close()
	hosted.Notices.Close()
	registry.logger.Info(logEventSessionClosed, zap.String("session_id", hosted.ID))
}

func normalizeAPIURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}
