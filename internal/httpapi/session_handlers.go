package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	routeParamSessionID = "id"
	routeParamIndex     = "index"

	sseEventSnapshot = "snapshot"
	sseEventNotices  = "notices"

	logEventMarshalSessionEvent = "marshal_session_event_failed"
)

// SessionHandlers serves the widget session JSON API.
type SessionHandlers struct {
	registry *SessionRegistry
	logger   *zap.Logger
	metrics  *Metrics
}

// NewSessionHandlers serves the widget session API from registry.
func NewSessionHandlers(registry *SessionRegistry, logger *zap.Logger, metrics *Metrics) *SessionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandlers{registry: registry, logger: logger, metrics: metrics}
}

type createSessionRequest struct {
	ChatbotID string          `json:"chatbotId"`
	Position  string          `json:"position"`
	APIURL    string          `json:"apiUrl"`
	History   []model.Message `json:"history"`
}

type sessionResponse struct {
	SessionID string             `json:"sessionId"`
	Embed     widget.EmbedConfig `json:"embed"`
	Snapshot  widget.Snapshot    `json:"snapshot"`
}

type switchTabRequest struct {
	Tab string `json:"tab"`
}

type openChatRequest struct {
	Index *int `json:"index"`
}

type textRequest struct {
	Text *string `json:"text"`
}

func (handlers *SessionHandlers) CreateSession(ginContext *gin.Context) {
	var request createSessionRequest
	if bindErr := ginContext.ShouldBindJSON(&request); bindErr != nil {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	hosted, createErr := handlers.registry.Create(
		ginContext.Request.Context(),
		widgetClientFromContext(ginContext),
		widget.EmbedConfig{ChatbotID: request.ChatbotID, Position: request.Position, APIURL: request.APIURL},
		request.History,
	)
	if createErr != nil {
		respondWithError(ginContext, handlers.logger, createErr)
		return
	}
	ginContext.JSON(http.StatusCreated, sessionResponse{SessionID: hosted.ID, Embed: hosted.Embed, Snapshot: hosted.Session.Snapshot()})
}

func (handlers *SessionHandlers) GetSession(ginContext *gin.Context) {
	hosted, found := handlers.lookup(ginContext)
	if !found {
		return
	}
	ginContext.JSON(http.StatusOK, sessionResponse{SessionID: hosted.ID, Embed: hosted.Embed, Snapshot: hosted.Session.Snapshot()})
}

func (handlers *SessionHandlers) DeleteSession(ginContext *gin.Context) {
	if removeErr := handlers.registry.Remove(ginContext.Param(routeParamSessionID), widgetClientFromContext(ginContext)); removeErr != nil {
		respondWithError(ginContext, handlers.logger, removeErr)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (handlers *SessionHandlers) DismissWelcome(ginContext *gin.Context) {
	handlers.mutate(ginContext, func(session *widget.Session) error {
		return session.DismissWelcome()
	})
}

func (handlers *SessionHandlers) SwitchTab(ginContext *gin.Context) {
	var request switchTabRequest
	if !bindJSON(ginContext, &request) {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		tab, parseErr := widget.ParseTab(request.Tab)
		if parseErr != nil {
			return parseErr
		}
		return session.SwitchTab(tab)
	})
}

// OpenChat enters the chat view; with an index it opens that history summary.
func (handlers *SessionHandlers) OpenChat(ginContext *gin.Context) {
	var request openChatRequest
	if ginContext.Request.ContentLength != 0 && !bindJSON(ginContext, &request) {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		if request.Index == nil {
			return session.OpenChat()
		}
		return session.OpenHistoryMessage(*request.Index)
	})
}

func (handlers *SessionHandlers) ShowMessageList(ginContext *gin.Context) {
	handlers.mutate(ginContext, func(session *widget.Session) error {
		return session.ShowMessageList()
	})
}

func (handlers *SessionHandlers) UpdateDraft(ginContext *gin.Context) {
	var request textRequest
	if !bindJSON(ginContext, &request) {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		if request.Text == nil {
			return session.SetDraft("")
		}
		return session.SetDraft(*request.Text)
	})
}

// SendMessage sends the given text, or the stored draft when the body has no text. The upstream
// call outlives a disconnecting client so the reply still lands in the thread.
func (handlers *SessionHandlers) SendMessage(ginContext *gin.Context) {
	var request textRequest
	if ginContext.Request.ContentLength != 0 && !bindJSON(ginContext, &request) {
		return
	}
	hosted, found := handlers.lookup(ginContext)
	if !found {
		return
	}
	sendContext := context.WithoutCancel(ginContext.Request.Context())
	var sendErr error
	if request.Text == nil {
		sendErr = hosted.Session.SendDraft(sendContext)
	} else {
		sendErr = hosted.Session.SendMessage(sendContext, *request.Text)
	}
	if sendErr != nil {
		handlers.metrics.recordSend(sendOutcomeRejected)
		respondWithError(ginContext, handlers.logger, sendErr)
		return
	}
	ginContext.JSON(http.StatusAccepted, hosted.Session.Snapshot())
}

func (handlers *SessionHandlers) AddTask(ginContext *gin.Context) {
	var request textRequest
	if !bindJSON(ginContext, &request) {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		if request.Text == nil {
			return widget.ErrEmptyTaskText
		}
		return session.AddTask(*request.Text)
	})
}

func (handlers *SessionHandlers) ToggleTask(ginContext *gin.Context) {
	index, parsed := parseIndexParam(ginContext)
	if !parsed {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		return session.ToggleTask(index)
	})
}

func (handlers *SessionHandlers) RemoveTask(ginContext *gin.Context) {
	index, parsed := parseIndexParam(ginContext)
	if !parsed {
		return
	}
	handlers.mutate(ginContext, func(session *widget.Session) error {
		return session.RemoveTask(index)
	})
}

// StreamSessionEvents pushes the current snapshot, then every session event, until the client
// disconnects or the session closes.
func (handlers *SessionHandlers) StreamSessionEvents(ginContext *gin.Context) {
	hosted, found := handlers.lookup(ginContext)
	if !found {
		return
	}
	subscription := hosted.Events.Subscribe()
	if subscription == nil {
		respondWithError(ginContext, handlers.logger, widget.ErrSessionClosed)
		return
	}
	defer subscription.Close()

	flusher, streaming := openEventStream(ginContext)
	if !streaming {
		return
	}
	handlers.metrics.streamOpened()
	defer handlers.metrics.streamClosed()

	if writeErr := writeEvent(ginContext, flusher, sseEventSnapshot, hosted.Session.Snapshot()); writeErr != nil {
		return
	}
	requestContext := ginContext.Request.Context()
	for {
		select {
		case <-requestContext.Done():
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if writeErr := writeEvent(ginContext, flusher, string(event.Kind), event); writeErr != nil {
				handlers.logger.Debug(logEventMarshalSessionEvent, zap.String("session_id", hosted.ID), zap.Error(writeErr))
				return
			}
		}
	}
}

// StreamNotices pushes the active notice list of a session each time it changes.
func (handlers *SessionHandlers) StreamNotices(ginContext *gin.Context) {
	hosted, found := handlers.lookup(ginContext)
	if !found {
		return
	}
	subscription := hosted.Notices.Subscribe()
	if subscription == nil {
		respondWithError(ginContext, handlers.logger, widget.ErrSessionClosed)
		return
	}
	defer subscription.Close()

	flusher, streaming := openEventStream(ginContext)
	if !streaming {
		return
	}
	handlers.metrics.streamOpened()
	defer handlers.metrics.streamClosed()

	if writeErr := writeEvent(ginContext, flusher, sseEventNotices, hosted.Notices.Active()); writeErr != nil {
		return
	}
	requestContext := ginContext.Request.Context()
	for {
		select {
		case <-requestContext.Done():
			return
		case notices, open := <-subscription.Events():
			if !open {
				return
			}
			if writeErr := writeEvent(ginContext, flusher, sseEventNotices, notices); writeErr != nil {
				return
			}
		}
	}
}

func (handlers *SessionHandlers) lookup(ginContext *gin.Context) (*HostedSession, bool) {
	hosted, lookupErr := handlers.registry.Get(ginContext.Param(routeParamSessionID), widgetClientFromContext(ginContext))
	if lookupErr != nil {
		respondWithError(ginContext, handlers.logger, lookupErr)
		return nil, false
	}
	return hosted, true
}

func (handlers *SessionHandlers) mutate(ginContext *gin.Context, operation func(*widget.Session) error) {
	hosted, found := handlers.lookup(ginContext)
	if !found {
		return
	}
	if operationErr := operation(hosted.Session); operationErr != nil {
		respondWithError(ginContext, handlers.logger, operationErr)
		return
	}
	ginContext.JSON(http.StatusOK, hosted.Session.Snapshot())
}

func bindJSON(ginContext *gin.Context, target any) bool {
	if bindErr := ginContext.ShouldBindJSON(target); bindErr != nil {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return false
	}
	return true
}

func parseIndexParam(ginContext *gin.Context) (int, bool) {
	index, parseErr := strconv.Atoi(ginContext.Param(routeParamIndex))
	if parseErr != nil {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidIndex})
		return 0, false
	}
	return index, true
}
