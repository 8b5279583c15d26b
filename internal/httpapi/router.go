package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	RouteWidgetScript  = "/chatbot-widget.js"
	RoutePreview       = "/preview/:chatbotId"
	RouteMetrics       = "/metrics"
	RouteHealth        = "/healthz"
	RouteSessionPrefix = "/api/widget/sessions"

	routeSession       = "/:id"
	routeWelcome       = "/:id/welcome"
	routeTab           = "/:id/tab"
	routeChat          = "/:id/chat"
	routeList          = "/:id/list"
	routeDraft         = "/:id/draft"
	routeMessages      = "/:id/messages"
	routeTasks         = "/:id/tasks"
	routeTask          = "/:id/tasks/:index"
	routeSessionEvents = "/:id/events"
	routeNoticeEvents  = "/:id/notices"

	corsHeaderContentType = "Content-Type"
	corsMaxAge            = 12 * time.Hour
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsAllowedHeaders = []string{corsHeaderContentType, WidgetClientHeader}
	corsExposedHeaders = []string{corsHeaderContentType}
)

// RouterConfig collects everything the HTTP surface needs.
type RouterConfig struct {
	Logger        *zap.Logger
	Registry      *SessionRegistry
	CookieStore   sessions.Store
	RateLimiters  *ClientRateLimiters
	Metrics       *Metrics
	PublicBaseURL string
	// PreviewAPIURL is handed to the preview page embed; empty uses the host default.
	PreviewAPIURL string
}

// NewRouter assembles the gin engine serving the script, the preview page and the session API.
func NewRouter(config RouterConfig) *gin.Engine {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(config.Metrics.Middleware())
	// Preflight requests match no route, so CORS runs engine-wide.
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	}))

	scriptHandlers := NewWidgetScriptHandlers(config.PublicBaseURL, logger)
	previewHandlers := NewPreviewHandlers(config.PreviewAPIURL, logger)
	sessionHandlers := NewSessionHandlers(config.Registry, logger, config.Metrics)

	router.GET(RouteHealth, func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": config.Registry.Len()})
	})
	router.GET(RouteMetrics, gin.WrapH(config.Metrics.Handler()))
	router.GET(RouteWidgetScript, scriptHandlers.WidgetJS)
	router.GET(RoutePreview, previewHandlers.RenderPreview)

	sessionGroup := router.Group(RouteSessionPrefix)
	sessionGroup.Use(WidgetClientMiddleware(config.CookieStore, logger))
	sessionGroup.POST("", sessionHandlers.CreateSession)
	sessionGroup.GET(routeSession, sessionHandlers.GetSession)
	sessionGroup.DELETE(routeSession, sessionHandlers.DeleteSession)
	sessionGroup.POST(routeWelcome, sessionHandlers.DismissWelcome)
	sessionGroup.POST(routeTab, sessionHandlers.SwitchTab)
	sessionGroup.POST(routeChat, sessionHandlers.OpenChat)
	sessionGroup.POST(routeList, sessionHandlers.ShowMessageList)
	sessionGroup.PUT(routeDraft, sessionHandlers.UpdateDraft)
	sessionGroup.POST(routeMessages, RateLimitMiddleware(config.RateLimiters, config.Metrics, logger), sessionHandlers.SendMessage)
	sessionGroup.POST(routeTasks, sessionHandlers.AddTask)
	sessionGroup.PATCH(routeTask, sessionHandlers.ToggleTask)
	sessionGroup.DELETE(routeTask, sessionHandlers.RemoveTask)
	sessionGroup.GET(routeSessionEvents, sessionHandlers.StreamSessionEvents)
	sessionGroup.GET(routeNoticeEvents, sessionHandlers.StreamNotices)

	return router
}
