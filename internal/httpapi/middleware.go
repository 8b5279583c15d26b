package httpapi

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
)

const (
	// WidgetClientHeader carries the visitor namespace the embed script keeps in its own
	// localStorage.
	WidgetClientHeader = "X-Widget-Client"
	// WidgetClientQueryParameter carries the same value for EventSource requests, which cannot
	// set headers.
	WidgetClientQueryParameter = "client"

	clientCookieName          = "chatbotwidget_client"
	clientCookieValueKey      = "client_id"
	clientCookieMaxAgeSeconds = 365 * 24 * 60 * 60
	contextKeyWidgetClient    = "httpapi_widget_client"

	logEventHTTPRequest       = "http"
	logEventClientCookieSave  = "client_cookie_save_failed"
	logEventClientCookieLoad  = "client_cookie_load_failed"
	logEventRateLimitExceeded = "rate_limit_exceeded"
)

var widgetClientExpression = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_-]{8,%d}$`, model.MaxStorageNamespaceLength))

// RequestLogger logs one structured entry per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		start := time.Now()
		ginContext.Next()
		logger.Info(logEventHTTPRequest,
			zap.String("method", ginContext.Request.Method),
			zap.String("path", ginContext.Request.URL.Path),
			zap.String("route", ginContext.FullPath()),
			zap.Int("status", ginContext.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", ginContext.ClientIP()),
			zap.String("ua", ginContext.Request.UserAgent()),
		)
	}
}

// NewClientCookieStore builds the signed cookie store that identifies same-origin visitors.
func NewClientCookieStore(sessionSecret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   clientCookieMaxAgeSeconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// WidgetClientMiddleware resolves the storage namespace of the calling visitor: the
// X-Widget-Client header or client query parameter when present, otherwise a client id held in
// a signed cookie, issued on first contact.
func WidgetClientMiddleware(cookieStore sessions.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		headerValue := strings.TrimSpace(ginContext.GetHeader(WidgetClientHeader))
		if headerValue == "" {
			headerValue = strings.TrimSpace(ginContext.Query(WidgetClientQueryParameter))
		}
		if headerValue != "" {
			if !widgetClientExpression.MatchString(headerValue) {
				ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueMissingClient})
				return
			}
			ginContext.Set(contextKeyWidgetClient, headerValue)
			ginContext.Next()
			return
		}

		clientSession, loadErr := cookieStore.Get(ginContext.Request, clientCookieName)
		if loadErr != nil {
			// A cookie signed with a rotated secret decodes with an error but still yields a
			// fresh session.
			logger.Debug(logEventClientCookieLoad, zap.Error(loadErr))
		}
		clientID, _ := clientSession.Values[clientCookieValueKey].(string)
		if !widgetClientExpression.MatchString(clientID) {
			clientID = storage.NewID()
			clientSession.Values[clientCookieValueKey] = clientID
			if saveErr := clientSession.Save(ginContext.Request, ginContext.Writer); saveErr != nil {
				logger.Warn(logEventClientCookieSave, zap.Error(saveErr))
				ginContext.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueInternalServerError})
				return
			}
		}
		ginContext.Set(contextKeyWidgetClient, clientID)
		ginContext.Next()
	}
}

func widgetClientFromContext(ginContext *gin.Context) string {
	return ginContext.GetString(contextKeyWidgetClient)
}

// RateLimitMiddleware rejects requests once the caller's namespace exhausts its token bucket.
func RateLimitMiddleware(limiters *ClientRateLimiters, metrics *Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		clientKey := widgetClientFromContext(ginContext)
		if clientKey == "" {
			clientKey = ginContext.ClientIP()
		}
		if !limiters.Allow(clientKey) {
			metrics.recordSend(sendOutcomeRateLimited)
			logger.Debug(logEventRateLimitExceeded, zap.String("client", clientKey))
			ginContext.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{jsonKeyError: errorValueRateLimited})
			return
		}
		ginContext.Next()
	}
}
