package httpapi

import (
	"bytes"
	_ "embed"
	"net/http"
	"strings"
	"text/template"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contentTypeJavaScript      = "application/javascript; charset=utf-8"
	headerForwardedProto       = "X-Forwarded-Proto"
	headerVary                 = "Vary"
	widgetScriptCacheControl   = "public, max-age=300"
	logEventRenderWidgetScript = "render_widget_script_failed"
)

//go:embed assets/chatbot-widget.js
var widgetScriptSource string

var widgetScriptTemplate = template.Must(template.New("chatbot-widget.js").Parse(widgetScriptSource))

type widgetScriptData struct {
	HostURL string
}

// WidgetScriptHandlers serves the embeddable script.
type WidgetScriptHandlers struct {
	publicBaseURL string
	logger        *zap.Logger
}

// NewWidgetScriptHandlers builds the handler. An empty publicBaseURL makes the script call back
// to the host the script was requested from.
func NewWidgetScriptHandlers(publicBaseURL string, logger *zap.Logger) *WidgetScriptHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WidgetScriptHandlers{publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"), logger: logger}
}

// WidgetJS renders the script. Without a public base URL the body depends on the request host,
// so caches must key on it.
func (handlers *WidgetScriptHandlers) WidgetJS(ginContext *gin.Context) {
	var rendered bytes.Buffer
	if renderErr := widgetScriptTemplate.Execute(&rendered, widgetScriptData{HostURL: handlers.hostURL(ginContext.Request)}); renderErr != nil {
		handlers.logger.Error(logEventRenderWidgetScript, zap.Error(renderErr))
		ginContext.Status(http.StatusInternalServerError)
		return
	}
	ginContext.Header(headerCacheControl, widgetScriptCacheControl)
	if handlers.publicBaseURL == "" {
		ginContext.Header(headerVary, "Host, "+headerForwardedProto)
	}
	ginContext.Data(http.StatusOK, contentTypeJavaScript, rendered.Bytes())
}

func (handlers *WidgetScriptHandlers) hostURL(request *http.Request) string {
	if handlers.publicBaseURL != "" {
		return handlers.publicBaseURL
	}
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	if forwardedProto := strings.TrimSpace(request.Header.Get(headerForwardedProto)); forwardedProto != "" {
		scheme = forwardedProto
	}
	return scheme + "://" + request.Host
}
