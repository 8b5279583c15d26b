package httpapi

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

const (
	routeParamChatbotID       = "chatbotId"
	queryParamPosition        = "position"
	contentTypeHTML           = "text/html; charset=utf-8"
	logEventRenderPreviewPage = "render_preview_page_failed"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Chatbot preview</title>
<style>body{margin:0;min-height:100vh;font-family:system-ui,sans-serif;background:#f3f4f6;color:#111827}main{padding:32px}</style>
</head>
<body>
<main>
<h1>Chatbot preview</h1>
<p>The widget below runs against chatbot <code>{{.ChatbotID}}</code>.</p>
</main>
<script>
window.Chatbot_API = {chatbotId: {{.ChatbotID}}, position: {{.Position}}{{if .APIURL}}, apiUrl: {{.APIURL}}{{end}}};
</script>
<script src="/chatbot-widget.js" defer></script>
</body>
</html>
`))

type previewPageData struct {
	ChatbotID string
	Position  string
	APIURL    string
}

// PreviewHandlers renders a bare page hosting the widget for one chatbot.
type PreviewHandlers struct {
	apiURL string
	logger *zap.Logger
}

// NewPreviewHandlers renders preview pages whose embeds point at apiURL.
func NewPreviewHandlers(apiURL string, logger *zap.Logger) *PreviewHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewHandlers{apiURL: strings.TrimSpace(apiURL), logger: logger}
}

func (handlers *PreviewHandlers) RenderPreview(ginContext *gin.Context) {
	chatbotID := strings.TrimSpace(ginContext.Param(routeParamChatbotID))
	if chatbotID == "" {
		ginContext.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueMissingChatbotID})
		return
	}
	var rendered bytes.Buffer
	renderErr := previewTemplate.Execute(&rendered, previewPageData{
		ChatbotID: chatbotID,
		Position:  model.NormalizeWidgetPosition(ginContext.Query(queryParamPosition)),
		APIURL:    handlers.apiURL,
	})
	if renderErr != nil {
		handlers.logger.Error(logEventRenderPreviewPage, zap.Error(renderErr))
		ginContext.Status(http.StatusInternalServerError)
		return
	}
	ginContext.Data(http.StatusOK, contentTypeHTML, rendered.Bytes())
}
