package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	jsonKeyError = "error"

	errorValueInvalidJSON         = "invalid_json"
	errorValueSessionNotFound     = "session_not_found"
	errorValueSessionClosed       = "session_closed"
	errorValueMissingChatbotID    = "missing_chatbot_id"
	errorValueMissingClient       = "missing_client"
	errorValueAPIURLNotAllowed    = "api_url_not_allowed"
	errorValueEmptyMessage        = "empty_message"
	errorValueEmptyTaskText       = "empty_task_text"
	errorValueUnknownTab          = "unknown_tab"
	errorValueInvalidIndex        = "invalid_index"
	errorValueIndexOutOfRange     = "index_out_of_range"
	errorValueSendInFlight        = "send_in_flight"
	errorValueWelcomePopupActive  = "welcome_popup_active"
	errorValueChatbotUnavailable  = "chatbot_unavailable"
	errorValueRateLimited         = "rate_limited"
	errorValueStreamUnavailable   = "stream_unavailable"
	errorValueInternalServerError = "internal_error"

	logEventRequestFailed = "widget_request_failed"
)

type errorMapping struct {
	target error
	status int
	value  string
}

var widgetErrorMappings = []errorMapping{
	{target: ErrSessionNotFound, status: http.StatusNotFound, value: errorValueSessionNotFound},
	{target: ErrAPIURLNotAllowed, status: http.StatusBadRequest, value: errorValueAPIURLNotAllowed},
	{target: storage.ErrMissingNamespace, status: http.StatusBadRequest, value: errorValueMissingClient},
	{target: storage.ErrNamespaceTooLong, status: http.StatusBadRequest, value: errorValueMissingClient},
	{target: widget.ErrSessionClosed, status: http.StatusGone, value: errorValueSessionClosed},
	{target: widget.ErrMissingChatbotID, status: http.StatusBadRequest, value: errorValueMissingChatbotID},
	{target: widget.ErrEmptyMessage, status: http.StatusBadRequest, value: errorValueEmptyMessage},
	{target: widget.ErrEmptyTaskText, status: http.StatusBadRequest, value: errorValueEmptyTaskText},
	{target: widget.ErrUnknownTab, status: http.StatusBadRequest, value: errorValueUnknownTab},
	{target: widget.ErrTaskIndexOutOfRange, status: http.StatusNotFound, value: errorValueIndexOutOfRange},
	{target: widget.ErrConversationIndexOutOfRange, status: http.StatusNotFound, value: errorValueIndexOutOfRange},
	{target: widget.ErrSendInFlight, status: http.StatusConflict, value: errorValueSendInFlight},
	{target: widget.ErrWelcomePopupActive, status: http.StatusLocked, value: errorValueWelcomePopupActive},
	{target: widget.ErrChatbotUnavailable, status: http.StatusServiceUnavailable, value: errorValueChatbotUnavailable},
}

// respondWithError maps domain errors to status codes. Unknown errors are logged and reported
// as internal errors.
func respondWithError(ginContext *gin.Context, logger *zap.Logger, requestErr error) {
	for _, mapping := range widgetErrorMappings {
		if errors.Is(requestErr, mapping.target) {
			ginContext.AbortWithStatusJSON(mapping.status, gin.H{jsonKeyError: mapping.value})
			return
		}
	}
	if logger != nil {
		logger.Error(logEventRequestFailed, zap.String("path", ginContext.FullPath()), zap.Error(requestErr))
	}
	ginContext.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueInternalServerError})
}
