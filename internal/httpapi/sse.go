package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerContentType   = "Content-Type"
	headerCacheControl  = "Cache-Control"
	headerConnection    = "Connection"
	contentTypeSSE      = "text/event-stream"
	cacheControlNoCache = "no-cache"
	connectionKeepAlive = "keep-alive"
)

// openEventStream writes the SSE headers and returns the flusher, or answers 503 when the
// writer cannot stream.
func openEventStream(ginContext *gin.Context) (http.Flusher, bool) {
	ginContext.Header(headerContentType, contentTypeSSE)
	ginContext.Header(headerCacheControl, cacheControlNoCache)
	ginContext.Header(headerConnection, connectionKeepAlive)

	flusher, flushable := ginContext.Writer.(http.Flusher)
	if !flushable {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return nil, false
	}
	ginContext.Writer.WriteHeaderNow()
	flusher.Flush()
	return flusher, true
}

// writeEvent sends one named event with a JSON payload.
func writeEvent(ginContext *gin.Context, flusher http.Flusher, eventName string, payload any) error {
	serializedPayload, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return marshalErr
	}
	var buffer bytes.Buffer
	buffer.WriteString("event: ")
	buffer.WriteString(eventName)
	buffer.WriteString("\ndata: ")
	buffer.Write(serializedPayload)
	buffer.WriteString("\n\n")
	if _, writeErr := ginContext.Writer.Write(buffer.Bytes()); writeErr != nil {
		return writeErr
	}
	flusher.Flush()
	return nil
}
