package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultErrorMessage = "An error occurred"
	networkErrorPattern = "Network Error: Unable to connect to server at %s. Please check your internet connection and verify the backend URL is correct."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request: Invalid data provided",
	http.StatusUnauthorized:        "Unauthorized: Please login again",
	http.StatusForbidden:           "Forbidden: You do not have permission",
	http.StatusNotFound:            "Not Found: The requested resource was not found",
	http.StatusInternalServerError: "Server Error: Something went wrong on the server",
	http.StatusBadGateway:          "Bad Gateway: Server is temporarily unavailable",
	http.StatusServiceUnavailable:  "Service Unavailable: Server is under maintenance",
}

// APIError is a non-2xx answer from the chatbot API.
type APIError struct {
	StatusCode int
	// Message is the best visitor-facing description: the body's "error" field, then its
	// "message" field, then a plain-text body, then a per-status default.
	Message string
	// ServerError is the body's "error" field, if any.
	ServerError string
	Body        []byte
}

func (apiErr *APIError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", apiErr.StatusCode, apiErr.Message)
}

// VisitorMessage exposes the server-provided error text for the chat error bubble. It is empty
// when the server did not send one.
func (apiErr *APIError) VisitorMessage() string {
	return apiErr.ServerError
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: body}

	var errorPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errorPayload) == nil {
		apiErr.ServerError = strings.TrimSpace(errorPayload.Error)
		apiErr.Message = apiErr.ServerError
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(errorPayload.Message)
		}
	} else if plainText := strings.TrimSpace(string(body)); plainText != "" {
		apiErr.Message = plainText
	}

	if apiErr.Message == "" {
		apiErr.Message = describeStatus(statusCode)
	}
	return apiErr
}

func describeStatus(statusCode int) string {
	if message, known := statusMessages[statusCode]; known {
		return message
	}
	return fmt.Sprintf("Error %d: %s", statusCode, defaultErrorMessage)
}

// NetworkError is a request that produced no HTTP response.
type NetworkError struct {
	URL string
	Err error
}

func (networkErr *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork.Error(), networkErr.URL, networkErr.Err)
}

func (networkErr *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, networkErr.Err}
}

// Description is the notice text for the connection failure.
func (networkErr *NetworkError) Description() string {
	return fmt.Sprintf(networkErrorPattern, networkErr.URL)
}
