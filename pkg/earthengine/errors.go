package earthengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"

	"github.com/sells-group/lakewatch/internal/resilience"
)

// ErrNotAuthenticated means the credentials are missing, expired, or not
// registered for Earth Engine. Retrying does not help; the operator has to
// fix the credentials.
var ErrNotAuthenticated = eris.New("earthengine: not authenticated")

// APIError is the error body returned by the Earth Engine REST API.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("earthengine: %d %s: %s", e.HTTPStatus, e.Status, e.Message)
}

// authMarkers are message fragments Earth Engine uses for credential problems.
var authMarkers = []string{
	"not logged in",
	"unauthenticated",
	"not registered",
	"invalid authentication credentials",
	"request had insufficient authentication scopes",
}

// IsAuthError reports whether err is an authentication failure, either by
// HTTP status or by message.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized {
		return true
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// emptyCollectionMarkers are message fragments Earth Engine returns when a
// composite of an empty collection is used: the median image has no bands,
// so selecting or reducing one fails.
var emptyCollectionMarkers = []string{
	"no bands",
	"did not match any bands",
	"empty collection",
}

// IsEmptyCollection reports whether Earth Engine rejected a computation
// because a composite had no bands, which happens when no image passed the
// filters.
func IsEmptyCollection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range emptyCollectionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// decodeError turns a non-2xx response into an error. Transient statuses
// are wrapped in resilience.TransientError and credential problems in
// ErrNotAuthenticated.
func decodeError(statusCode int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	apiErr := &APIError{HTTPStatus: statusCode, Code: statusCode, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr = envelope.Error
		apiErr.HTTPStatus = statusCode
	}

	switch {
	case resilience.IsTransientHTTPStatus(statusCode):
		return resilience.NewTransientError(apiErr, statusCode)
	case statusCode == http.StatusUnauthorized || IsAuthError(apiErr):
		return eris.Wrap(ErrNotAuthenticated, apiErr.Error())
	default:
		return apiErr
	}
}
