package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"callpanel/internal/api"
)

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Body       api.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Body.Kind, e.Body.Code, e.Body.Message)
	}
	return fmt.Sprintf("api returned status %d", e.StatusCode)
}

// ErrorKind classifies the error the same way the daemon does.
func (e *APIError) ErrorKind() string { return e.Body.Kind }

// CodeOf returns the daemon error code carried by err, or "".
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body.Code
	}
	return ""
}

// IsCode reports whether err is an APIError with one of codes.
func IsCode(err error, codes ...string) bool {
	got := CodeOf(err)
	if got == "" {
		return false
	}
	for _, code := range codes {
		if got == code {
			return true
		}
	}
	return false
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var payload api.ErrorResponse
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Body = payload.Error
	}
	if apiErr.Body.Message == "" {
		apiErr.Body.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
