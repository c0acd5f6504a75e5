package daemon

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"callpanel/internal/api"
	"callpanel/internal/logging"
	"callpanel/internal/workflow"
)

func badRequest(code, message string) error {
	return &workflow.Error{Kind: workflow.KindValidation, Code: code, Message: message}
}

// httpStatus maps an error kind to its response status.
func httpStatus(kind workflow.Kind) int {
	switch kind {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders every failure as an api.ErrorResponse.
func (s *apiServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status  int
		body    api.ErrorBody
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = routeErrorBody(httpErr)
	default:
		kind := workflow.KindOf(err)
		status = httpStatus(kind)
		body = api.FromError(err, s.engine().Now())
		if kind == workflow.KindInternal {
			logger := logging.WithContext(c.Request().Context(), s.log())
			logger.Error("request failed",
				logging.String("method", c.Request().Method),
				logging.String("path", c.Path()),
				logging.Error(err),
			)
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, api.ErrorResponse{Error: body})
	}
	if writeErr != nil {
		s.log().Warn("failed to write error response", logging.Error(writeErr))
	}
}

func routeErrorBody(httpErr *echo.HTTPError) api.ErrorBody {
	message := http.StatusText(httpErr.Code)
	if text, ok := httpErr.Message.(string); ok && text != "" {
		message = text
	}
	switch httpErr.Code {
	case http.StatusUnauthorized:
		return api.ErrorBody{Kind: "unauthorized", Code: "unauthorized", Message: message}
	case http.StatusNotFound:
		return api.ErrorBody{Kind: string(workflow.KindNotFound), Code: "route_not_found", Message: message}
	case http.StatusMethodNotAllowed:
		return api.ErrorBody{Kind: string(workflow.KindValidation), Code: "method_not_allowed", Message: message}
	}
	if httpErr.Code >= http.StatusInternalServerError {
		return api.ErrorBody{Kind: string(workflow.KindInternal), Code: workflow.CodeInternal, Message: "internal error"}
	}
	return api.ErrorBody{Kind: string(workflow.KindValidation), Code: "bad_request", Message: message}
}
