package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"callpanel/internal/logging"
	"callpanel/internal/record"
)

// Identity and correlation headers.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorName = "X-Actor-Name"
	HeaderRequestID = echo.HeaderXRequestID
)

// authMiddleware validates bearer tokens.
// If the token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include an "Authorization: Bearer <token>" header.
func (s *apiServer) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	if s.token == "" {
		return next
	}
	want := []byte(s.token)
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(auth, "Bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		got := []byte(strings.TrimPrefix(auth, "Bearer "))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
		}
		return next(c)
	}
}

// requestID assigns every request a correlation id, honouring one supplied
// by the caller.
func (s *apiServer) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := strings.TrimSpace(req.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(HeaderRequestID, id)

		ctx := logging.WithRequestID(req.Context(), id)
		ctx = logging.WithActorID(ctx, strings.TrimSpace(req.Header.Get(HeaderActorID)))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *apiServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logging.WithContext(c.Request().Context(), s.log()).Debug("api request",
			logging.String("method", c.Request().Method),
			logging.String("path", c.Path()),
			logging.Int("status", c.Response().Status),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	}
}

// actorFrom reads the caller identity headers.
func actorFrom(c echo.Context) record.Actor {
	header := c.Request().Header
	return record.Actor{
		ID:   strings.TrimSpace(header.Get(HeaderActorID)),
		Name: strings.TrimSpace(header.Get(HeaderActorName)),
	}
}
