package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"callpanel/internal/api"
	"callpanel/internal/config"
	"callpanel/internal/logging"
	"callpanel/internal/workflow"
)

const serviceName = "callpaneld"

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	echo   *echo.Echo

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}
	srv.echo = srv.routes()
	return srv
}

func (s *apiServer) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(s.requestID)
	e.Use(s.requestLogger)

	e.GET("/api/health", s.handleHealth)

	g := e.Group("/api", s.authMiddleware)
	g.GET("/status", s.handleStatus)
	g.GET("/stats", s.handleStats)
	g.GET("/records", s.handleListRecords)
	g.POST("/records", s.handleCreateRecord)
	g.GET("/records/:id", s.handleRecordDetail)
	g.POST("/records/:id/filters/:n/start", s.handleStartFilter)
	g.POST("/records/:id/filters/:n/finish", s.handleFinishFilter)
	g.POST("/records/:id/cancel", s.handleCancelRecord)
	g.POST("/records/:id/lease/renew", s.handleRenewLease)
	return e
}

// Handler exposes the routed echo instance for in-process callers.
func (s *apiServer) Handler() http.Handler {
	return s.echo
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.log().Info("api server disabled; no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) engine() *workflow.Engine {
	return s.daemon.engine
}

func (s *apiServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, api.HealthResponse{
		OK:      true,
		Service: serviceName,
		Time:    s.engine().Now().UTC().Format(time.RFC3339),
	})
}

func (s *apiServer) handleStatus(c echo.Context) error {
	status := s.daemon.Status(c.Request().Context())
	if status.StatsError != nil {
		return status.StatsError
	}
	db := status.Database
	return c.JSON(http.StatusOK, api.DaemonStatus{
		Running:              status.Running,
		PID:                  status.PID,
		LockFilePath:         status.LockFilePath,
		LeaseTTLSeconds:      int(s.engine().LeaseTTL() / time.Second),
		SweepIntervalSeconds: int(s.daemon.cfg.SweepInterval() / time.Second),
		Database: api.DatabaseHealth{
			Driver:         db.Driver,
			Target:         db.Target,
			Readable:       db.Readable,
			SchemaVersion:  db.SchemaVersion,
			IntegrityCheck: db.IntegrityCheck,
			TotalRecords:   db.TotalRecords,
			ActiveLeases:   db.ActiveLeases,
			Error:          db.Error,
		},
		Stats: api.FromStats(status.Stats),
	})
}

func (s *apiServer) handleStats(c echo.Context) error {
	stats, err := s.engine().Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.FromStats(stats))
}

func (s *apiServer) handleListRecords(c echo.Context) error {
	list, err := s.engine().List(c.Request().Context())
	if err != nil {
		return err
	}
	records := api.FromSummaries(list, s.engine().Now())
	if records == nil {
		records = []api.RecordSummary{}
	}
	return c.JSON(http.StatusOK, api.RecordListResponse{Records: records})
}

func (s *apiServer) handleCreateRecord(c echo.Context) error {
	var req api.CreateRecordRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	due, err := api.ParseDueAt(req.NextDueAt)
	if err != nil {
		return badRequest("bad_next_due", err.Error())
	}
	detail, err := s.engine().Create(c.Request().Context(), workflow.NewRecord{
		Agent:      req.Agent,
		Group:      req.Group,
		Visibility: req.Visibility,
		NextDueAt:  due,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.RecordDetailResponse{Detail: api.FromDetail(detail, s.engine().Now())})
}

func (s *apiServer) handleRecordDetail(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	detail, err := s.engine().Detail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return s.writeDetail(c, detail)
}

func (s *apiServer) handleStartFilter(c echo.Context) error {
	id, n, err := recordAndFilter(c)
	if err != nil {
		return err
	}
	detail, err := s.engine().Start(c.Request().Context(), id, n, actorFrom(c))
	if err != nil {
		return err
	}
	return s.writeDetail(c, detail)
}

func (s *apiServer) handleFinishFilter(c echo.Context) error {
	id, n, err := recordAndFilter(c)
	if err != nil {
		return err
	}
	var req api.FinishRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	detail, err := s.engine().Finish(c.Request().Context(), id, n, actorFrom(c), req.NextDueMinutes)
	if err != nil {
		return err
	}
	return s.writeDetail(c, detail)
}

func (s *apiServer) handleCancelRecord(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	var req api.CancelRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	detail, err := s.engine().Cancel(c.Request().Context(), id, actorFrom(c), req.Reason)
	if err != nil {
		return err
	}
	return s.writeDetail(c, detail)
}

func (s *apiServer) handleRenewLease(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	l, err := s.engine().Renew(c.Request().Context(), id, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.LeaseResponse{Lease: *api.FromLease(&l, s.engine().Now())})
}

func (s *apiServer) writeDetail(c echo.Context, detail *workflow.Detail) error {
	return c.JSON(http.StatusOK, api.RecordDetailResponse{Detail: api.FromDetail(detail, s.engine().Now())})
}

// bindBody decodes an optional JSON body. An empty body leaves dst untouched.
func bindBody(c echo.Context, dst any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return badRequest("bad_request", "request body is not valid JSON")
	}
	return nil
}

func recordID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("bad_record_id", "record id must be a positive integer")
	}
	return id, nil
}

func recordAndFilter(c echo.Context) (int64, int, error) {
	id, err := recordID(c)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return 0, 0, badRequest(workflow.CodeBadFilterN, "filter must be 1, 2, or 3")
	}
	return id, n, nil
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
