package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sxvrs/internal/config"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/recorder"
	"sxvrs/internal/services"
)

// cameraService is the part of the daemon the HTTP API reads and drives.
type cameraService interface {
	Status(ctx context.Context) Status
	Cameras() []recorder.Status
	Camera(name string) (recorder.Status, error)
	RecordStart(name string) (recorder.Status, error)
	RecordStop(name string) (recorder.Status, error)
	History(ctx context.Context, q journal.Query) ([]journal.Event, error)
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	svc    cameraService
	router *gin.Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, svc cameraService, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || svc == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		svc:    svc,
		router: newRouter(cfg.API.Token),
	}
	srv.routes()

	srv.server = &http.Server{
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func newRouter(token string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), bearerAuth(token))
	return router
}

func (s *apiServer) routes() {
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/history", s.handleHistory)
	api.GET("/cameras", s.handleCameras)
	api.GET("/cameras/:name", s.handleCamera)
	api.GET("/cameras/:name/snapshot", s.handleSnapshot)
	api.POST("/cameras/:name/record/start", s.handleRecord(s.svc.RecordStart))
	api.POST("/cameras/:name/record/stop", s.handleRecord(s.svc.RecordStop))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status(c.Request.Context()))
}

func (s *apiServer) handleCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.svc.Cameras()})
}

func (s *apiServer) handleCamera(c *gin.Context) {
	st, err := s.svc.Camera(c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *apiServer) handleSnapshot(c *gin.Context) {
	st, err := s.svc.Camera(c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if st.Snapshot == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	if _, err := os.Stat(st.Snapshot); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot file missing"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "image/jpeg")
	c.File(st.Snapshot)
}

func (s *apiServer) handleRecord(fn func(string) (recorder.Status, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := fn(c.Param("name"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		s.log().Info("record command applied",
			logging.String(logging.FieldCamera, st.Name),
			logging.String("path", c.FullPath()),
		)
		c.JSON(http.StatusOK, st)
	}
}

func (s *apiServer) handleHistory(c *gin.Context) {
	q := journal.Query{
		Camera: strings.TrimSpace(c.Query("camera")),
		Kind:   journal.Kind(strings.TrimSpace(c.Query("kind"))),
	}
	if value := c.Query("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = limit
	}
	if value := c.Query("since"); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since (use RFC3339)"})
			return
		}
		q.Since = since
	}
	events, err := s.svc.History(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *apiServer) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log().Error("api request failed", logging.String("path", c.Request.URL.Path), logging.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
