// Package control expose the capture engine as a versioned http api.
package control

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lysShub/gamecap"
	"github.com/lysShub/gamecap/engine"
	"github.com/lysShub/gamecap/metrics"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
)

// Engine capture engine operations
type Engine interface {
	Initialize() bool
	Start(game string, tunnel gamecap.TunnelConfig) bool
	Stop() bool
	IsCapturing() bool
	IsAppRunning(game string) bool
	Metrics() metrics.NetworkMetrics
	SetAppDatabase(entries []gamecap.Game)
	Status() engine.Status
}

var _ Engine = (*engine.Engine)(nil)

type Config struct {
	// StreamInterval metrics stream push interval
	StreamInterval time.Duration
	Logger         *slog.Logger
}

func (c *Config) init() *Config {
	if c.StreamInterval <= 0 {
		c.StreamInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type Server struct {
	config *Config
	engine Engine

	router   *gin.Engine
	upgrader websocket.Upgrader
	srv      *http.Server

	closed   chan struct{}
	closeErr errorx.CloseErr
}

func New(e Engine, config *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	var s = &Server{
		config: config.init(),
		engine: e,
		router: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		closed: make(chan struct{}),
	}
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: time.Second * 5}

	s.router.Use(gin.Recovery(), s.logging)
	v1 := s.router.Group("/v1")
	{
		v1.POST("/initialize", s.initialize)
		v1.POST("/capture/start", s.startCapture)
		v1.POST("/capture/stop", s.stopCapture)
		v1.GET("/capture", s.isCapturing)
		v1.GET("/games/:id/running", s.isGameRunning)
		v1.PUT("/games", s.setGameDatabase)
		v1.GET("/metrics", s.getMetrics)
		v1.GET("/metrics/stream", s.streamMetrics)
		v1.GET("/status", s.status)
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithStack(err)
	}
	return s.Serve(l)
}

func (s *Server) Serve(l net.Listener) error {
	s.config.Logger.Info("control serve", slog.String("addr", l.Addr().String()))
	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.WithStack(err)
}

func (s *Server) Close() error {
	return s.closeErr.Close(func() (errs []error) {
		close(s.closed)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()
		errs = append(errs, s.srv.Shutdown(ctx))
		return errs
	})
}

func (s *Server) logging(c *gin.Context) {
	start := time.Now()
	c.Next()

	level := slog.LevelDebug
	if c.Writer.Status() >= http.StatusBadRequest {
		level = slog.LevelWarn
	}
	s.config.Logger.Log(c.Request.Context(), level, "request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)),
	)
}
