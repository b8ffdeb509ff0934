// Package status serves a small read-only HTTP view of the running bot:
// /healthz for liveness probes and /stats for counters.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"revertbot/internal/notifier"
	"revertbot/internal/pipeline"
	rtsup "revertbot/internal/runtime/supervisor"
	"revertbot/internal/stream"
	logx "revertbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8089"

// Snapshot is the /stats document.
type Snapshot struct {
	RunID     string                 `json:"run_id"`
	Wiki      string                 `json:"wiki"`
	StartedAt time.Time              `json:"started_at"`
	Uptime    string                 `json:"uptime"`
	Pipeline  pipeline.Stats         `json:"pipeline"`
	Stream    stream.Stats           `json:"stream"`
	Pages     PagesInfo              `json:"pages"`
	Notifier  notifier.Stats         `json:"notifier"`
	History   []notifier.HistoryItem `json:"history,omitempty"`
	Tasks     []rtsup.TaskStats      `json:"tasks,omitempty"`
}

type PagesInfo struct {
	Count       int       `json:"count"`
	LoadedAt    time.Time `json:"loaded_at"`
	NextRefresh time.Time `json:"next_refresh,omitempty"`
}

// Options wires the server to the running components.
type Options struct {
	Addr     string
	Snapshot func() Snapshot
	// Health returns nil when the bot is healthy.
	Health func() error
	// Pprof exposes the runtime profiler under /debug/pprof.
	Pprof bool
	Log   logx.Logger
}

type Server struct {
	opts Options
	log  logx.Logger

	mu       sync.Mutex
	srv      *http.Server
	sup      *rtsup.Supervisor
	addr     string
	stopDone chan struct{}
}

func New(opts Options) *Server {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = DefaultAddr
	}
	return &Server{opts: opts, log: log.With(logx.String("comp", "status"))}
}

// Handler builds the gin engine. It is exported for tests and for embedding.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		if s.opts.Health != nil {
			if err := s.opts.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		if s.opts.Snapshot == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "stats unavailable"})
			return
		}
		c.JSON(http.StatusOK, s.opts.Snapshot())
	})
	if s.opts.Pprof {
		mountPprof(r.Group("/debug/pprof"))
	}
	return r
}

func mountPprof(g *gin.RouterGroup) {
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		g.GET("/"+name, gin.WrapH(hpprof.Handler(name)))
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}

// Addr returns the bound address once the listener is up.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start runs the server under a restart loop. Start is idempotent.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.stopDone != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil || s.stopDone != nil {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv, s.sup, s.addr, s.stopDone = nil, nil, "", nil
		s.mu.Unlock()
		s.log.Info("status server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("status server exited unexpectedly")
	}
	return err
}
