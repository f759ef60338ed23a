// Package admin serves the node's operator HTTP surface: health, readiness,
// metrics, status and token-guarded actions.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ledgerd/internal/auth"
	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/observability"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ErrActionNotFound = errors.New("admin: action not found")
	ErrNotReady       = errors.New("admin: node not ready")
)

// Action is an operator-triggered side effect. The returned string is echoed
// back to the caller.
type Action func(ctx context.Context) (string, error)

// StatusSource reports what /status serves.
type StatusSource interface {
	Status() status.NodeStatus
}

type Config struct {
	NodeID      string
	Addr        string
	Version     string
	CorsOrigins []string
	// Token guards /actions. An empty token rejects every action.
	Token string
}

type Server struct {
	cfg      Config
	appeared time.Time
	router   *gin.Engine
	guard    auth.Validator
	source   StatusSource

	mu      sync.RWMutex
	actions map[string]Action
	ready   bool
}

var _ node.Node = (*Server)(nil)

func New(cfg Config, source StatusSource) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.NodeID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		appeared: time.Now(),
		router:   r,
		guard:    auth.StaticToken{Token: cfg.Token},
		source:   source,
		actions:  make(map[string]Action),
	}
	s.registerRoutes()
	return s
}

func (s *Server) NodeID() string {
	return s.cfg.NodeID
}

func (s *Server) Kind() string {
	return "ledgerd"
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// SetReady flips /ready between 200 and 503.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

func (s *Server) Register(name string, action Action) {
	s.mu.Lock()
	s.actions[name] = action
	s.mu.Unlock()
}

func (s *Server) Actions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) ExecuteAction(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	action, ok := s.actions[name]
	s.mu.RUnlock()
	if !ok {
		return "", ErrActionNotFound
	}

	out, err := action(ctx)
	if err != nil {
		log.Error().
			Str("node", s.cfg.NodeID).
			Str("action", name).
			Err(err).
			Msg("admin action failed")
		return "", err
	}
	log.Info().
		Str("node", s.cfg.NodeID).
		Str("action", name).
		Msg("admin action executed")
	return out, nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"node":    s.cfg.NodeID,
			"version": s.cfg.Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		s.mu.RLock()
		ready := s.ready
		s.mu.RUnlock()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":  ready,
			"uptime": time.Since(s.appeared).String(),
			"node":   s.cfg.NodeID,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		if s.source == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrNotReady.Error()})
			return
		}
		st := s.source.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":       st,
			"state_root":   st.StateRoot.String(),
			"latest_block": st.LatestBlock.String(),
		})
	})

	guarded := r.Group("/actions", s.requireToken)
	guarded.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actions": s.Actions()})
	})
	guarded.POST("/:action", func(c *gin.Context) {
		out, err := s.ExecuteAction(c.Request.Context(), c.Param("action"))
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrActionNotFound) {
				code = http.StatusNotFound
			}
			c.JSON(code, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "output": out})
	})
}

func (s *Server) requireToken(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if err := s.guard.Validate(token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

// Serve runs the HTTP server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin http listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
