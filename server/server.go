package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
	"github.com/pattarin-dev/voicebook/agent/events"
	"github.com/pattarin-dev/voicebook/agent/session"
	"github.com/pattarin-dev/voicebook/agent/tool"
	"github.com/pattarin-dev/voicebook/pkg/livekit"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	WSBaseURL       string        `envconfig:"WS_BASE_URL" split_words:"true" default:"ws://localhost:8080"`
	AllowedOrigins  []string      `split_words:"true" default:"*"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	Debug           bool          `split_words:"true" default:"false"`
}

// Server is the HTTP and WebSocket surface the voice layer talks to.
// Everything stateful lives behind it: the registry, the dispatcher, the
// event broadcaster and the token minter.
type Server struct {
	cfg         Config
	registry    *session.Registry
	dispatcher  *tool.Dispatcher
	broadcaster *events.Broadcaster
	minter      *livekit.TokenMinter
	engine      *gin.Engine
}

// New wires the routes. minter may be nil when LiveKit credentials are not
// configured; the token route then answers 503.
func New(cfg Config, registry *session.Registry, dispatcher *tool.Dispatcher, broadcaster *events.Broadcaster, minter *livekit.TokenMinter) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:         cfg,
		registry:    registry,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		minter:      minter,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	engine.GET("/health", s.health)
	engine.GET("/tools", s.listTools)
	engine.POST("/session/start", s.startSession)
	engine.POST("/livekit/token", s.mintToken)
	engine.POST("/session/:id/tools/:name", s.dispatchTool)
	engine.GET("/session/:id/tools", s.toolHistory)
	engine.GET("/session/:id/events", s.streamEvents)

	s.engine = engine
	return s
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", s.cfg.Addr).Msg("server listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": tool.Descriptions()})
}

func (s *Server) startSession(c *gin.Context) {
	snap := s.registry.Create()
	base := strings.TrimRight(s.cfg.WSBaseURL, "/")
	c.JSON(http.StatusOK, gin.H{
		"session_id": snap.SessionID,
		"state":      snap.State,
		"ws_url":     base + "/session/" + snap.SessionID + "/events",
	})
}

type tokenRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Identity  string `json:"identity"`
}

func (s *Server) mintToken(c *gin.Context) {
	if s.minter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "livekit is not configured"})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.registry.Snapshot(req.SessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		identity = "caller-" + req.SessionID
	}
	// The media room is named after the session, so agent and caller meet.
	token, err := s.minter.Mint(req.SessionID, identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "room": req.SessionID, "identity": identity})
}

func (s *Server) dispatchTool(c *gin.Context) {
	sessionID := c.Param("id")
	name := c.Param("name")

	// An absent body means no arguments; chunked requests report length -1
	// so the decoder, not ContentLength, decides.
	args := map[string]any{}
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return
	}

	res, err := s.dispatcher.Dispatch(c.Request.Context(), sessionID, contractx.ToolRequest{Tool: name, Args: args})
	if err != nil {
		switch {
		case errors.Is(err, contractx.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": contractx.KindNotFound})
		case errors.Is(err, contractx.ErrSessionEnded):
			c.JSON(http.StatusGone, gin.H{"error": err.Error(), "kind": contractx.KindSessionEnded})
		case errors.Is(err, contractx.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": contractx.KindValidation})
		default:
			log.Error().Err(err).Str("session_id", sessionID).Str("tool", name).Msg("dispatch failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) toolHistory(c *gin.Context) {
	snap, err := s.registry.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": snap.SessionID,
		"state":      snap.State,
		"history":    snap.History,
	})
}
