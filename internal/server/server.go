// Package server is the HTTP boundary. It maps pipeline outcomes to status
// codes and nothing else; every decision lives in the components it calls.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/metrics"
	"github.com/vietgrow/askgate/internal/types"
)

// Admitter consumes one unit of daily quota
type Admitter interface {
	Check(ctx context.Context, id types.Identity) error
	Remaining(id types.Identity) int
}

// Answerer runs the answer pipeline
type Answerer interface {
	Answer(ctx context.Context, question string, id types.Identity) (*types.AnswerResult, error)
}

// Identifier resolves the caller
type Identifier interface {
	Identify(ctx context.Context, ip, userID string) types.Identity
	Resolve(ctx context.Context, userID string) *types.UserProfile
	Register(ctx context.Context, userID, email string) (*types.UserProfile, error)
}

// TopicService builds and lists topics
type TopicService interface {
	Run(ctx context.Context) ([]types.Topic, error)
	Top(ctx context.Context, n int) ([]*types.Topic, error)
}

// FeedbackRecorder saves ratings
type FeedbackRecorder interface {
	Record(ctx context.Context, fb types.Feedback) (*types.Feedback, error)
}

// Learner builds and serves learning summaries
type Learner interface {
	Run(ctx context.Context) (*types.LearningSummary, error)
	Latest(ctx context.Context) (*types.LearningSummary, error)
}

// Deps are the components behind the routes
type Deps struct {
	Admission  Admitter
	Answers    Answerer
	Identities Identifier
	Topics     TopicService
	Feedback   FeedbackRecorder
	Learning   Learner
	Metrics    *metrics.Metrics
}

// Config holds HTTP server settings
type Config struct {
	Addr  string
	Debug bool

	// DailyLimit is quoted in the limit-exceeded message
	DailyLimit int
}

// Server is the gin HTTP server
type Server struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	server *http.Server
	log    *zap.Logger
}

// New creates a Server and registers its routes
func New(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Admission == nil || deps.Answers == nil || deps.Identities == nil {
		return nil, fmt.Errorf("admission, answers and identities are required")
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: engine,
		log:    logging.OrNop(logger).Named("http"),
	}
	s.registerMiddlewares()
	s.registerRoutes()
	return s, nil
}

// Handler returns the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerMiddlewares() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", clientIP(c.Request)),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.POST("/ask", s.handleAsk)
		api.GET("/topics", s.handleTopics)
		api.POST("/feedback", s.handleFeedback)
		api.GET("/learning/latest", s.handleLearningLatest)
		api.POST("/auth/me", s.handleMe)
		api.POST("/auth/register", s.handleRegister)

		// Cron triggers accept GET as well for schedulers that cannot POST
		cron := api.Group("/cron")
		{
			cron.GET("/topics", s.handleCronTopics)
			cron.POST("/topics", s.handleCronTopics)
			cron.GET("/learn", s.handleCronLearn)
			cron.POST("/learn", s.handleCronLearn)
		}
	}

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
}

// Start listens until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation can take a while
		WriteTimeout: 2 * time.Minute,
	}

	s.log.Info("starting HTTP server", zap.String("addr", s.cfg.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// clientIP is the first X-Forwarded-For entry, else the remote address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
