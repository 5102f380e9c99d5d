package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-entry/internal/config"
	"github.com/rezonia/nfe-entry/internal/llm"
	"github.com/rezonia/nfe-entry/internal/logging"
	"github.com/rezonia/nfe-entry/internal/metrics"
	"github.com/rezonia/nfe-entry/internal/processor"
	"github.com/rezonia/nfe-entry/internal/signature"
	"github.com/rezonia/nfe-entry/internal/signature/trust"
	"github.com/rezonia/nfe-entry/internal/signature/xml"
	"github.com/rezonia/nfe-entry/internal/store"
)

const (
	parseTimeout  = 30 * time.Second
	llmTimeout    = 2 * time.Minute
	verifyTimeout = 60 * time.Second
)

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	pipeline *processor.Pipeline
	store    store.Store
	verifier signature.Verifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option overrides a collaborator built by NewServer
type Option func(*Server)

// WithStore sets the persistence collaborator
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithPipeline sets the import pipeline
func WithPipeline(p *processor.Pipeline) Option {
	return func(s *Server) {
		s.pipeline = p
	}
}

// WithVerifier sets the signature verifier
func WithVerifier(v signature.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock sets the clock used to date new drafts
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a new API server. Collaborators not given as options are
// built from cfg: an in-memory store, a pipeline with LLM extraction when an
// API key is configured and a verifier with an empty trust store.
func NewServer(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.pipeline == nil {
		s.pipeline = NewPipeline(cfg, s.logger, s.metrics)
	}
	if s.verifier == nil {
		ts, err := trust.NewTrustStore()
		if err != nil {
			s.logger.Warn("trust store", zap.Error(err))
		}
		s.verifier = xml.NewNFeVerifier(ts)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Debug {
		router.Use(logging.Middleware(s.logger))
	}
	if cfg.Server.MaxUploadBytes > 0 {
		router.Use(limitBody(cfg.Server.MaxUploadBytes))
	}
	s.router = router

	s.setupRoutes()
	return s
}

// NewPipeline builds the import pipeline described by cfg
func NewPipeline(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *processor.Pipeline {
	opts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithMetrics(m),
	}
	if cfg.LLM.Enabled() {
		var clientOpts []llm.ClientOption
		if cfg.LLM.BaseURL != "" {
			clientOpts = append(clientOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
		}
		client := llm.NewClient(cfg.LLM.APIKey, clientOpts...)

		var extractorOpts []llm.ExtractorOption
		if cfg.LLM.Model != "" {
			extractorOpts = append(extractorOpts, llm.WithModel(cfg.LLM.Model))
		}
		if cfg.LLM.VisionModel != "" {
			extractorOpts = append(extractorOpts, llm.WithVisionModel(cfg.LLM.VisionModel))
		}
		opts = append(opts, processor.WithLLMExtractor(llm.NewExtractor(client, extractorOpts...)))
	}
	return processor.NewPipeline(opts...)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/nfe/parse", s.handleParseNFe)
		v1.POST("/process/image", s.handleProcessImage)

		v1.POST("/allocation", s.handleAllocation)

		v1.POST("/entries", s.handleCreateEntry)
		v1.GET("/entries", s.handleListEntries)
		v1.GET("/entries/:id", s.handleGetEntry)
		v1.GET("/entries/:id/export.xlsx", s.handleExportEntry)

		v1.POST("/verify", s.handleVerify)
		v1.POST("/info", s.handleInfo)
	}
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Server.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"llm":    s.pipeline.HasLLM(),
	})
}
