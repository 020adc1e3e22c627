package server

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xhs_copycat/generator"
	"xhs_copycat/metrics"
	"xhs_copycat/publisher"
)

const requestIDHeader = "X-Request-ID"

// maxUploadBytes 单次上传的内存上限，超出部分落盘由 multipart 处理。
const maxUploadBytes = 32 << 20

type Server struct {
	agent   *generator.Agent
	log     zerolog.Logger
	metrics *metrics.Registry
	store   *sessionStore

	exporter  *publisher.Publisher
	outputDir string
}

type Option func(*Server)

// WithExporter 启用 POST /api/runs/:id/export，报告写入 dir。
func WithExporter(p *publisher.Publisher, dir string) Option {
	return func(s *Server) {
		s.exporter = p
		s.outputDir = dir
	}
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generator.Session
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*generator.Session)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func New(agent *generator.Agent, log zerolog.Logger, reg *metrics.Registry, opts ...Option) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	s := &Server{
		agent:   agent,
		log:     log,
		metrics: reg,
		store:   newStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = maxUploadBytes
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.POST("/runs", s.handleRunCreate)
	api.GET("/runs/ws", s.handleRunStream)
	api.GET("/runs/:id", s.handleRunGet)
	api.POST("/runs/:id/copy", s.handleRewrite)
	if s.exporter != nil {
		api.POST("/runs/:id/export", s.handleExport)
	}
	api.GET("/catalog", s.handleCatalog)
	api.GET("/metrics", s.handleMetrics)
	return r
}

// pipeline 每个请求一个实例，进度回调互不干扰。
func (s *Server) pipeline() *generator.Pipeline {
	return generator.NewPipeline(s.agent, s.log, s.metrics)
}

// requestLogger 为每个请求分配 X-Request-ID 并记录访问日志。
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header(requestIDHeader, rid)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.Inc(c.Request.Context(), metrics.HTTPRequests, map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}, 1)
		s.log.Info().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
