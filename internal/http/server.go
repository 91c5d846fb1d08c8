package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-pairing/internal/database"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
	"moff.io/wallet-pairing/pkg/log/middleware"
)

// Sessions is the session manager as seen by the http buttons.
type Sessions interface {
	State() session.State
	Connect(ctx context.Context, required session.RequiredNamespaces) error
	Disconnect(ctx context.Context) error
	RequestSignature(ctx context.Context, p session.Payload) (json.RawMessage, error)
	RequestTransaction(ctx context.Context, p session.Payload) (json.RawMessage, error)
	Reset(ctx context.Context)
}

// QRSource serves the pairing code being shown.
type QRSource interface {
	Current() ([]byte, string)
}

// EventSource lists recorded session events.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]*database.WalletSessionEvent, error)
}

// Allower decides whether a caller may go on, redis_rate.Limiter implements it.
type Allower interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

type Options struct {
	Addr        string
	Namespace   string
	ChainID     string
	TestAccount string
	// RateLimitPerMinute bounds requests per client ip when Limiter is set.
	RateLimitPerMinute int
	Limiter            Allower
	QR                 QRSource
	Events             EventSource
	RequestTimeout     time.Duration
}

type Server struct {
	sessions Sessions
	opts     Options
	engine   *gin.Engine
	srv      *http.Server

	// connects run detached from the request, under this context.
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewServer(sessions Sessions, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Namespace == "" {
		opts.Namespace = session.DefaultNamespace
	}
	s := &Server{sessions: sessions, opts: opts}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog())
	if s.opts.Limiter != nil && s.opts.RateLimitPerMinute > 0 {
		router.Use(rateLimit(s.opts.Limiter, redis_rate.PerMinute(s.opts.RateLimitPerMinute)))
	}
	router.GET("/state", s.state)
	router.GET("/qr", s.qr)
	router.GET("/events", s.events)
	// approval waits for the user, connect only starts it
	router.POST("/connect", s.connect)

	api := router.Group("/", middleware.TimeoutHTTP(s.opts.RequestTimeout))
	api.POST("/disconnect", s.disconnect)
	api.POST("/reset", s.reset)
	api.POST("/personal_sign", s.personalSign)
	api.POST("/sign_transaction", s.signTransaction)
	api.POST("/sign_typed_data", s.signTypedData)
	api.POST("/send_transaction", s.sendTransaction)
	api.POST("/request", s.request)
	return router
}

// Start serves in the background until Stop.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.cancel()
	}()
	go func() {
		log.Infof("http server listening on %v", s.opts.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(errors.WrapAndReport(err, "http server"))
		}
	}()
}

func (s *Server) Stop() {
	s.cancel()
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown http server: %v", err)
	}
}

func rateLimit(limiter Allower, limit redis_rate.Limit) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := limiter.Allow(ctx.Request.Context(), "wallet_pairing_rate:"+ctx.ClientIP(), limit)
		if err != nil {
			// the limiter is best effort, let the request through
			log.Warnf("rate limiter: %v", err)
			ctx.Next()
			return
		}
		if res.Allowed == 0 {
			ctx.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
			fail(ctx, http.StatusTooManyRequests, codeTooManyRequests, "too many requests")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// retryAfterSeconds renders d as the whole seconds Retry-After expects.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
