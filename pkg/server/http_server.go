package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"DigitNet/pkg/network"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options 服务参数
type Options struct {
	SessionTimeout      time.Duration
	PruneInterval       time.Duration
	DefaultLearningRate float64 // /train 请求未给出学习率时使用
	Logger              *log.Logger
}

// DefaultOptions 默认服务参数
func DefaultOptions() Options {
	return Options{
		SessionTimeout:      10 * time.Minute,
		PruneInterval:       time.Minute,
		DefaultLearningRate: 0.0001,
	}
}

// withDefaults 用 DefaultOptions 的值填充未设置或非正的字段
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = def.SessionTimeout
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = def.PruneInterval
	}
	if o.DefaultLearningRate <= 0 {
		o.DefaultLearningRate = def.DefaultLearningRate
	}
	return o
}

// Server 推理服务，所有对网络的访问都经过同一把锁
type Server struct {
	mu      sync.Mutex
	nn      *network.NeuronNetwork
	modelID string

	opts     Options
	sessions *SessionManager
	router   *gin.Engine
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// New 创建服务并注册路由
func New(nn *network.NeuronNetwork, opts Options) *Server {
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		nn:       nn,
		modelID:  uuid.New().String(),
		opts:     opts,
		sessions: NewSessionManager(opts.SessionTimeout, opts.PruneInterval, logger),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.GET("/health", s.healthHandler)
	router.GET("/model", s.getModelHandler)
	router.GET("/model/export", s.exportModelHandler)
	router.PUT("/model", s.putModelHandler)
	router.POST("/predict", s.predictHandler)
	router.POST("/train", s.trainHandler)
	router.GET("/ws/draw", s.drawHandler)
	s.router = router
	return s
}

// Router 获取路由器
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Sessions 获取会话管理器
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Network 返回当前网络的深拷贝，用于保存
func (s *Server) Network() (*network.NeuronNetwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nn.Clone()
}

// Run 监听 addr 直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	s.sessions.StartCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("推理服务启动，监听地址 %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown 不会关闭已升级的websocket连接
	s.sessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Printf("推理服务已关闭")
	return nil
}
