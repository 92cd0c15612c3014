package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multisig-core/pkg/logger"
)

type Config struct {
	HttpPort string
}

// Worker 随 App 启停的后台任务 (消息中继、事件订阅等)，ctx 取消时返回
type Worker func(ctx context.Context)

type App struct {
	httpServer *http.Server
	workers    []Worker
	onStop     []func()
}

func New(cfg Config, httpHandler *gin.Engine) *App {
	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.HttpPort,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Go 注册后台任务
func (a *App) Go(w Worker) {
	a.workers = append(a.workers, w)
}

// OnStop 注册关闭时执行的清理函数，按注册的逆序执行
func (a *App) OnStop(fn func()) {
	a.onStop = append(a.onStop, fn)
}

// Run 启动服务并阻塞，直到收到关闭信号
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 后台任务
	for _, w := range a.workers {
		go w(ctx)
	}

	// 2. HTTP
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Server failure", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// 3. Graceful Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	for i := len(a.onStop) - 1; i >= 0; i-- {
		a.onStop[i]()
	}
	logger.Info("Server exited properly")
}
