package ops

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mntlbot/rebalancer/internal/bot"
	"github.com/mntlbot/rebalancer/pkg/logger"
)

// Server 运维侧只读状态服务：
//   - GET  /healthz      存活探针
//   - GET  /status       各账户循环的运行快照
//   - POST /rebalance    手动触发一次再平衡
//   - GET  /debug/vars   expvar 计数器
//
// 只建议监听 localhost 或内网地址。
type Server struct {
	loops []*bot.Loop
}

func New(loops []*bot.Loop) *Server {
	return &Server{loops: loops}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/status", func(c *gin.Context) {
		statuses := make([]bot.Status, 0, len(s.loops))
		for _, l := range s.loops {
			statuses = append(statuses, l.Status())
		}
		c.JSON(http.StatusOK, gin.H{"accounts": statuses})
	})

	// 手动触发一次再平衡；account 为空时触发全部账户
	r.POST("/rebalance", func(c *gin.Context) {
		account := c.Query("account")
		triggered := 0
		for _, l := range s.loops {
			if account != "" && l.Status().Account != account {
				continue
			}
			l.TriggerRebalance()
			triggered++
		}
		if account != "" && triggered == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown account: " + account})
			return
		}
		c.JSON(http.StatusOK, gin.H{"triggered": triggered})
	})

	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	return r
}

// StartAsync 非阻塞启动，ctx 取消时优雅关闭。
func (s *Server) StartAsync(ctx context.Context, listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Router()}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("状态服务异常退出: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("状态服务已启动: http://%s/status", ln.Addr())
	return nil
}
