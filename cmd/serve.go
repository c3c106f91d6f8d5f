package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anoixa/image-gallery/api/core"
	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/app"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gallery cache to local views over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	container := app.NewContainer(cfg)
	if err := container.Init(context.Background()); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// 后台协程池与定时刷新，启动后先加载一次
	container.StartBackground()
	container.TriggerRefresh()

	deps := &core.RouterDependencies{
		Gallery:       container.Gallery(),
		Sessions:      container.Session(),
		Refresher:     container,
		CacheProvider: container.Cache(),
		Pool:          container.Pool(),
		ServerVersion: core.ServerVersion{Version: config.Version, CommitHash: config.CommitHash},
		Config:        cfg,
	}

	// 启动gin
	server, cleanup := core.StartServer(deps)
	go func() {
		log.Printf("Server started on %s, remote service %s", cfg.Addr(), cfg.RemoteBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 处理退出signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if cleanup != nil {
		cleanup()
	}

	// 关闭容器（停止刷新、协程池、缓存与会话存储）
	if err := container.Close(); err != nil {
		log.Printf("Error closing container: %v", err)
	}

	log.Println("Server exited successfully")
}
