package approuters

import (
	"NiralaChat/internal/configuration"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StartServer serves the control API until SIGINT/SIGTERM or a server error,
// then closes every chat binding and drains in-flight requests.
func StartServer(container *configuration.Container) {
	logger := container.Logger
	appServer := createAppServer(container)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("application server starting", zap.String("addr", appServer.Addr))
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("app server error: %w", err)
		}
	}()

	// Listen for shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("stopping hub and closing all chat connections")
	container.Hub.Stop()

	logger.Info("shutting down application server")
	if err := appServer.Shutdown(ctx); err != nil {
		logger.Error("app server shutdown error", zap.Error(err))
	}

	logger.Info("graceful shutdown complete")
}

func createAppServer(container *configuration.Container) *http.Server {
	router := NewRouter(container)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", container.Config.Server.AppPort),
		Handler: router,
		// Uploads stream through the handler, so the write timeout has to
		// cover a slow remote store.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter builds the gin engine with CORS and every route group.
func NewRouter(container *configuration.Container) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     container.Config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "NiralaChat agent is running",
		})
	})

	ChatRouters(router, container)
	MonitorRouters(router, container)

	return router
}
