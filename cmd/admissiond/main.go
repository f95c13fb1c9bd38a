// Command admissiond runs an HTTP server whose routes are guarded by the
// admission service, plus an administrative surface for operators.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/manenim/gateway-admission/internal/config"
	"github.com/manenim/gateway-admission/pkg/admission"
	"github.com/manenim/gateway-admission/pkg/admission/store"
	"github.com/manenim/gateway-admission/pkg/middleware"
)

var Version = "0.1.0"

func main() {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:          "admissiond",
		Short:        "Rate-limit admission control daemon",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "admissiond.yaml", "path to the configuration file")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	logger, err := buildLogger(debug)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	opts := []admission.Option{
		admission.WithLogger(logger),
		admission.WithRecorder(admission.NewPrometheusRecorder(prometheus.DefaultRegisterer)),
		admission.WithSweepInterval(cfg.Sweep.Interval.Std()),
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		remote := store.NewRedis(redisClient,
			store.WithPrefix(cfg.Redis.Prefix),
			store.WithTimeout(cfg.Redis.Timeout.Std()),
		)
		if err := remote.Ping(context.Background()); err != nil {
			// Not fatal: the service serves from the local store until
			// Redis comes back.
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		opts = append(opts, admission.WithRemoteStore(remote))
	} else {
		logger.Info("no redis configured, running local-only")
	}

	svc := admission.New(registry, opts...)
	defer svc.Close() //nolint:errcheck

	engine := buildRouter(svc, registry, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Strings("policies", registry.Names()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	gin.SetMode(gin.ReleaseMode)
	return zap.NewProduction()
}

// buildRouter mounts one guarded demo route per registered policy plus the
// administrative surface.
func buildRouter(svc *admission.Service, registry *admission.Registry, logger *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	for _, name := range registry.Names() {
		name := name
		engine.POST("/v1/"+name, middleware.RateLimit(svc, name), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"operation": name, "status": "accepted"})
		})
	}

	admin := engine.Group("/admin")
	admin.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats())
	})
	admin.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Health())
	})
	admin.POST("/clear", func(c *gin.Context) {
		var req struct {
			Policy string `json:"policy" binding:"required"`
			Key    string `json:"key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Clear(c.Request.Context(), req.Policy, req.Key); err != nil {
			logger.Warn("clear failed", zap.String("policy", req.Policy), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("clear: %v", err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": req.Key})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}
