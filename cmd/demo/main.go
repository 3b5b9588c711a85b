// Package main runs a small gin service instrumented with the telemetry
// client, useful for exercising the full sync pipeline against a hub.
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
	"github.com/oklog/run"
	"go.uber.org/zap/zapcore"

	"github.com/apimetry/apimetry-go/pkg/client"
	"github.com/apimetry/apimetry-go/pkg/config"
	"github.com/apimetry/apimetry-go/pkg/logging"
	"github.com/apimetry/apimetry-go/pkg/metrics"
	"github.com/apimetry/apimetry-go/pkg/middlewares"
)

const defaultConfigFile = "apimetry.toml"

func main() {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(logLevelStr)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevelStr)
		zapLevel = zapcore.InfoLevel
	}
	lggr, err := logging.New(logging.DevelopmentConfig(zapLevel), "demo")
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	filePath, ok := os.LookupEnv("APIMETRY_CONFIG_PATH")
	if !ok {
		filePath = defaultConfigFile
	}
	if len(os.Args) > 1 {
		filePath = os.Args[1]
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			lggr.Errorw("Failed to load configuration", "path", filePath, "error", err)
			os.Exit(1)
		}
		cfg = config.Default()
		cfg.LoadFromEnvironment()
	}

	telemetry, err := client.New(cfg, client.WithLogger(lggr))
	if err != nil {
		lggr.Errorw("Failed to create telemetry client", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middlewares.Gin(telemetry))
	registerRoutes(engine)

	telemetry.SetStartupData("gin", middlewares.GinRoutes(engine))
	if err := telemetry.Start(); err != nil {
		lggr.Errorw("Failed to start telemetry client", "error", err)
		os.Exit(1)
	}

	address := os.Getenv("DEMO_ADDRESS")
	if address == "" {
		address = ":8080"
	}
	server := &http.Server{Addr: address, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	g := &run.Group{}

	g.Add(func() error {
		lggr.Infow("HTTP server started", "address", address)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lggr.Errorw("HTTP server stopped with error", "error", err)
			return err
		}
		lggr.Info("HTTP server stopped")
		return nil
	}, func(error) {
		lggr.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	g.Add(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		receivedSig := <-sig
		lggr.Infow("received signal, shutting down", "signal", receivedSig)
		return nil
	}, func(error) {})

	if err := g.Run(); err != nil {
		lggr.Errorw("Run group stopped with error", "error", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := telemetry.Stop(drainCtx); err != nil {
		lggr.Errorw("Failed to stop telemetry client", "error", err)
	}
}

func registerRoutes(engine *gin.Engine) {
	engine.GET("/items", func(ctx *gin.Context) {
		middlewares.SetGinConsumer(ctx, metrics.NewConsumer(ctx.GetHeader("X-Consumer")))
		ctx.JSON(http.StatusOK, gin.H{"items": []string{"a", "b"}})
	})
	engine.GET("/items/:id", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"id": ctx.Param("id")})
	})
	engine.POST("/items", func(ctx *gin.Context) {
		var body struct {
			Name string `json:"name" binding:"required"`
		}
		if err := ctx.ShouldBindJSON(&body); err != nil {
			_ = ctx.Error(err).SetType(gin.ErrorTypeBind)
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusCreated, gin.H{"name": body.Name})
	})
	engine.GET("/boom", func(*gin.Context) {
		panic("boom")
	})
}
