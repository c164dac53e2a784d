// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/carprice/services/llm"
	"github.com/AleutianAI/carprice/services/pricing"
	"github.com/AleutianAI/carprice/services/pricing/extract"
	"github.com/AleutianAI/carprice/services/pricing/features"
	"github.com/AleutianAI/carprice/services/pricing/predict"
)

// newServeCommand builds the serve subcommand.
func newServeCommand() *cobra.Command {
	var port int
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prediction API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			if port == 0 {
				port = envInt("PORT", 8080)
			}
			return runServe(port, debug)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default $PORT or 8080)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable gin request logging")
	return cmd
}

// runServe wires the pipeline and serves until SIGINT/SIGTERM.
func runServe(port int, debug bool) error {
	svc, limiter, err := buildPipeline()
	if err != nil {
		return err
	}

	pricing.RegisterRequestValidation()
	handlers := pricing.NewHandlers(svc, limiter)

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("carprice"))
	router.Use(cors.Default())
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/", handlers.HandleRoot)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1 := router.Group("/api/v1")
	pricing.RegisterRoutes(v1, handlers)

	printBanner(port, svc.ModelReady(), svc.SummarizerConfigured())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting carprice server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down carprice server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildPipeline assembles the prediction service from the environment.
//
// A malformed feature schema is fatal. A missing LLM key or model server
// URL is not: the service starts degraded and reports the gaps through
// the health endpoint.
func buildPipeline() (*pricing.Service, *pricing.DailyLimiter, error) {
	reg, err := features.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("serve: loading feature schema: %w", err)
	}

	var generator extract.Generator
	var summarizer pricing.Summarizer
	if gemini, err := llm.NewGeminiClient(); err != nil {
		slog.Warn("Gemini not configured, extraction and summaries disabled",
			slog.String("error", err.Error()),
		)
	} else {
		generator = gemini
		summarizer = gemini
		slog.Info("Gemini configured", slog.String("model", gemini.Model()))
	}

	extractor := extract.NewExtractor(generator, reg, extract.Config{
		MaxRetries: envInt("LLM_MAX_RETRIES", 3),
	})

	var regressor predict.Regressor
	modelServerURL := os.Getenv("MODEL_SERVER_URL")
	if modelServerURL == "" {
		slog.Warn("MODEL_SERVER_URL not set, predictions will fail until configured")
	} else {
		regressor = predict.NewHTTPRegressor(modelServerURL)
		slog.Info("Model server configured", slog.String("url", modelServerURL))
	}

	svc := pricing.NewService(
		extractor,
		features.NewValidator(reg),
		predict.NewPredictor(reg, regressor),
		summarizer,
	)
	limiter := pricing.NewDailyLimiter(envInt("RATE_LIMIT_PER_DAY", pricing.DefaultDailyLimit))
	return svc, limiter, nil
}

// printBanner prints the startup banner.
func printBanner(port int, modelReady, llmReady bool) {
	status := func(ok bool, enabled, disabled string) string {
		if ok {
			return enabled
		}
		return disabled
	}

	banner := `
╔═══════════════════════════════════════════════════════════╗
║                     CARPRICE SERVER                       ║
╠═══════════════════════════════════════════════════════════╣
║                                                           ║
║  Used car price estimation from free-text descriptions.   ║
║  Model:  %-47s  ║
║  LLM:    %-47s  ║
║                                                           ║
║  Quick Start:                                             ║
║    curl http://localhost:%-5d/api/v1/health              ║
║                                                           ║
║    curl -X POST http://localhost:%-5d/api/v1/predict \   ║
║      -H "Content-Type: application/json" \                ║
║      -d '{"description": "2020 Toyota Camry, 45k mi"}'    ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner,
		status(modelReady, "READY", "NOT CONFIGURED (set MODEL_SERVER_URL)"),
		status(llmReady, "READY", "NOT CONFIGURED (set GEMINI_API_KEY)"),
		port, port,
	)
}
