// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pricing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/carprice/services/pricing/features"
	"github.com/AleutianAI/carprice/services/pricing/predict"
)

// Handlers holds the HTTP handlers for the pricing API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	service *Service
	limiter *DailyLimiter
}

// NewHandlers creates the handler set. limiter may be nil to disable the
// daily quota (used by the one-shot CLI path).
func NewHandlers(service *Service, limiter *DailyLimiter) *Handlers {
	return &Handlers{service: service, limiter: limiter}
}

// getOrCreateRequestID returns the inbound X-Request-ID or generates one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// HandlePredict handles POST /api/v1/predict.
//
// Description:
//
//	Validates the request body, checks the daily quota, and runs the
//	prediction pipeline. Input and quota rejections happen before any
//	collaborator (LLM, model server) is touched.
//
// Status codes:
//   - 200: Estimate produced.
//   - 400: Missing, blank, or oversized description (INVALID_INPUT).
//   - 429: Daily quota exhausted (RATE_LIMITED).
//   - 500: Model failure (PREDICTION_FAILED) or pipeline invariant
//     violation (INTERNAL_ERROR).
//   - 503: Prediction backend not configured (SERVICE_UNAVAILABLE).
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandlePredict(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePredict")

	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		predictionsTotal.WithLabelValues("invalid_input").Inc()
		logger.Info("Rejected invalid request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "description is required, must be non-blank, and at most 1000 characters",
			Code:  CodeInvalidInput,
		})
		return
	}

	if !h.service.ModelReady() {
		predictionsTotal.WithLabelValues("internal_error").Inc()
		logger.Error("Prediction backend not configured")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "prediction service is not available",
			Code:  CodeServiceUnavailable,
		})
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		predictionsTotal.WithLabelValues("rate_limited").Inc()
		logger.Info("Rejected over daily quota")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "daily prediction limit reached, try again tomorrow",
			Code:  CodeRateLimited,
		})
		return
	}

	resp, err := h.service.Estimate(c.Request.Context(), req.Description)
	if err != nil {
		switch {
		case errors.Is(err, predict.ErrPrediction):
			predictionsTotal.WithLabelValues("prediction_failed").Inc()
			logger.Error("Prediction failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "price prediction failed",
				Code:  CodePredictionFailed,
			})
		case errors.Is(err, features.ErrIncomplete):
			predictionsTotal.WithLabelValues("internal_error").Inc()
			logger.Error("Validation invariant violated", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "internal error",
				Code:  CodeInternalError,
			})
		default:
			predictionsTotal.WithLabelValues("internal_error").Inc()
			logger.Error("Unexpected pipeline error", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "internal error",
				Code:  CodeInternalError,
			})
		}
		return
	}

	predictionsTotal.WithLabelValues("ok").Inc()
	logger.Info("Prediction served",
		slog.Int("price", resp.Price),
		slog.Int("warning_count", len(resp.Warnings)),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /api/v1/health.
//
// Reports component readiness without touching any collaborator.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		ModelLoaded:   h.service.ModelReady(),
		LLMConfigured: h.service.SummarizerConfigured(),
	})
}

// HandleRoot handles GET / with basic service info.
func (h *Handlers) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "carprice",
		"message": "Used car price estimation API",
		"predict": "POST /api/v1/predict",
		"health":  "GET /api/v1/health",
	})
}
