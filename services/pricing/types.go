// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pricing exposes the price-estimation pipeline over HTTP: request
// and response contracts, the orchestrating service, gin handlers, the
// daily request quota, and Prometheus metrics.
package pricing

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Machine-readable error codes returned alongside HTTP error statuses.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeRateLimited        = "RATE_LIMITED"
	CodePredictionFailed   = "PREDICTION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// PredictionRequest is the body of POST /api/v1/predict.
type PredictionRequest struct {
	// Description is the free-text car description, e.g.
	// "2020 Toyota Camry, 45k miles, one owner, no accidents".
	Description string `json:"description" binding:"required,notblank,max=1000"`
}

// PredictionResponse is the successful prediction payload.
type PredictionResponse struct {
	// Price is the point estimate in dollars, rounded to the nearest $100.
	Price int `json:"price"`

	// PriceMin and PriceMax bound the estimate band.
	PriceMin int `json:"price_min"`
	PriceMax int `json:"price_max"`

	// Confidence is the fixed product-level confidence of the estimate.
	Confidence float64 `json:"confidence"`

	// Warnings lists every feature that was defaulted, clamped, or
	// remapped during validation, in schema order. Empty when the
	// description supplied every feature cleanly.
	Warnings []string `json:"warnings"`

	// FriendlySummary is a short human-readable explanation of the
	// estimate. Best effort: a deterministic fallback sentence when the
	// LLM is unavailable.
	FriendlySummary string `json:"friendly_summary"`
}

// HealthResponse is the GET /api/v1/health payload.
type HealthResponse struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	LLMConfigured bool   `json:"llm_configured"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterRequestValidation installs the custom binding rules on gin's
// validator engine. Call once at startup before serving requests.
//
// The "notblank" rule rejects strings that are empty after trimming
// whitespace; "required" alone accepts "   ".
func RegisterRequestValidation() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}
