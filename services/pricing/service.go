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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/carprice/services/pricing/features"
	"github.com/AleutianAI/carprice/services/pricing/predict"
)

// summaryTimeout bounds the optional summary generation. The estimate is
// already computed by then; a slow summary must not hold the response.
const summaryTimeout = 10 * time.Second

// Extractor turns free text into an untrusted feature record.
// Satisfied by extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, text string) features.RawExtraction
}

// Summarizer generates the friendly summary text.
// Satisfied by llm.GeminiClient. May be absent.
type Summarizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Estimator produces the price estimate for a validated record.
// Satisfied by predict.Predictor.
type Estimator interface {
	Predict(ctx context.Context, validated features.ValidatedFeatures) (predict.Result, error)
	Ready() bool
}

// Service orchestrates the prediction pipeline.
//
// Description:
//
//	extract -> validate -> predict -> summarize. Extraction and summary
//	degrade gracefully (empty record, fallback sentence); validation and
//	prediction failures are real errors the HTTP layer maps to status
//	codes.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	extractor  Extractor
	validator  *features.Validator
	estimator  Estimator
	summarizer Summarizer
}

// NewService wires the pipeline. summarizer may be nil; the fallback
// summary is used for every response in that case.
func NewService(extractor Extractor, validator *features.Validator, estimator Estimator, summarizer Summarizer) *Service {
	return &Service{
		extractor:  extractor,
		validator:  validator,
		estimator:  estimator,
		summarizer: summarizer,
	}
}

// ModelReady reports whether the prediction backend is configured.
func (s *Service) ModelReady() bool {
	return s.estimator != nil && s.estimator.Ready()
}

// SummarizerConfigured reports whether LLM summaries are available.
func (s *Service) SummarizerConfigured() bool {
	return s.summarizer != nil
}

// Estimate runs the full pipeline for one description.
//
// Description:
//
//	The description must be non-blank; the HTTP layer enforces that before
//	calling. Extraction failures produce an empty record and a fully
//	defaulted estimate rather than an error. Validation and prediction
//	errors propagate so the handler can classify them.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - description: The free-text car description.
//
// Outputs:
//   - PredictionResponse: The completed estimate with warnings and summary.
//   - error: Non-nil on validation invariant or model failure.
func (s *Service) Estimate(ctx context.Context, description string) (PredictionResponse, error) {
	tracer := otel.Tracer("github.com/AleutianAI/carprice/services/pricing")
	ctx, span := tracer.Start(ctx, "pricing.Estimate")
	defer span.End()

	start := time.Now()
	defer func() {
		predictionDuration.Observe(time.Since(start).Seconds())
	}()

	raw := s.extractor.Extract(ctx, description)

	validated, warnings, err := s.validator.Validate(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "validation invariant violated")
		return PredictionResponse{}, fmt.Errorf("pricing: validating features: %w", err)
	}
	defaultedFeaturesTotal.Add(float64(len(warnings)))

	result, err := s.estimator.Predict(ctx, validated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "prediction failed")
		return PredictionResponse{}, fmt.Errorf("pricing: predicting price: %w", err)
	}

	span.SetAttributes(
		attribute.Int("pricing.price", result.Price),
		attribute.Int("pricing.warning_count", len(warnings)),
	)

	summary := s.summarize(ctx, description, result, warnings)

	slog.Info("Prediction complete",
		slog.Int("price", result.Price),
		slog.Int("warning_count", len(warnings)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return PredictionResponse{
		Price:           result.Price,
		PriceMin:        result.PriceMin,
		PriceMax:        result.PriceMax,
		Confidence:      result.Confidence,
		Warnings:        warnings,
		FriendlySummary: summary,
	}, nil
}

// summarize produces the friendly summary, falling back to a deterministic
// sentence when the LLM is unavailable or slow. Never fails.
func (s *Service) summarize(ctx context.Context, description string, result predict.Result, warnings []string) string {
	fallback := fallbackSummary(result, warnings)
	if s.summarizer == nil {
		return fallback
	}

	sctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	text, err := s.summarizer.Generate(sctx, buildSummaryPrompt(description, result, warnings))
	if err != nil {
		slog.Warn("Summary generation failed, using fallback",
			slog.String("error", err.Error()),
		)
		return fallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

// fallbackSummary is the deterministic summary used when no LLM summary
// is available.
func fallbackSummary(result predict.Result, warnings []string) string {
	summary := fmt.Sprintf("Based on the details provided, the estimated resale price is $%d (likely between $%d and $%d).",
		result.Price, result.PriceMin, result.PriceMax)
	if len(warnings) > 0 {
		summary += " Some details were missing, so typical values were assumed."
	}
	return summary
}

// buildSummaryPrompt renders the summary-generation prompt.
func buildSummaryPrompt(description string, result predict.Result, warnings []string) string {
	var b strings.Builder
	b.WriteString("You are a friendly used-car pricing assistant. Write a short summary (2-3 sentences) of this price estimate for the car owner.\n\n")
	fmt.Fprintf(&b, "Car description: %q\n", description)
	fmt.Fprintf(&b, "Estimated price: $%d (range $%d to $%d)\n", result.Price, result.PriceMin, result.PriceMax)
	if len(warnings) > 0 {
		b.WriteString("Assumptions made:\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	b.WriteString("\nMention the price range, and briefly note any assumptions. Plain text only, no markdown.")
	return b.String()
}
