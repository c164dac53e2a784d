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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// predictionsTotal counts prediction requests by final outcome:
	// "ok", "invalid_input", "rate_limited", "prediction_failed",
	// "internal_error".
	predictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carprice_predictions_total",
			Help: "Prediction requests by outcome.",
		},
		[]string{"outcome"},
	)

	// defaultedFeaturesTotal counts validation substitutions. A rising
	// rate means extraction quality is degrading.
	defaultedFeaturesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carprice_defaulted_features_total",
			Help: "Features defaulted, clamped, or remapped during validation.",
		},
	)

	// predictionDuration observes end-to-end pipeline latency, which is
	// dominated by the LLM extraction call.
	predictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carprice_prediction_duration_seconds",
			Help:    "End-to-end prediction pipeline latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
