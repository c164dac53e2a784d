// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predict turns a validated feature record into a price estimate
// by invoking the regression model server.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/AleutianAI/carprice/services/pricing/features"
)

// ErrPrediction wraps every model-invocation failure so the HTTP layer
// can map it to a distinct error code.
var ErrPrediction = errors.New("prediction failed")

// defaultConfidence is the fixed confidence reported with every
// estimate. The regression model does not emit calibrated uncertainty,
// so this is a product-level constant rather than a model output.
const defaultConfidence = 0.9

// bandFraction sets the reported price band at +/-10% of the estimate.
const bandFraction = 0.10

// Regressor invokes the trained pricing model on an ordered feature
// vector and returns the raw predicted price in dollars.
type Regressor interface {
	Invoke(ctx context.Context, vector []any) (float64, error)
}

// HTTPRegressor calls a model server over HTTP.
//
// Description:
//
//	POSTs {"features": [...]} to the server's /predict endpoint and reads
//	back {"price": ...}. The model server owns categorical encoding, so
//	the vector carries categorical values as strings and numerics as
//	numbers.
//
// Thread Safety: Safe for concurrent use.
type HTTPRegressor struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPRegressor creates a client for the model server at baseURL.
func NewHTTPRegressor(baseURL string) *HTTPRegressor {
	return &HTTPRegressor{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// predictRequest is the model server's request payload.
type predictRequest struct {
	Features []any `json:"features"`
}

// predictResponse is the model server's response payload.
type predictResponse struct {
	Price float64 `json:"price"`
	Error string  `json:"error,omitempty"`
}

// Invoke sends the feature vector to the model server.
//
// Outputs:
//   - float64: The raw predicted price in dollars.
//   - error: Non-nil on transport or server failure; always wraps
//     ErrPrediction.
func (r *HTTPRegressor) Invoke(ctx context.Context, vector []any) (float64, error) {
	body, err := json.Marshal(predictRequest{Features: vector})
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling request: %v", ErrPrediction, err)
	}

	url := r.baseURL + "/predict"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %v", ErrPrediction, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: calling model server: %v", ErrPrediction, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: reading response: %v", ErrPrediction, err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: model server returned status %d", ErrPrediction, resp.StatusCode)
	}

	var parsed predictResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, fmt.Errorf("%w: parsing response: %v", ErrPrediction, err)
	}
	if parsed.Error != "" {
		return 0, fmt.Errorf("%w: model server error: %s", ErrPrediction, parsed.Error)
	}

	return parsed.Price, nil
}

// Result is a completed price estimate.
type Result struct {
	// Price is the point estimate, rounded to the nearest $100.
	Price int

	// PriceMin and PriceMax bound the reported band, each rounded to the
	// nearest $100. PriceMin <= Price <= PriceMax always holds.
	PriceMin int
	PriceMax int

	// Confidence is the fixed product-level confidence.
	Confidence float64
}

// Predictor assembles the model input vector and shapes the estimate.
//
// Thread Safety: Safe for concurrent use.
type Predictor struct {
	reg       *features.Registry
	regressor Regressor
}

// NewPredictor creates a Predictor over the registry and regressor.
func NewPredictor(reg *features.Registry, regressor Regressor) *Predictor {
	return &Predictor{reg: reg, regressor: regressor}
}

// Ready reports whether a regressor is configured.
func (p *Predictor) Ready() bool {
	return p.regressor != nil
}

// Predict estimates the resale price for a validated feature record.
//
// Description:
//
//	Builds the model input vector in the registry's declared column
//	order, invokes the regressor, and shapes the raw price into a
//	rounded point estimate with a +/-10% band. The record must be
//	complete; the validator guarantees that for any record it returns.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - validated: The complete validated feature record.
//
// Outputs:
//   - Result: The shaped estimate.
//   - error: Non-nil on model failure; wraps ErrPrediction.
func (p *Predictor) Predict(ctx context.Context, validated features.ValidatedFeatures) (Result, error) {
	if p.regressor == nil {
		return Result{}, fmt.Errorf("%w: no regressor configured", ErrPrediction)
	}

	vector, err := p.buildVector(validated)
	if err != nil {
		return Result{}, err
	}

	raw, err := p.regressor.Invoke(ctx, vector)
	if err != nil {
		return Result{}, err
	}
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Result{}, fmt.Errorf("%w: model returned unusable price %v", ErrPrediction, raw)
	}

	result := Result{
		Price:      roundToHundred(raw),
		PriceMin:   roundToHundred(raw * (1 - bandFraction)),
		PriceMax:   roundToHundred(raw * (1 + bandFraction)),
		Confidence: defaultConfidence,
	}

	slog.Debug("Prediction complete",
		slog.Float64("raw_price", raw),
		slog.Int("price", result.Price),
	)
	return result, nil
}

// buildVector lays out the record in the registry's column order,
// converting booleans to 0/1 the way the model was trained.
func (p *Predictor) buildVector(validated features.ValidatedFeatures) ([]any, error) {
	names := p.reg.Names()
	vector := make([]any, 0, len(names))
	for _, name := range names {
		value, ok := validated[name]
		if !ok {
			return nil, fmt.Errorf("%w: record missing feature %q", ErrPrediction, name)
		}
		switch v := value.(type) {
		case bool:
			if v {
				vector = append(vector, 1)
			} else {
				vector = append(vector, 0)
			}
		default:
			vector = append(vector, v)
		}
	}
	return vector, nil
}

// roundToHundred rounds a dollar amount to the nearest $100.
func roundToHundred(v float64) int {
	return int(math.Round(v/100)) * 100
}
