// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/carprice/services/pricing/features"
)

// fakeRegressor returns a fixed price or error.
type fakeRegressor struct {
	price  float64
	err    error
	vector []any
}

func (f *fakeRegressor) Invoke(ctx context.Context, vector []any) (float64, error) {
	f.vector = vector
	return f.price, f.err
}

func mustRegistry(t *testing.T) *features.Registry {
	t.Helper()
	reg, err := features.Load()
	if err != nil {
		t.Fatalf("loading feature registry: %v", err)
	}
	return reg
}

// completeRecord builds a record holding every feature's default so the
// completeness invariant is satisfied without running the validator.
func completeRecord(t *testing.T, reg *features.Registry) features.ValidatedFeatures {
	t.Helper()
	record := features.ValidatedFeatures{}
	for _, spec := range reg.Specs() {
		record[spec.Name] = spec.Default
	}
	// Overwrite a few with realistic values.
	record["manufacturer"] = "Toyota"
	record["year"] = 2021
	record["mileage"] = 30000
	record["one_owner"] = true
	record["accidents_or_damage"] = false
	return record
}

func TestPredict_VectorOrderAndTypes(t *testing.T) {
	reg := mustRegistry(t)
	fake := &fakeRegressor{price: 24180}
	p := NewPredictor(reg, fake)

	record := completeRecord(t, reg)
	if _, err := p.Predict(context.Background(), record); err != nil {
		t.Fatalf("Predict error: %v", err)
	}

	names := reg.Names()
	if len(fake.vector) != len(names) {
		t.Fatalf("vector length = %d, want %d", len(fake.vector), len(names))
	}
	for i, name := range names {
		want := record[name]
		if b, ok := want.(bool); ok {
			wantInt := 0
			if b {
				wantInt = 1
			}
			if fake.vector[i] != wantInt {
				t.Errorf("vector[%d] (%s) = %v, want %d", i, name, fake.vector[i], wantInt)
			}
			continue
		}
		if fake.vector[i] != want {
			t.Errorf("vector[%d] (%s) = %v, want %v", i, name, fake.vector[i], want)
		}
	}
}

func TestPredict_RoundingAndBand(t *testing.T) {
	reg := mustRegistry(t)
	fake := &fakeRegressor{price: 24180}
	p := NewPredictor(reg, fake)

	result, err := p.Predict(context.Background(), completeRecord(t, reg))
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}

	if result.Price != 24200 {
		t.Errorf("Price = %d, want 24200 (nearest $100)", result.Price)
	}
	if result.PriceMin != 21800 {
		t.Errorf("PriceMin = %d, want 21800 (-10%%, nearest $100)", result.PriceMin)
	}
	if result.PriceMax != 26600 {
		t.Errorf("PriceMax = %d, want 26600 (+10%%, nearest $100)", result.PriceMax)
	}
	if result.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", result.Confidence)
	}
}

func TestPredict_BandInvariant(t *testing.T) {
	reg := mustRegistry(t)
	record := completeRecord(t, reg)

	for _, price := range []float64{49, 100, 1050, 9999, 24180, 150000, 999999} {
		fake := &fakeRegressor{price: price}
		p := NewPredictor(reg, fake)
		result, err := p.Predict(context.Background(), record)
		if err != nil {
			t.Fatalf("Predict(%v) error: %v", price, err)
		}
		if result.PriceMin > result.Price || result.Price > result.PriceMax {
			t.Errorf("band violated for raw %v: min=%d price=%d max=%d",
				price, result.PriceMin, result.Price, result.PriceMax)
		}
		if result.Price%100 != 0 || result.PriceMin%100 != 0 || result.PriceMax%100 != 0 {
			t.Errorf("values not rounded to $100 for raw %v: %+v", price, result)
		}
	}
}

func TestPredict_ModelFailure(t *testing.T) {
	reg := mustRegistry(t)
	fake := &fakeRegressor{err: errors.New("xgboost crashed")}
	p := NewPredictor(reg, fake)

	_, err := p.Predict(context.Background(), completeRecord(t, reg))
	if err == nil {
		t.Fatal("expected error from failing regressor")
	}
}

func TestPredict_UnusablePrice(t *testing.T) {
	reg := mustRegistry(t)
	record := completeRecord(t, reg)

	for _, bad := range []float64{0, -500} {
		p := NewPredictor(reg, &fakeRegressor{price: bad})
		if _, err := p.Predict(context.Background(), record); !errors.Is(err, ErrPrediction) {
			t.Errorf("Predict with raw %v: err = %v, want ErrPrediction", bad, err)
		}
	}
}

func TestPredict_IncompleteRecord(t *testing.T) {
	reg := mustRegistry(t)
	record := completeRecord(t, reg)
	delete(record, "mileage")

	p := NewPredictor(reg, &fakeRegressor{price: 20000})
	if _, err := p.Predict(context.Background(), record); !errors.Is(err, ErrPrediction) {
		t.Errorf("err = %v, want ErrPrediction for incomplete record", err)
	}
}

func TestPredict_NoRegressor(t *testing.T) {
	reg := mustRegistry(t)
	p := NewPredictor(reg, nil)

	if p.Ready() {
		t.Error("Ready() = true without a regressor")
	}
	if _, err := p.Predict(context.Background(), completeRecord(t, reg)); !errors.Is(err, ErrPrediction) {
		t.Errorf("err = %v, want ErrPrediction without a regressor", err)
	}
}

func TestHTTPRegressor_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("path = %q, want /predict", r.URL.Path)
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Features) != 3 {
			t.Errorf("features length = %d, want 3", len(req.Features))
		}
		json.NewEncoder(w).Encode(predictResponse{Price: 18500.75})
	}))
	defer server.Close()

	r := NewHTTPRegressor(server.URL)
	price, err := r.Invoke(context.Background(), []any{"Toyota", 2021, 1})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if price != 18500.75 {
		t.Errorf("price = %v, want 18500.75", price)
	}
}

func TestHTTPRegressor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewHTTPRegressor(server.URL)
	if _, err := r.Invoke(context.Background(), []any{1}); !errors.Is(err, ErrPrediction) {
		t.Errorf("err = %v, want ErrPrediction", err)
	}
}

func TestHTTPRegressor_ApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Error: "model not loaded"})
	}))
	defer server.Close()

	r := NewHTTPRegressor(server.URL)
	if _, err := r.Invoke(context.Background(), []any{1}); !errors.Is(err, ErrPrediction) {
		t.Errorf("err = %v, want ErrPrediction", err)
	}
}

func TestHTTPRegressor_Unreachable(t *testing.T) {
	r := NewHTTPRegressor("http://localhost:0")
	if _, err := r.Invoke(context.Background(), []any{1}); !errors.Is(err, ErrPrediction) {
		t.Errorf("err = %v, want ErrPrediction", err)
	}
}
