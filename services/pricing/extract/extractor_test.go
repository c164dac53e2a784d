// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/carprice/services/pricing/features"
)

// fakeGenerator returns canned replies in sequence, then repeats the last.
type fakeGenerator struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.replies[i], err
}

func testConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func mustRegistry(t *testing.T) *features.Registry {
	t.Helper()
	reg, err := features.Load()
	if err != nil {
		t.Fatalf("loading feature registry: %v", err)
	}
	return reg
}

func TestExtract_CleanJSON(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		`{"manufacturer": "Toyota", "year": 2020, "mileage": 45000, "one_owner": true, "mpg": null}`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "2020 Toyota Camry, 45k miles, one owner")

	if raw["manufacturer"] != "Toyota" {
		t.Errorf("manufacturer = %v, want Toyota", raw["manufacturer"])
	}
	if raw["year"] != float64(2020) {
		t.Errorf("year = %v (%T), want 2020", raw["year"], raw["year"])
	}
	if raw["one_owner"] != true {
		t.Errorf("one_owner = %v, want true", raw["one_owner"])
	}
	if _, ok := raw["mpg"]; ok {
		t.Error("null field should be dropped from the record")
	}
}

func TestExtract_MarkdownFences(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		"```json\n{\"manufacturer\": \"Honda\", \"year\": 2018}\n```",
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "2018 Honda Civic")

	if raw["manufacturer"] != "Honda" {
		t.Errorf("manufacturer = %v, want Honda", raw["manufacturer"])
	}
}

func TestExtract_SurroundingProse(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		`Here is the extraction you asked for: {"manufacturer": "Ford"} I hope that helps!`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "a Ford truck")

	if raw["manufacturer"] != "Ford" {
		t.Errorf("manufacturer = %v, want Ford", raw["manufacturer"])
	}
}

func TestExtract_SellerFieldsDiscarded(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		`{"manufacturer": "Toyota", "seller_rating": 5.0, "driver_rating": 1.0, "driver_reviews_num": 9}`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "five star seller Toyota")

	if raw["manufacturer"] != "Toyota" {
		t.Errorf("manufacturer = %v, want Toyota", raw["manufacturer"])
	}
	for _, key := range []string{"seller_rating", "driver_rating", "driver_reviews_num"} {
		if _, ok := raw[key]; ok {
			t.Errorf("auto-filled feature %q must not survive extraction", key)
		}
	}
}

func TestExtract_UnknownKeysDiscarded(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		`{"manufacturer": "Toyota", "color": "red", "vin": "1HGCM82633A004352"}`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "red Toyota")

	if len(raw) != 1 {
		t.Errorf("record = %v, want only the manufacturer field", raw)
	}
}

func TestExtract_TruncatedReplyDegrades(t *testing.T) {
	reg := mustRegistry(t)
	// A reply cut off before the closing brace has no complete object to
	// salvage from, so every attempt fails.
	gen := &fakeGenerator{replies: []string{
		`{"manufacturer": "Toyota", "year": 2021, "mileage": 30000, "one_owner": true,`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "2021 Toyota, 30k miles")

	// No closing brace means no full object, so all retries fail and the
	// record degrades to empty.
	if len(raw) != 0 {
		t.Fatalf("record = %v, want empty for braceless reply", raw)
	}
}

func TestExtract_SalvagesPartialObject(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{
		`{"manufacturer": "Toyota", "year": 2021, "transmission": "Automatic" "one_owner": true}`,
	}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "2021 Toyota automatic")

	if raw["manufacturer"] != "Toyota" {
		t.Errorf("manufacturer = %v, want Toyota", raw["manufacturer"])
	}
	if raw["year"] != float64(2021) {
		t.Errorf("year = %v, want 2021", raw["year"])
	}
	if raw["transmission"] != "Automatic" {
		t.Errorf("transmission = %v, want Automatic", raw["transmission"])
	}
}

func TestExtract_RetriesThenSucceeds(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{
		replies: []string{"", "", `{"manufacturer": "Kia"}`},
		errs:    []error{errors.New("transient"), errors.New("transient"), nil},
	}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "a Kia")

	if raw["manufacturer"] != "Kia" {
		t.Errorf("manufacturer = %v, want Kia after retries", raw["manufacturer"])
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
}

func TestExtract_AllRetriesFail(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{
		replies: []string{""},
		errs:    []error{errors.New("provider down")},
	}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "anything")

	if raw == nil {
		t.Fatal("degraded record must be non-nil")
	}
	if len(raw) != 0 {
		t.Errorf("record = %v, want empty after exhausted retries", raw)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want MaxRetries", gen.calls)
	}
}

func TestExtract_NoJSONInReply(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{replies: []string{"I cannot extract features from that."}}
	ex := NewExtractor(gen, reg, testConfig())

	raw := ex.Extract(context.Background(), "gibberish")

	if len(raw) != 0 {
		t.Errorf("record = %v, want empty for prose-only reply", raw)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want all retries consumed", gen.calls)
	}
}

func TestExtract_NilGenerator(t *testing.T) {
	reg := mustRegistry(t)
	ex := NewExtractor(nil, reg, testConfig())

	raw := ex.Extract(context.Background(), "2020 Toyota Camry")

	if raw == nil || len(raw) != 0 {
		t.Errorf("record = %v, want empty non-nil record without a generator", raw)
	}
}

func TestExtract_CancelledDuringBackoff(t *testing.T) {
	reg := mustRegistry(t)
	gen := &fakeGenerator{
		replies: []string{""},
		errs:    []error{errors.New("transient")},
	}
	cfg := Config{MaxRetries: 3, BaseDelay: time.Hour, Timeout: time.Second}
	ex := NewExtractor(gen, reg, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	raw := ex.Extract(ctx, "anything")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("backoff did not honor context cancellation (took %v)", elapsed)
	}
	if len(raw) != 0 {
		t.Errorf("record = %v, want empty after cancellation", raw)
	}
}

func TestBuildExtractionPrompt(t *testing.T) {
	reg := mustRegistry(t)
	prompt := buildExtractionPrompt(reg, `2020 Toyota "Camry"`)

	for _, want := range []string{
		"manufacturer:",
		"front_wheel_drive",
		"accidents_or_damage",
		"Return ONLY the JSON object:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "seller_rating:") {
		t.Error("prompt must not ask for auto-filled features")
	}
}
