// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns a free-text car description into an untrusted
// RawExtraction via the LLM collaborator, with bounded retry and
// best-effort salvage parsing. Extraction never fails the request: after
// retries are exhausted it degrades to the empty record and lets the
// validator's default-filling take over.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/carprice/services/pricing/features"
)

// Generator is the text-generation collaborator (satisfied by
// llm.GeminiClient).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config controls the retry/backoff behavior of the extractor.
type Config struct {
	// MaxRetries is the total number of attempts (default 3).
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles per attempt
	// (default 500ms).
	BaseDelay time.Duration

	// Timeout bounds each individual attempt (default 20s).
	Timeout time.Duration
}

// withDefaults fills zero-valued fields with production defaults.
func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// Extractor converts free text into a RawExtraction.
//
// Description:
//
//	Issues one structured-extraction prompt to the Generator and parses
//	the JSON-shaped reply. Only the user-providable features are accepted;
//	the seller-reputation features are always defaulted downstream, so any
//	value the model hallucinates for them is discarded here.
//
// Thread Safety: Safe for concurrent use.
type Extractor struct {
	gen     Generator
	reg     *features.Registry
	cfg     Config
	allowed map[string]struct{}
}

// NewExtractor creates an Extractor over the given generator and registry.
// A nil generator is allowed: extraction then always degrades to the empty
// record (the service keeps answering with fully defaulted vectors).
func NewExtractor(gen Generator, reg *features.Registry, cfg Config) *Extractor {
	allowed := make(map[string]struct{})
	for _, name := range reg.UserProvidable() {
		allowed[name] = struct{}{}
	}
	return &Extractor{
		gen:     gen,
		reg:     reg,
		cfg:     cfg.withDefaults(),
		allowed: allowed,
	}
}

// Extract produces a RawExtraction for the description.
//
// Description:
//
//	Bounded retry loop with exponential backoff around the generation
//	call. Transport and API failures retry; a reply that contains no JSON
//	object at all counts as a failed attempt. A reply that contains a
//	recognizable but partially malformed object is salvaged key by key.
//	After the last attempt fails, returns the empty record, never an
//	error: schema-safe degradation is this component's contract.
//
// Inputs:
//   - ctx: Context bounding the whole extraction, including backoff waits.
//   - text: The user's car description.
//
// Outputs:
//   - features.RawExtraction: Untrusted extracted fields. Possibly empty,
//     never nil.
func (e *Extractor) Extract(ctx context.Context, text string) features.RawExtraction {
	if e.gen == nil {
		slog.Warn("Extraction collaborator not configured, returning empty record")
		return features.RawExtraction{}
	}

	prompt := buildExtractionPrompt(e.reg, text)

	var lastErr error
	delay := e.cfg.BaseDelay

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		reply, err := e.gen.Generate(attemptCtx, prompt)
		cancel()

		if err == nil {
			raw, perr := parseExtraction(reply, e.allowed)
			if perr == nil {
				slog.Debug("Feature extraction succeeded",
					slog.Int("attempt", attempt),
					slog.Int("field_count", len(raw)),
				)
				return raw
			}
			err = perr
		}

		lastErr = err
		if attempt < e.cfg.MaxRetries {
			slog.Warn("Extraction attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", e.cfg.MaxRetries),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				slog.Warn("Extraction cancelled during backoff, returning empty record",
					slog.String("error", ctx.Err().Error()))
				return features.RawExtraction{}
			}
			delay *= 2
		}
	}

	slog.Warn("Extraction failed after all retries, degrading to empty record",
		slog.Int("attempts", e.cfg.MaxRetries),
		slog.String("error", lastErr.Error()),
	)
	return features.RawExtraction{}
}

// keyValuePattern salvages individual "key": value pairs from a reply
// that does not decode as a whole. Values may be strings, numbers,
// booleans, or null.
var keyValuePattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?|true|false|null)`)

// parseExtraction decodes the LLM reply into a RawExtraction.
//
// Description:
//
//	Strips markdown code fences, isolates the outermost JSON object, and
//	decodes it. If the object is malformed, recognizable top-level
//	key/value pairs are salvaged individually; fields that cannot be
//	salvaged are simply absent, which the validator treats as "not
//	provided". Null fields and keys outside the allowed set are dropped.
//
// Outputs:
//   - features.RawExtraction: Parsed fields. May be empty.
//   - error: Non-nil only when no JSON object is present at all.
func parseExtraction(reply string, allowed map[string]struct{}) (features.RawExtraction, error) {
	text := strings.TrimSpace(reply)

	// Remove markdown code fences the model sometimes wraps JSON in.
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if strings.HasPrefix(lines[0], "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
			lines = lines[:len(lines)-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("extract: no JSON object in reply")
	}
	jsonStr := text[start : end+1]

	var decoded map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
		return salvageFields(jsonStr, allowed), nil
	}

	raw := make(features.RawExtraction, len(decoded))
	for key, value := range decoded {
		if _, ok := allowed[key]; !ok || value == nil {
			continue
		}
		raw[key] = value
	}
	return raw, nil
}

// salvageFields recovers whatever individual pairs still parse from a
// malformed JSON object.
func salvageFields(jsonStr string, allowed map[string]struct{}) features.RawExtraction {
	raw := features.RawExtraction{}
	for _, match := range keyValuePattern.FindAllStringSubmatch(jsonStr, -1) {
		key := match[1]
		if _, ok := allowed[key]; !ok {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(match[2]), &value); err != nil || value == nil {
			continue
		}
		raw[key] = value
	}
	slog.Warn("Extraction reply malformed, salvaged partial fields",
		slog.Int("field_count", len(raw)),
	)
	return raw
}
