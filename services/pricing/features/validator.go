// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package features

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RawExtraction is the untrusted key/value record produced by the
// extraction collaborator. Values may be missing, null, out-of-domain,
// out-of-range, or of the wrong type. No invariants hold by construction;
// the Validator exists to collapse every field into a single valid case.
type RawExtraction map[string]any

// ValidatedFeatures is a complete feature record: one entry per registry
// name, each value guaranteed to satisfy its spec's kind and domain.
//
// Value types by kind: categorical -> string, integer -> int,
// float -> float64, boolean -> bool. Treat as immutable after creation.
type ValidatedFeatures map[string]any

// ErrIncomplete indicates a registry/validator defect that left the
// validated record missing a declared feature. This is a programming
// error, not a user input problem, and must surface as an internal error.
var ErrIncomplete = errors.New("features: validated record is incomplete")

// numberPattern captures the first numeric value in a free-form string,
// after currency symbols and thousands separators are stripped.
var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Validator normalizes RawExtractions against the feature registry.
//
// Description:
//
//	Runs once per feature, in schema declaration order: missing values get
//	defaults (the MPG estimator for mpg), out-of-domain categoricals are
//	canonicalized via the registry synonym table or remapped to the
//	"others" sentinel, out-of-range numerics are clamped to the nearer
//	bound, and wrong-typed values get a best-effort coercion before being
//	treated as missing. Every substitution emits a human-readable warning.
//
// Thread Safety: Safe for concurrent use; holds only the immutable registry.
type Validator struct {
	reg *Registry
}

// NewValidator creates a Validator over the given registry.
func NewValidator(reg *Registry) *Validator {
	return &Validator{reg: reg}
}

// Validate turns an untrusted record into a complete, schema-valid one.
//
// Description:
//
//	Always produces a fully populated ValidatedFeatures for any input,
//	including the empty record. Warnings are ordered by schema declaration
//	order so substitution reports are deterministic.
//
// Inputs:
//   - raw: The untrusted extractor output. May be nil.
//
// Outputs:
//   - ValidatedFeatures: Complete record, ready for the prediction service.
//   - []string: One warning per defaulted, clamped, or remapped feature.
//   - error: Non-nil only on an internal completeness violation
//     (wraps ErrIncomplete).
func (v *Validator) Validate(raw RawExtraction) (ValidatedFeatures, []string, error) {
	out := make(ValidatedFeatures, len(v.reg.specs))
	warnings := make([]string, 0, len(v.reg.specs))

	for i := range v.reg.specs {
		spec := &v.reg.specs[i]
		value, warning := v.resolve(spec, raw, out)
		out[spec.Name] = value
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	// Completeness is a hard invariant: the prediction service consumes
	// this record without further checks.
	for _, spec := range v.reg.specs {
		if _, ok := out[spec.Name]; !ok {
			return nil, nil, fmt.Errorf("%w: missing %q", ErrIncomplete, spec.Name)
		}
	}

	return out, warnings, nil
}

// resolve produces the validated value and optional warning for one spec.
// Features already resolved in this pass are available in resolved, which
// is how the mpg estimator sees the final fuel_type and year.
func (v *Validator) resolve(spec *FeatureSpec, raw RawExtraction, resolved ValidatedFeatures) (any, string) {
	rawValue, present := raw[spec.Name]
	if !present || rawValue == nil {
		return v.substitute(spec, resolved)
	}

	switch spec.Kind {
	case KindCategorical:
		s, ok := coerceString(rawValue)
		if !ok {
			return v.substitute(spec, resolved)
		}
		canonical, matched := canonicalize(spec, s)
		if matched {
			return canonical, ""
		}
		replacement := spec.Default.(string)
		if spec.HasOthers() {
			replacement = OthersSentinel
		}
		return replacement, fmt.Sprintf("Unknown %s %q, using %q", spec.Display, s, replacement)

	case KindInteger:
		n, ok := coerceNumber(rawValue)
		if !ok {
			return v.substitute(spec, resolved)
		}
		clamped, warning := clampNumber(spec, n)
		return int(math.Round(clamped)), warning

	case KindFloat:
		n, ok := coerceNumber(rawValue)
		if !ok {
			return v.substitute(spec, resolved)
		}
		clamped, warning := clampNumber(spec, n)
		return clamped, warning

	case KindBoolean:
		b, ok := coerceBool(rawValue)
		if !ok {
			return v.substitute(spec, resolved)
		}
		return b, ""
	}

	// Unreachable for a loaded registry; keep the record complete anyway.
	return spec.Default, fmt.Sprintf("Using default %s (%s)", spec.Display, spec.DefaultNote)
}

// substitute fills a missing feature. The mpg feature is special: instead
// of a static default it gets the estimator output for the already
// resolved fuel_type and year (both precede mpg in declaration order).
func (v *Validator) substitute(spec *FeatureSpec, resolved ValidatedFeatures) (any, string) {
	if spec.Name == "mpg" {
		fuelType, _ := resolved["fuel_type"].(string)
		year, _ := resolved["year"].(int)
		est := EstimateMPG(fuelType, year)
		return est, fmt.Sprintf("Using estimated fuel economy (%.1f MPG based on fuel type and model year)", est)
	}
	return spec.Default, fmt.Sprintf("Using default %s (%s)", spec.Display, spec.DefaultNote)
}

// canonicalize maps a raw categorical value onto the spec's domain.
//
// Matching order: exact, case-insensitive, then the synonym table. A
// synonym hit is a recognized value, not a substitution, so no warning.
func canonicalize(spec *FeatureSpec, raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, valid := range spec.Valid {
		if valid == trimmed {
			return valid, true
		}
	}
	lower := strings.ToLower(trimmed)
	for _, valid := range spec.Valid {
		if strings.ToLower(valid) == lower {
			return valid, true
		}
	}
	if canonical, ok := spec.Synonyms[lower]; ok {
		return canonical, true
	}
	return "", false
}

// clampNumber clamps n to the spec bounds, warning on substitution.
func clampNumber(spec *FeatureSpec, n float64) (float64, string) {
	switch {
	case n < *spec.Min:
		return *spec.Min, fmt.Sprintf("Provided %s (%s) is below the supported minimum, using %s",
			spec.Display, formatNumber(n), formatNumber(*spec.Min))
	case n > *spec.Max:
		return *spec.Max, fmt.Sprintf("Provided %s (%s) is above the supported maximum, using %s",
			spec.Display, formatNumber(n), formatNumber(*spec.Max))
	default:
		return n, ""
	}
}

// formatNumber renders a number without a trailing ".0" for whole values.
func formatNumber(n float64) string {
	if n == math.Trunc(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// coerceString accepts string values only; empty after trimming fails.
func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// coerceNumber performs best-effort numeric coercion.
//
// Strings are cleaned of currency symbols and thousands separators before
// the leading number is parsed. A "k" immediately after the number is a
// thousands multiplier ("45k miles" -> 45000).
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumericString(n)
	default:
		return 0, false
	}
}

// parseNumericString extracts the leading numeric value from a string.
func parseNumericString(s string) (float64, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	loc := numberPattern.FindStringIndex(cleaned)
	if loc == nil {
		return 0, false
	}

	n, err := strconv.ParseFloat(cleaned[loc[0]:loc[1]], 64)
	if err != nil {
		return 0, false
	}

	if loc[1] < len(cleaned) && cleaned[loc[1]] == 'k' {
		n *= 1000
	}
	return n, true
}

// coerceBool performs best-effort boolean coercion. The extractor commonly
// returns 0/1 for binary features.
func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "y":
			return true, true
		case "0", "false", "no", "n":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}
