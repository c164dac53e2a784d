// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package features defines the feature schema the price regression model
// was trained on, and the validation pipeline that turns untrusted
// extractor output into a complete, schema-valid feature record.
package features

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Feature Schema
// =============================================================================

//go:embed features.yaml
var defaultSchemaYAML []byte

// Kind identifies the value type of a model feature.
type Kind string

// Feature kinds supported by the schema.
const (
	KindCategorical Kind = "categorical"
	KindInteger     Kind = "integer"
	KindFloat       Kind = "float"
	KindBoolean     Kind = "boolean"
)

// FeatureSpec describes a single input feature of the regression model.
//
// Description:
//
//	Carries everything the validator needs to accept, reject, or repair a
//	raw value: the value kind, the categorical domain with its synonym
//	canonicalization table, numeric bounds, and the default used when the
//	extractor could not supply a value.
//
// Thread Safety: Immutable after registry load.
type FeatureSpec struct {
	// Name is the model column name, e.g. "fuel_type".
	Name string `yaml:"name"`

	// Kind is the value type: categorical, integer, float, or boolean.
	Kind Kind `yaml:"kind"`

	// Display is the human-readable feature name used in warnings.
	Display string `yaml:"display"`

	// Default is the value substituted when the feature is missing.
	// Normalized to the kind's Go type (string, int, float64, bool) at load.
	Default any `yaml:"default"`

	// DefaultNote explains the semantic meaning of the default in warnings,
	// e.g. "average seller quality".
	DefaultNote string `yaml:"default_note"`

	// Valid is the categorical domain. Categorical only.
	Valid []string `yaml:"valid"`

	// Synonyms maps lowercase extractor spellings to canonical domain
	// values, e.g. "fwd" -> "front_wheel_drive". Categorical only.
	Synonyms map[string]string `yaml:"synonyms"`

	// Min and Max bound numeric features. Numeric kinds only.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// AutoFilled marks seller-reputation features the user can never
	// provide. They are excluded from extraction and always defaulted.
	AutoFilled bool `yaml:"auto_filled"`
}

// HasOthers reports whether the categorical domain defines the "others"
// sentinel used for out-of-domain remapping.
func (s *FeatureSpec) HasOthers() bool {
	for _, v := range s.Valid {
		if v == OthersSentinel {
			return true
		}
	}
	return false
}

// OthersSentinel is the catch-all categorical value the model was trained
// with for values outside the known domain.
const OthersSentinel = "others"

// Registry is the immutable set of FeatureSpecs in model column order.
//
// Description:
//
//	Loaded once from the embedded features.yaml at process start. The
//	declaration order of the specs is the exact column order the model
//	expects; Names() is the single source of truth for vector ordering.
//
// Thread Safety: Safe for concurrent use after load (read-only).
type Registry struct {
	specs  []FeatureSpec
	byName map[string]*FeatureSpec
}

var (
	cachedRegistry *Registry
	registryOnce   sync.Once
	registryErr    error
)

// Load parses and caches the embedded feature schema.
//
// Description:
//
//	Every downstream guarantee depends on the schema being well-formed, so
//	any defect (unknown kind, default outside its own bounds, synonym
//	pointing at a value not in the domain) is a load error. Callers must
//	treat a load failure as fatal: the process cannot serve requests.
//
// Outputs:
//   - *Registry: The loaded registry. Never nil on success.
//   - error: Non-nil if the schema is malformed.
//
// Thread Safety: Safe for concurrent use (uses sync.Once internally).
func Load() (*Registry, error) {
	registryOnce.Do(func() {
		reg, err := parseRegistry(defaultSchemaYAML)
		if err != nil {
			registryErr = err
			return
		}
		cachedRegistry = reg
		slog.Info("Feature schema loaded",
			slog.Int("feature_count", len(reg.specs)),
		)
	})
	return cachedRegistry, registryErr
}

// schemaFile is the YAML document shape of features.yaml.
type schemaFile struct {
	Features []FeatureSpec `yaml:"features"`
}

// parseRegistry decodes and validates a schema document.
func parseRegistry(data []byte) (*Registry, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("features: parsing schema YAML: %w", err)
	}
	if len(file.Features) == 0 {
		return nil, fmt.Errorf("features: schema declares no features")
	}

	reg := &Registry{
		specs:  file.Features,
		byName: make(map[string]*FeatureSpec, len(file.Features)),
	}

	for i := range reg.specs {
		spec := &reg.specs[i]
		if err := checkSpec(spec); err != nil {
			return nil, fmt.Errorf("features: feature %q: %w", spec.Name, err)
		}
		if _, dup := reg.byName[spec.Name]; dup {
			return nil, fmt.Errorf("features: duplicate feature %q", spec.Name)
		}
		reg.byName[spec.Name] = spec
	}

	return reg, nil
}

// checkSpec validates a single spec and normalizes its default value to
// the canonical Go type for its kind.
func checkSpec(spec *FeatureSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("missing name")
	}
	if spec.Display == "" {
		return fmt.Errorf("missing display name")
	}

	switch spec.Kind {
	case KindCategorical:
		if len(spec.Valid) == 0 {
			return fmt.Errorf("categorical feature has no valid values")
		}
		def, ok := spec.Default.(string)
		if !ok {
			return fmt.Errorf("default %v is not a string", spec.Default)
		}
		if !containsValue(spec.Valid, def) {
			return fmt.Errorf("default %q is not in the valid value set", def)
		}
		spec.Default = def
		for syn, target := range spec.Synonyms {
			if syn != strings.ToLower(syn) {
				return fmt.Errorf("synonym key %q is not lowercase", syn)
			}
			if !containsValue(spec.Valid, target) {
				return fmt.Errorf("synonym %q maps to unknown value %q", syn, target)
			}
		}

	case KindInteger, KindFloat:
		if spec.Min == nil || spec.Max == nil {
			return fmt.Errorf("numeric feature is missing min/max bounds")
		}
		if *spec.Min > *spec.Max {
			return fmt.Errorf("min %v exceeds max %v", *spec.Min, *spec.Max)
		}
		def, ok := asFloat(spec.Default)
		if !ok {
			return fmt.Errorf("default %v is not numeric", spec.Default)
		}
		if def < *spec.Min || def > *spec.Max {
			return fmt.Errorf("default %v is outside [%v, %v]", def, *spec.Min, *spec.Max)
		}
		if spec.Kind == KindInteger {
			if def != math.Trunc(def) {
				return fmt.Errorf("default %v is not an integer", def)
			}
			spec.Default = int(def)
		} else {
			spec.Default = def
		}

	case KindBoolean:
		def, ok := spec.Default.(bool)
		if !ok {
			return fmt.Errorf("default %v is not a boolean", spec.Default)
		}
		spec.Default = def

	default:
		return fmt.Errorf("unknown kind %q", spec.Kind)
	}

	return nil
}

// containsValue reports whether v is in the list (exact match).
func containsValue(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// asFloat converts the numeric types YAML decoding can produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Names returns every feature name in model column order.
//
// The returned slice is a copy; callers may not affect the registry.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, spec := range r.specs {
		names[i] = spec.Name
	}
	return names
}

// Spec returns the FeatureSpec for a feature name.
//
// Outputs:
//   - *FeatureSpec: The spec, or nil if the name is unknown.
//   - bool: True if the feature exists.
func (r *Registry) Spec(name string) (*FeatureSpec, bool) {
	spec, ok := r.byName[name]
	return spec, ok
}

// Specs returns all FeatureSpecs in model column order.
//
// The returned slice aliases the registry's internal storage and must be
// treated as read-only.
func (r *Registry) Specs() []FeatureSpec {
	return r.specs
}

// UserProvidable returns the names of features the extractor is allowed to
// supply. Auto-filled seller-reputation features are excluded: a user
// describing a car cannot know them.
func (r *Registry) UserProvidable() []string {
	names := make([]string, 0, len(r.specs))
	for _, spec := range r.specs {
		if !spec.AutoFilled {
			names = append(names, spec.Name)
		}
	}
	return names
}
