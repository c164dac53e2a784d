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

import "math"

// baseMPGByFuelType is the estimation table used when the user does not
// provide a fuel economy figure. Electric is MPG-equivalent.
var baseMPGByFuelType = map[string]float64{
	"Gasoline":                      25.0,
	"Hybrid":                        45.0,
	"Plug-In Hybrid":                50.0,
	"Diesel":                        30.0,
	"Electric":                      100.0,
	"E85 Flex Fuel":                 23.0,
	"Flexible Fuel":                 23.0,
	"Gasoline/Mild Electric Hybrid": 35.0,
	"Gasoline Fuel":                 25.0,
	"others":                        25.0,
}

// defaultBaseMPG is used for fuel types outside the estimation table.
const defaultBaseMPG = 25.0

// EstimateMPG estimates fuel economy from fuel type and model year.
//
// Description:
//
//	Looks up a base MPG per fuel type and applies a year adjustment:
//	+10% for model years 2020 and newer, -10% for 2015 and older.
//	Unknown fuel types fall back to the gasoline baseline.
//
//	Pure function, no I/O. Deterministic so the validator's substitutions
//	stay reproducible.
//
// Inputs:
//   - fuelType: Canonical fuel type value (e.g. "Electric").
//   - year: Model year.
//
// Outputs:
//   - float64: Estimated MPG, rounded to one decimal place.
func EstimateMPG(fuelType string, year int) float64 {
	base, ok := baseMPGByFuelType[fuelType]
	if !ok {
		base = defaultBaseMPG
	}

	switch {
	case year >= 2020:
		base *= 1.1
	case year <= 2015:
		base *= 0.9
	}

	return math.Round(base*10) / 10
}
