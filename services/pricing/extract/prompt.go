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
	"fmt"
	"strings"

	"github.com/AleutianAI/carprice/services/pricing/features"
)

// buildExtractionPrompt renders the structured-extraction prompt for a car
// description. The valid categorical values come straight from the feature
// registry so the prompt can never drift from the validator's domain.
func buildExtractionPrompt(reg *features.Registry, userInput string) string {
	var b strings.Builder

	b.WriteString(`You are a car feature extraction assistant. Extract structured information from the user's car description.

RULES:
1. Extract ONLY the features mentioned by the user.
2. Return ONLY a valid JSON object, no other text.
3. Use null for features not mentioned.
4. Map common terms to the valid values listed below.

Valid values for categorical features:

`)

	for _, spec := range reg.Specs() {
		if spec.AutoFilled || spec.Kind != features.KindCategorical {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", spec.Name, strings.Join(spec.Valid, ", "))
	}

	b.WriteString(`
Mapping examples:
- "FWD" or "front wheel" -> "front_wheel_drive"
- "AWD" or "all wheel" -> "all_wheel_drive"
- "4WD" or "4x4" -> "four_wheel_drive"
- "RWD" or "rear wheel" -> "rear_wheel_drive"
- "automatic" -> "Automatic" (or the closest match in the transmission list)
- "manual" -> "6-Speed Manual"
- "Benz" -> "Mercedes-Benz"
- Unknown values -> "others"

Boolean features (true or false):
- accidents_or_damage: true if accidents or damage are mentioned, false for "no accidents" or "clean title"
- one_owner: true if "one owner" or "single owner" is mentioned
- personal_use_only: true for "personal use" or "daily driver", false for "fleet" or "rental"

Numeric features:
`)

	yearSpec, _ := reg.Spec("year")
	fmt.Fprintf(&b, "- year: 4-digit model year (range %s-%s)\n",
		formatBound(*yearSpec.Min), formatBound(*yearSpec.Max))
	b.WriteString(`- mileage: number in miles ("45k miles" -> 45000)
- mpg: only if explicitly mentioned, otherwise null

Example:
Input: "2020 Toyota Camry, 45k miles, automatic, one owner, no accidents"
Output:
{
  "manufacturer": "Toyota",
  "year": 2020,
  "mileage": 45000,
  "transmission": "Automatic",
  "one_owner": true,
  "accidents_or_damage": false,
  "drivetrain": null,
  "fuel_type": null,
  "interior_color": null,
  "mpg": null,
  "personal_use_only": null
}

Now extract features from this description:
`)
	fmt.Fprintf(&b, "%q\n\nReturn ONLY the JSON object:", userInput)

	return b.String()
}

// formatBound renders a numeric bound without a decimal point.
func formatBound(v float64) string {
	return fmt.Sprintf("%d", int(v))
}
