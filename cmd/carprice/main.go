// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command carprice runs the used car price estimation service.
//
// Usage:
//
//	go run ./cmd/carprice serve
//	go run ./cmd/carprice serve --port 9090 --debug
//	go run ./cmd/carprice predict "2020 Toyota Camry, 45k miles, one owner"
//
// Configuration (environment, .env supported):
//
//	GEMINI_API_KEY      - Gemini API key (optional; without it extraction
//	                      degrades to fully defaulted estimates)
//	GEMINI_MODEL        - Gemini model name (default gemini-2.5-flash)
//	MODEL_SERVER_URL    - Base URL of the regression model server (required
//	                      for predictions)
//	RATE_LIMIT_PER_DAY  - Daily prediction quota (default 30)
//	LLM_MAX_RETRIES     - Extraction retry attempts (default 3)
//	PORT                - HTTP port (default 8080)
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
//	# Price estimate
//	curl -X POST http://localhost:8080/api/v1/predict \
//	  -H "Content-Type: application/json" \
//	  -d '{"description": "2020 Toyota Camry, 45k miles, one owner"}'
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Best effort: a missing .env just means plain environment config.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env")
	}

	rootCmd := &cobra.Command{
		Use:   "carprice",
		Short: "Used car price estimation service",
		Long: `carprice estimates used car resale prices from free-text descriptions.

A description like "2020 Toyota Camry, 45k miles, one owner" is turned
into a structured feature record via LLM extraction, validated against
the model schema, and priced by the regression model server.`,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPredictCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envInt reads an integer environment variable with a fallback.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value",
			slog.String("name", name),
			slog.String("value", raw),
		)
		return fallback
	}
	return n
}
