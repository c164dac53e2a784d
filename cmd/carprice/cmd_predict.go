// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// predictTimeout bounds the one-shot CLI prediction, covering extraction
// retries plus the model call.
const predictTimeout = 2 * time.Minute

// newPredictCommand builds the predict subcommand for one-shot estimates
// without running the server.
func newPredictCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "predict \"<description>\"",
		Short: "Estimate a price for one description and print JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runPredict(strings.Join(args, " "))
		},
	}
}

// runPredict runs the pipeline once and prints the response as JSON.
func runPredict(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("predict: description must not be blank")
	}

	svc, _, err := buildPipeline()
	if err != nil {
		return err
	}
	if !svc.ModelReady() {
		return fmt.Errorf("predict: MODEL_SERVER_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), predictTimeout)
	defer cancel()

	resp, err := svc.Estimate(ctx, description)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
