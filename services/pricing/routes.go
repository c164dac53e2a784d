// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pricing

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the pricing API with the router group.
//
// Description:
//
//	Registers the /api/v1 endpoints. The router group should already have
//	any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /api/v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /api/v1/predict - Estimate a resale price from a description
//	GET  /api/v1/health - Component readiness check
//
// Example:
//
//	handlers := pricing.NewHandlers(service, limiter)
//	v1 := router.Group("/api/v1")
//	pricing.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.POST("/predict", handlers.HandlePredict)
	rg.GET("/health", handlers.HandleHealth)
}
