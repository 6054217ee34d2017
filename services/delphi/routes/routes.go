// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/handlers"
)

// SetupRoutes registers the delphi endpoints on the router.
func SetupRoutes(router *gin.Engine, env *handlers.Env) {
	router.GET("/health", handlers.HealthCheck(env))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	topicMod := router.Group("/topicMod")
	{
		topicMod.GET("/topics", handlers.GetTopics(env))
		topicMod.GET("/proximity", handlers.GetProximity(env))
		topicMod.GET("/hierarchy", handlers.GetHierarchy(env))
		topicMod.GET("/stats", handlers.GetStats(env))
		topicMod.POST("/moderate", handlers.ModerateTopic(env))
		topicMod.GET("/events", handlers.ModerationEvents(env))
	}

	delphi := router.Group("/delphi")
	{
		delphi.GET("/reports", handlers.GetReports(env))
	}
}
