// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// GetHierarchy serves GET /topicMod/hierarchy: the cluster forest for the
// circle-pack visualization, parent references inverted into child edges.
func GetHierarchy(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "hierarchy"
		emptyTree := gin.H{
			"hierarchy": gin.H{
				"name":          "topics",
				"children":      []any{},
				"totalClusters": 0,
				"layerCounts":   gin.H{},
			},
		}
		partition := resolveConversation(c, env, endpoint, emptyTree)
		if partition == "" {
			return
		}
		ctx := c.Request.Context()

		var opts aggregate.FetchOptions
		if jobID := c.Query("job_id"); jobID != "" {
			opts.SortPrefix = jobID + datatypes.KeyDelimiter
		}
		records, err := env.Fetcher.FetchRecords(ctx, storage.TableTopics, partition, opts)
		if err != nil {
			softStoreFailure(c, env, endpoint, storage.TableTopics, err, emptyTree)
			return
		}

		h := aggregate.BuildHierarchy(records, loggerWithTrace(ctx, env.logger()))

		// Layer counts keyed as strings so the JSON object shape is stable.
		layerCounts := gin.H{}
		for layer, count := range h.LayerCounts {
			layerCounts[strconv.Itoa(layer)] = count
		}

		// A nil slice would serialize as null and break the console.
		children := any(h.Roots)
		if len(h.Roots) == 0 {
			children = []any{}
		}

		env.Metrics.RecordRequest(endpoint, true)
		respondSuccess(c, gin.H{
			"hierarchy": gin.H{
				"name":          "topics",
				"children":      children,
				"totalClusters": h.TotalNodes,
				"layerCounts":   layerCounts,
			},
		})
	}
}
