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
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// GetProximity serves GET /topicMod/proximity: the 2D comment positions
// for the UMAP scatter plot, joined with cluster assignments when those
// exist. layer_id defaults to "all".
func GetProximity(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "proximity"
		empty := gin.H{
			"proximity_data": []any{},
			"total_points":   0,
		}
		partition := resolveConversation(c, env, endpoint, empty)
		if partition == "" {
			return
		}
		ctx := c.Request.Context()

		layerID := c.DefaultQuery("layer_id", "all")
		if layerID != "all" {
			if _, err := strconv.Atoi(layerID); err != nil {
				env.Metrics.RecordRequest(endpoint, false)
				respondError(c, KindInvalidParameter, "layer_id must be a number or 'all'")
				return
			}
		}

		coords, err := env.Fetcher.FetchRecords(ctx, storage.TableCoordinates, partition, aggregate.FetchOptions{})
		if err != nil {
			softStoreFailure(c, env, endpoint, storage.TableCoordinates, err, empty)
			return
		}

		// Assignments are optional enrichment: an unprovisioned assignment
		// table must not blank out the scatter plot.
		assignments, err := env.Fetcher.FetchRecords(ctx, storage.TableAssignments, partition, aggregate.FetchOptions{})
		if err != nil {
			if !errors.Is(err, storage.ErrTableNotProvisioned) {
				softStoreFailure(c, env, endpoint, storage.TableAssignments, err, empty)
				return
			}
			env.Metrics.RecordStoreError(storage.TableAssignments, "not_provisioned")
			assignments = nil
		}

		points, skipped := aggregate.BuildProximity(
			coords, assignments, layerID, loggerWithTrace(ctx, env.logger()))
		env.Metrics.RecordSkipped(storage.TableCoordinates, skipped)

		env.Metrics.RecordRequest(endpoint, true)
		respondSuccess(c, gin.H{
			"proximity_data": points,
			"total_points":   len(points),
		})
	}
}
