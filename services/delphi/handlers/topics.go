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
	"context"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// fetchModeratedTopics runs the shared topics ⟕ moderation pipeline:
// fetch both tables, type the records, pick the job, and join. The job
// defaults to the most recently written one when jobID is empty.
func fetchModeratedTopics(ctx context.Context, env *Env, partition, jobID string) ([]aggregate.ModeratedTopic, string, error) {
	var opts aggregate.FetchOptions
	if jobID != "" {
		opts.SortPrefix = jobID + datatypes.KeyDelimiter
	}
	rawTopics, err := env.Fetcher.FetchRecords(ctx, storage.TableTopics, partition, opts)
	if err != nil {
		return nil, storage.TableTopics, err
	}

	log := loggerWithTrace(ctx, env.logger())
	topics, skipped := aggregate.ParseTopics(rawTopics, log)
	env.Metrics.RecordSkipped(storage.TableTopics, skipped)
	if jobID == "" {
		jobID = aggregate.LatestJobID(topics)
	}
	topics = aggregate.FilterJob(topics, jobID)

	rawMods, err := env.Fetcher.FetchRecords(ctx, storage.TableModeration, partition, aggregate.FetchOptions{})
	if err != nil {
		return nil, storage.TableModeration, err
	}
	mods, skipped := aggregate.ModerationIndex(rawMods, log)
	env.Metrics.RecordSkipped(storage.TableModeration, skipped)

	return aggregate.JoinTopicsWithModeration(topics, mods), "", nil
}

// GetTopics serves GET /topicMod/topics: every topic of one clustering job
// with its moderation status, bucketed by layer.
func GetTopics(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "topics"
		empty := gin.H{
			"topics_by_layer": gin.H{},
			"total_topics":    0,
		}
		partition := resolveConversation(c, env, endpoint, empty)
		if partition == "" {
			return
		}

		joined, failedTable, err := fetchModeratedTopics(
			c.Request.Context(), env, partition, c.Query("job_id"))
		if err != nil {
			softStoreFailure(c, env, endpoint, failedTable, err, empty)
			return
		}

		env.Metrics.RecordRequest(endpoint, true)
		respondSuccess(c, gin.H{
			"topics_by_layer": aggregate.BucketByLayer(joined),
			"total_topics":    len(joined),
		})
	}
}

// GetStats serves GET /topicMod/stats: moderation tallies for one
// conversation. Zero records yields all-zero counts, not an error.
func GetStats(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "stats"
		empty := gin.H{"stats": aggregate.StatsCounts{}}
		partition := resolveConversation(c, env, endpoint, empty)
		if partition == "" {
			return
		}

		joined, failedTable, err := fetchModeratedTopics(
			c.Request.Context(), env, partition, c.Query("job_id"))
		if err != nil {
			softStoreFailure(c, env, endpoint, failedTable, err, empty)
			return
		}

		env.Metrics.RecordRequest(endpoint, true)
		respondSuccess(c, gin.H{
			"stats": aggregate.CountStatuses(joined),
		})
	}
}
