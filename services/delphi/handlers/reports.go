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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// narrativeView shapes one narrative record for the wire.
func narrativeView(rec datatypes.Record) gin.H {
	view := gin.H{
		"content":   rec.Payload,
		"timestamp": rec.Timestamp,
	}
	if n, err := datatypes.ParseNarrativeRecord(rec); err == nil {
		view["section"] = n.Section
		view["topic_key"] = n.TopicKey
		if n.Model != "" {
			view["model"] = n.Model
		}
	}
	return view
}

// GetReports serves GET /delphi/reports: narrative report sections from
// the most recent generation run, optionally narrowed to one section or
// one topic within a section.
//
// Successive generation passes over the same report share a minute-level
// timestamp prefix; only the newest run is served, with older run keys
// listed so the console can offer history.
func GetReports(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "reports"

		reportID := c.Query("report_id")
		if reportID == "" {
			env.Metrics.RecordRequest(endpoint, false)
			respondError(c, KindMissingParameter, "report_id is required")
			return
		}
		ctx := c.Request.Context()

		partition, err := env.Resolver.ResolveReport(ctx, reportID)
		if err != nil {
			if errors.Is(err, resolver.ErrNotResolved) {
				env.Metrics.RecordRequest(endpoint, false)
				respondError(c, KindIdentifierNotFound, "unknown report_id")
				return
			}
			softStoreFailure(c, env, endpoint, storage.TableReports, err, gin.H{})
			return
		}

		empty := gin.H{
			"reports":        gin.H{},
			"current_run":    "",
			"available_runs": []string{},
		}

		records, err := env.Fetcher.FetchRecords(ctx, storage.TableNarratives, partition, aggregate.FetchOptions{})
		if err != nil {
			softStoreFailure(c, env, endpoint, storage.TableNarratives, err, empty)
			return
		}

		runs, currentKey := aggregate.GroupIntoRuns(records, aggregate.TruncMinute)
		if currentKey == "" {
			// No runs at all; an empty report is a valid state, not an error.
			env.Metrics.RecordRequest(endpoint, true)
			respondSuccess(c, empty)
			return
		}
		current := runs[currentKey]
		availableRuns := aggregate.RunKeys(runs)

		section := c.Query("section")
		topicKey := c.Query("topic_key")

		switch {
		case section == "":
			// Whole report: one entry per section from the current run.
			reports := gin.H{}
			for name, rec := range aggregate.LatestBySection(current) {
				reports[name] = narrativeView(rec)
			}
			env.Metrics.RecordRequest(endpoint, true)
			respondSuccess(c, gin.H{
				"reports":        reports,
				"current_run":    currentKey,
				"available_runs": availableRuns,
			})

		case topicKey == "":
			rec, ok := aggregate.LatestBySection(current)[section]
			env.Metrics.RecordRequest(endpoint, true)
			if !ok {
				// Unknown section is a success with an empty payload, so
				// the console treats it as "nothing generated yet".
				respondSuccess(c, gin.H{
					"data":           gin.H{},
					"current_run":    currentKey,
					"available_runs": availableRuns,
				})
				return
			}
			respondSuccess(c, gin.H{
				"data":           narrativeView(rec),
				"current_run":    currentKey,
				"available_runs": availableRuns,
			})

		default:
			rec, ok := aggregate.LatestByTopic(current, section)[topicKey]
			env.Metrics.RecordRequest(endpoint, true)
			if !ok {
				respondSuccess(c, gin.H{
					"data":           gin.H{},
					"current_run":    currentKey,
					"available_runs": availableRuns,
				})
				return
			}
			respondSuccess(c, gin.H{
				"data":           narrativeView(rec),
				"current_run":    currentKey,
				"available_runs": availableRuns,
			})
		}
	}
}
