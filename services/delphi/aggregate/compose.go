// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

// ModeratedTopic is a topic joined with its moderation state.
type ModeratedTopic struct {
	TopicKey    string                     `json:"topic_key"`
	Layer       int                        `json:"layer"`
	ClusterID   int                        `json:"cluster_id"`
	Name        string                     `json:"name"`
	Size        int                        `json:"size"`
	Status      datatypes.ModerationStatus `json:"status"`
	Moderator   string                     `json:"moderator,omitempty"`
	ModeratedAt string                     `json:"moderated_at,omitempty"`
}

// ParseTopics types raw topic records, logging and skipping malformed ones.
// The returned skip count feeds the parse-boundary metric.
func ParseTopics(records []datatypes.Record, logger *slog.Logger) ([]datatypes.TopicRecord, int) {
	if logger == nil {
		logger = slog.Default()
	}
	topics := make([]datatypes.TopicRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		topic, err := datatypes.ParseTopicRecord(rec)
		if err != nil {
			logger.Warn("skipping malformed topic record",
				"composite_key", rec.CompositeKey, "error", err)
			skipped++
			continue
		}
		topics = append(topics, topic)
	}
	return topics, skipped
}

// LatestJobID picks the job whose records carry the newest timestamp.
// Returns "" for an empty topic list.
func LatestJobID(topics []datatypes.TopicRecord) string {
	jobID, newest := "", ""
	for _, t := range topics {
		if t.Raw.Timestamp > newest || jobID == "" {
			newest = t.Raw.Timestamp
			jobID = t.JobID
		}
	}
	return jobID
}

// FilterJob keeps only topics belonging to jobID.
func FilterJob(topics []datatypes.TopicRecord, jobID string) []datatypes.TopicRecord {
	out := make([]datatypes.TopicRecord, 0, len(topics))
	for _, t := range topics {
		if t.JobID == jobID {
			out = append(out, t)
		}
	}
	return out
}

// ModerationIndex types raw moderation records and keys them by topic key.
// Malformed records are logged and skipped.
func ModerationIndex(records []datatypes.Record, logger *slog.Logger) (map[string]datatypes.ModerationRecord, int) {
	if logger == nil {
		logger = slog.Default()
	}
	index := make(map[string]datatypes.ModerationRecord, len(records))
	skipped := 0
	for _, rec := range records {
		mod, err := datatypes.ParseModerationRecord(rec)
		if err != nil {
			logger.Warn("skipping malformed moderation record",
				"composite_key", rec.CompositeKey, "error", err)
			skipped++
			continue
		}
		index[mod.TopicKey] = mod
	}
	return index, skipped
}

// JoinTopicsWithModeration left-joins topics against moderation decisions.
// Topics without a decision default to pending with no moderator or
// timestamp, so the console always renders a status column.
func JoinTopicsWithModeration(topics []datatypes.TopicRecord, mods map[string]datatypes.ModerationRecord) []ModeratedTopic {
	out := make([]ModeratedTopic, 0, len(topics))
	for _, t := range topics {
		mt := ModeratedTopic{
			TopicKey:  t.Key(),
			Layer:     t.Layer,
			ClusterID: t.ClusterID,
			Name:      t.Name,
			Size:      t.Size,
			Status:    datatypes.StatusPending,
		}
		if mod, ok := mods[t.Key()]; ok {
			mt.Status = mod.Status
			mt.Moderator = mod.Moderator
			mt.ModeratedAt = mod.Timestamp
		}
		out = append(out, mt)
	}
	return out
}

// BucketByLayer groups joined topics by layer, each bucket sorted by
// cluster id ascending. Map keys are stringified layer numbers so the JSON
// object shape matches the console's expectations.
func BucketByLayer(topics []ModeratedTopic) map[string][]ModeratedTopic {
	buckets := make(map[string][]ModeratedTopic, 4)
	for _, t := range topics {
		key := strconv.Itoa(t.Layer)
		buckets[key] = append(buckets[key], t)
	}
	for _, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].ClusterID < bucket[j].ClusterID
		})
	}
	return buckets
}

// StatsCounts are moderation tallies over one conversation's topics.
type StatsCounts struct {
	TotalTopics int `json:"total_topics"`
	Pending     int `json:"pending"`
	Accepted    int `json:"accepted"`
	Rejected    int `json:"rejected"`
	Meta        int `json:"meta"`
}

// CountStatuses tallies joined topics by moderation status.
func CountStatuses(topics []ModeratedTopic) StatsCounts {
	var counts StatsCounts
	for _, t := range topics {
		counts.TotalTopics++
		switch t.Status {
		case datatypes.StatusAccepted:
			counts.Accepted++
		case datatypes.StatusRejected:
			counts.Rejected++
		case datatypes.StatusMeta:
			counts.Meta++
		default:
			counts.Pending++
		}
	}
	return counts
}

// ProximityPoint is one plottable comment position, optionally joined with
// its cluster assignment.
type ProximityPoint struct {
	CommentID string  `json:"comment_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Layer     int     `json:"layer"`
	ClusterID *int    `json:"cluster_id,omitempty"`
}

// BuildProximity filters the coordinate graph down to plottable points:
// self-referencing edges with finite positions, optionally restricted to
// one layer ("all" or "" keeps every layer). Cluster assignments, when
// present, are joined per comment id.
func BuildProximity(coords, assignments []datatypes.Record, layerFilter string, logger *slog.Logger) ([]ProximityPoint, int) {
	if logger == nil {
		logger = slog.Default()
	}

	clusterByComment := make(map[string]int, len(assignments))
	skipped := 0
	for _, rec := range assignments {
		a, err := datatypes.ParseAssignmentRecord(rec)
		if err != nil {
			logger.Warn("skipping malformed assignment record",
				"composite_key", rec.CompositeKey, "error", err)
			skipped++
			continue
		}
		clusterByComment[a.CommentID] = a.ClusterID
	}

	points := make([]ProximityPoint, 0, len(coords))
	for _, rec := range coords {
		c, err := datatypes.ParseCoordinateRecord(rec)
		if err != nil {
			logger.Warn("skipping malformed coordinate record",
				"composite_key", rec.CompositeKey, "error", err)
			skipped++
			continue
		}
		if !c.SelfEdge() || !c.Finite() {
			continue
		}
		if layerFilter != "" && layerFilter != "all" {
			if strconv.Itoa(c.Layer) != layerFilter {
				continue
			}
		}
		point := ProximityPoint{
			CommentID: c.SourceID,
			X:         c.X,
			Y:         c.Y,
			Layer:     c.Layer,
		}
		if cluster, ok := clusterByComment[c.SourceID]; ok {
			cl := cluster
			point.ClusterID = &cl
		}
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].CommentID < points[j].CommentID
	})
	return points, skipped
}
