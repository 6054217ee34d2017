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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

func TestParseTopics_SkipsMalformed(t *testing.T) {
	records := []datatypes.Record{
		{CompositeKey: "job1#0#0", Timestamp: "2024-01-15T10:00:00Z"},
		{CompositeKey: "broken"},
	}
	topics, skipped := ParseTopics(records, nil)
	assert.Len(t, topics, 1)
	assert.Equal(t, 1, skipped)
}

func TestLatestJobID(t *testing.T) {
	topics, _ := ParseTopics([]datatypes.Record{
		{CompositeKey: "old-job#0#0", Timestamp: "2024-01-14T10:00:00Z"},
		{CompositeKey: "new-job#0#0", Timestamp: "2024-01-15T10:00:00Z"},
		{CompositeKey: "old-job#0#1", Timestamp: "2024-01-14T10:00:01Z"},
	}, nil)

	assert.Equal(t, "new-job", LatestJobID(topics))
	assert.Equal(t, "", LatestJobID(nil))
}

func TestFilterJob(t *testing.T) {
	topics, _ := ParseTopics([]datatypes.Record{
		{CompositeKey: "a#0#0", Timestamp: "t"},
		{CompositeKey: "b#0#0", Timestamp: "t"},
		{CompositeKey: "a#0#1", Timestamp: "t"},
	}, nil)

	filtered := FilterJob(topics, "a")
	require.Len(t, filtered, 2)
	for _, topic := range filtered {
		assert.Equal(t, "a", topic.JobID)
	}
}

func TestJoinTopicsWithModeration_DefaultsToPending(t *testing.T) {
	topics, _ := ParseTopics([]datatypes.Record{
		{CompositeKey: "job1#0#0", Timestamp: "t", Attrs: map[string]string{"topic_name": "alpha"}},
		{CompositeKey: "job1#0#1", Timestamp: "t", Attrs: map[string]string{"topic_name": "beta"}},
	}, nil)

	mods, skipped := ModerationIndex([]datatypes.Record{
		{
			CompositeKey: "layer0_1#decision",
			Timestamp:    "2024-01-15T10:31:00Z",
			Attrs:        map[string]string{"status": "accepted", "moderator": "ava"},
		},
	}, nil)
	require.Zero(t, skipped)

	joined := JoinTopicsWithModeration(topics, mods)
	require.Len(t, joined, 2)

	assert.Equal(t, datatypes.StatusPending, joined[0].Status)
	assert.Empty(t, joined[0].Moderator)
	assert.Empty(t, joined[0].ModeratedAt)

	assert.Equal(t, datatypes.StatusAccepted, joined[1].Status)
	assert.Equal(t, "ava", joined[1].Moderator)
	assert.Equal(t, "2024-01-15T10:31:00Z", joined[1].ModeratedAt)
}

func TestBucketByLayer_SortedByClusterID(t *testing.T) {
	joined := []ModeratedTopic{
		{TopicKey: "layer0_3", Layer: 0, ClusterID: 3},
		{TopicKey: "layer0_1", Layer: 0, ClusterID: 1},
		{TopicKey: "layer1_0", Layer: 1, ClusterID: 0},
	}
	buckets := BucketByLayer(joined)
	require.Len(t, buckets, 2)
	require.Len(t, buckets["0"], 2)
	assert.Equal(t, 1, buckets["0"][0].ClusterID)
	assert.Equal(t, 3, buckets["0"][1].ClusterID)
	assert.Len(t, buckets["1"], 1)
}

func TestCountStatuses(t *testing.T) {
	joined := []ModeratedTopic{
		{Status: datatypes.StatusPending},
		{Status: datatypes.StatusAccepted},
		{Status: datatypes.StatusAccepted},
		{Status: datatypes.StatusRejected},
		{Status: datatypes.StatusMeta},
	}
	counts := CountStatuses(joined)
	assert.Equal(t, StatsCounts{
		TotalTopics: 5,
		Pending:     1,
		Accepted:    2,
		Rejected:    1,
		Meta:        1,
	}, counts)

	assert.Equal(t, StatsCounts{}, CountStatuses(nil))
}

func coordRec(src, dst, x, y, layer string) datatypes.Record {
	return datatypes.Record{
		CompositeKey: src + "#" + dst,
		Attrs:        map[string]string{"x": x, "y": y, "layer_id": layer},
	}
}

func TestBuildProximity_FiltersNonSelfAndNonFinite(t *testing.T) {
	coords := []datatypes.Record{
		coordRec("c1", "c1", "1.5", "2.5", "0"),
		coordRec("c1", "c2", "9.9", "9.9", "0"),  // relation edge, not a position
		coordRec("c3", "c3", "NaN", "1.0", "0"),  // failed projection
		coordRec("c4", "c4", "+Inf", "1.0", "0"), // failed projection
		coordRec("c5", "c5", "0.0", "0.0", "1"),
	}

	points, _ := BuildProximity(coords, nil, "all", nil)
	require.Len(t, points, 2)
	assert.Equal(t, "c1", points[0].CommentID)
	assert.Equal(t, "c5", points[1].CommentID)
}

func TestBuildProximity_LayerFilter(t *testing.T) {
	coords := []datatypes.Record{
		coordRec("c1", "c1", "1", "1", "0"),
		coordRec("c2", "c2", "2", "2", "1"),
	}

	points, _ := BuildProximity(coords, nil, "1", nil)
	require.Len(t, points, 1)
	assert.Equal(t, "c2", points[0].CommentID)

	points, _ = BuildProximity(coords, nil, "", nil)
	assert.Len(t, points, 2)
}

func TestBuildProximity_JoinsAssignments(t *testing.T) {
	coords := []datatypes.Record{
		coordRec("c1", "c1", "1", "1", "0"),
		coordRec("c2", "c2", "2", "2", "0"),
	}
	assignments := []datatypes.Record{
		{CompositeKey: "job1#0#c1", Attrs: map[string]string{"cluster_id": "7"}},
	}

	points, _ := BuildProximity(coords, assignments, "all", nil)
	require.Len(t, points, 2)

	require.NotNil(t, points[0].ClusterID)
	assert.Equal(t, 7, *points[0].ClusterID)
	assert.Nil(t, points[1].ClusterID, "unassigned comments carry no cluster id")
}

func TestBuildProximity_CountsSkippedRecords(t *testing.T) {
	coords := []datatypes.Record{{CompositeKey: "lonely"}}
	assignments := []datatypes.Record{{CompositeKey: "job1#0#c1"}} // no cluster_id

	_, skipped := BuildProximity(coords, assignments, "all", nil)
	assert.Equal(t, 2, skipped)
}
