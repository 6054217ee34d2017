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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

func narrative(key, ts string) datatypes.Record {
	return datatypes.Record{CompositeKey: key, Timestamp: ts}
}

func TestGroupIntoRuns_MinuteTruncation(t *testing.T) {
	records := []datatypes.Record{
		narrative("r1#summary#all", "2024-01-15T10:30:02Z"),
		narrative("r1#themes#all", "2024-01-15T10:30:45Z"),
		narrative("r1#summary#all", "2024-01-15T11:05:00Z"),
	}

	runs, current := GroupIntoRuns(records, TruncMinute)
	require.Len(t, runs, 2)
	assert.Equal(t, "2024-01-15T11:05", current)
	assert.True(t, runs[current].IsCurrent)
	assert.False(t, runs["2024-01-15T10:30"].IsCurrent)
	assert.Len(t, runs["2024-01-15T10:30"].Items, 2)
}

func TestGroupIntoRuns_DayTruncationPicksMostRecent(t *testing.T) {
	records := []datatypes.Record{
		narrative("r1#summary#all", "2024-01-14T23:59:59Z"),
		narrative("r1#summary#all", "2024-01-15T00:00:01Z"),
	}
	_, current := GroupIntoRuns(records, TruncDay)
	assert.Equal(t, "2024-01-15", current)
}

func TestGroupIntoRuns_DeterministicAcrossInputOrder(t *testing.T) {
	records := []datatypes.Record{
		narrative("r1#summary#all", "2024-01-15T10:30:01Z"),
		narrative("r1#themes#all", "2024-01-15T10:30:02Z"),
		narrative("r1#narrative#layer0_1", "2024-01-15T10:30:03Z"),
		narrative("r1#narrative#layer0_2", "2024-01-15T10:30:04Z"),
	}

	base, baseCurrent := GroupIntoRuns(records, TruncMinute)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]datatypes.Record, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		runs, current := GroupIntoRuns(shuffled, TruncMinute)
		require.Equal(t, baseCurrent, current)
		require.Len(t, runs, len(base))
		for key, run := range base {
			assert.Equal(t, run.Items, runs[key].Items, "run %s differs on permutation %d", key, i)
		}
	}
}

func TestGroupIntoRuns_Empty(t *testing.T) {
	runs, current := GroupIntoRuns(nil, TruncMinute)
	assert.Empty(t, runs)
	assert.Equal(t, "", current)
}

func TestRunKeys_NewestFirst(t *testing.T) {
	runs, _ := GroupIntoRuns([]datatypes.Record{
		narrative("r1#a#all", "2024-01-13T10:00:00Z"),
		narrative("r1#b#all", "2024-01-15T10:00:00Z"),
		narrative("r1#c#all", "2024-01-14T10:00:00Z"),
	}, TruncDay)
	assert.Equal(t, []string{"2024-01-15", "2024-01-14", "2024-01-13"}, RunKeys(runs))
}

func TestLatestBySection(t *testing.T) {
	runs, current := GroupIntoRuns([]datatypes.Record{
		narrative("r1#summary#all", "2024-01-15T10:30:01Z"),
		narrative("r1#themes#all", "2024-01-15T10:30:02Z"),
	}, TruncMinute)

	bySection := LatestBySection(runs[current])
	require.Len(t, bySection, 2)
	assert.Equal(t, "r1#summary#all", bySection["summary"].CompositeKey)
	assert.Equal(t, "r1#themes#all", bySection["themes"].CompositeKey)

	assert.Empty(t, LatestBySection(nil))
}

func TestLatestByTopic(t *testing.T) {
	runs, current := GroupIntoRuns([]datatypes.Record{
		narrative("r1#narrative#layer0_1", "2024-01-15T10:30:01Z"),
		narrative("r1#narrative#layer0_2", "2024-01-15T10:30:02Z"),
		narrative("r1#summary#all", "2024-01-15T10:30:03Z"),
	}, TruncMinute)

	byTopic := LatestByTopic(runs[current], "narrative")
	require.Len(t, byTopic, 2)
	assert.Equal(t, "r1#narrative#layer0_1", byTopic["layer0_1"].CompositeKey)
	_, hasSummary := byTopic["all"]
	assert.False(t, hasSummary, "summary section must not leak into narrative topics")
}
