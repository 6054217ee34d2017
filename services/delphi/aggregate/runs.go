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
	"sort"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

// Truncation lengths for ISO-8601 timestamps.
const (
	// TruncMinute groups records generated by the same processing pass
	// ("YYYY-MM-DDTHH:MM").
	TruncMinute = 16

	// TruncDay groups records by calendar day ("YYYY-MM-DD").
	TruncDay = 10
)

// Run is a batch of records sharing a truncated timestamp. Runs are derived
// fresh per request and never persisted.
type Run struct {
	Key       string             `json:"run_key"`
	Items     []datatypes.Record `json:"items"`
	IsCurrent bool               `json:"is_current"`
}

// GroupIntoRuns partitions records into runs keyed by the first truncLen
// characters of their timestamp and returns the most recent run key.
//
// ISO-8601 timestamps sort lexicographically in chronological order, so the
// largest key is the newest run. The grouping is deterministic regardless
// of input order: items within each run are sorted by composite key, then
// timestamp. Empty input yields an empty map and "".
func GroupIntoRuns(records []datatypes.Record, truncLen int) (map[string]*Run, string) {
	runs := make(map[string]*Run, 4)
	mostRecent := ""
	for _, rec := range records {
		key := rec.Timestamp
		if truncLen > 0 && len(key) > truncLen {
			key = key[:truncLen]
		}
		run, ok := runs[key]
		if !ok {
			run = &Run{Key: key}
			runs[key] = run
		}
		run.Items = append(run.Items, rec)
		if key > mostRecent {
			mostRecent = key
		}
	}
	for _, run := range runs {
		sort.Slice(run.Items, func(i, j int) bool {
			a, b := run.Items[i], run.Items[j]
			if a.CompositeKey != b.CompositeKey {
				return a.CompositeKey < b.CompositeKey
			}
			return a.Timestamp < b.Timestamp
		})
	}
	if mostRecent != "" {
		runs[mostRecent].IsCurrent = true
	}
	return runs, mostRecent
}

// RunKeys returns all run keys, newest first.
func RunKeys(runs map[string]*Run) []string {
	keys := make([]string, 0, len(runs))
	for key := range runs {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// LatestBySection re-keys a run's items by the section segment of the
// composite key (segment 1). Duplicate sections within one run overwrite
// earlier entries: records within a single run are assumed unique per
// section, so last-write-wins is acceptable rather than enforced.
// A nil run yields an empty map.
func LatestBySection(run *Run) map[string]datatypes.Record {
	out := make(map[string]datatypes.Record)
	if run == nil {
		return out
	}
	for _, rec := range run.Items {
		segs := rec.KeySegments()
		if len(segs) < 2 {
			continue
		}
		out[segs[1]] = rec
	}
	return out
}

// LatestByTopic re-keys a run's items for one section by the topic segment
// of the composite key (segment 2). Same last-write-wins behavior as
// LatestBySection.
func LatestByTopic(run *Run, section string) map[string]datatypes.Record {
	out := make(map[string]datatypes.Record)
	if run == nil {
		return out
	}
	for _, rec := range run.Items {
		segs := rec.KeySegments()
		if len(segs) < 3 || segs[1] != section {
			continue
		}
		out[segs[2]] = rec
	}
	return out
}
