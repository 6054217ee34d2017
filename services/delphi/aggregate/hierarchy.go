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

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

// ClusterNode is one cluster in the inverted hierarchy. The parent pointer
// is unexported bookkeeping, so serialized trees carry only the downward
// edges the circle-pack visualization needs.
type ClusterNode struct {
	ID        string         `json:"id"`
	Layer     int            `json:"layer"`
	ClusterID int            `json:"cluster_id"`
	Name      string         `json:"name"`
	Size      int            `json:"size"`
	Children  []*ClusterNode `json:"children"`

	parentID string
}

// Hierarchy is the rooted forest built from cluster records.
type Hierarchy struct {
	Roots       []*ClusterNode
	TotalNodes  int
	LayerCounts map[int]int
}

// BuildHierarchy inverts the stored parent references into a rooted forest.
//
// The stored relationship means "this cluster merges into its parent"; the
// visualization needs the opposite traversal, parents visually containing
// their children, so each parent reference becomes a child edge on the
// referenced node. Nodes left without an incoming edge are roots, whatever
// their layer: the source hierarchy has naturally-terminal clusters at
// multiple layers.
//
// Data inconsistencies never fail the build: a parent reference to a
// missing node makes the referencing node a root, and a parent reference
// that would close a cycle is dropped, again leaving the node a root.
// Records that fail to parse as topics are skipped.
func BuildHierarchy(records []datatypes.Record, logger *slog.Logger) Hierarchy {
	if logger == nil {
		logger = slog.Default()
	}

	// Step 1: node creation, keyed layer{L}_{C}. When multiple clustering
	// jobs wrote records for the same node id, the record with the newest
	// timestamp wins; store iteration order is sort-key order, which says
	// nothing about recency.
	nodes := make(map[string]*ClusterNode, len(records))
	parents := make(map[string]*datatypes.ParentRef, len(records))
	timestamps := make(map[string]string, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		topic, err := datatypes.ParseTopicRecord(rec)
		if err != nil {
			logger.Warn("skipping malformed cluster record",
				"composite_key", rec.CompositeKey, "error", err)
			continue
		}
		id := topic.Key()
		if ts, ok := timestamps[id]; ok {
			if topic.Raw.Timestamp <= ts {
				continue
			}
		} else {
			order = append(order, id)
		}
		timestamps[id] = topic.Raw.Timestamp
		nodes[id] = &ClusterNode{
			ID:        id,
			Layer:     topic.Layer,
			ClusterID: topic.ClusterID,
			Name:      topic.Name,
			Size:      topic.Size,
			Children:  []*ClusterNode{},
		}
		parents[id] = topic.Parent
	}

	// Step 2: edge inversion.
	for _, id := range order {
		ref := parents[id]
		if ref == nil {
			continue
		}
		parentID := datatypes.TopicKey(ref.LayerID, ref.ClusterID)
		parent, ok := nodes[parentID]
		if !ok {
			logger.Warn("cluster parent missing, treating node as root",
				"node", id, "parent", parentID)
			continue
		}
		if parentID == id || reachable(nodes, parentID, id) {
			logger.Warn("cluster parent edge closes a cycle, treating node as root",
				"node", id, "parent", parentID)
			continue
		}
		parent.Children = append(parent.Children, nodes[id])
		nodes[id].parentID = parentID
	}

	// Step 3: root collection.
	h := Hierarchy{LayerCounts: make(map[int]int, 4)}
	for _, id := range order {
		node := nodes[id]
		h.TotalNodes++
		h.LayerCounts[node.Layer]++
		if node.parentID == "" {
			h.Roots = append(h.Roots, node)
		}
	}

	// Deterministic output: coarse layers first, then cluster id.
	sortNodes(h.Roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return h
}

// reachable walks parent pointers from start looking for target.
// Bounded by the node count, so a pre-existing loop cannot hang it.
func reachable(nodes map[string]*ClusterNode, start, target string) bool {
	cur := start
	for steps := 0; steps <= len(nodes); steps++ {
		node, ok := nodes[cur]
		if !ok || node.parentID == "" {
			return false
		}
		if node.parentID == target {
			return true
		}
		cur = node.parentID
	}
	return false
}

func sortNodes(nodes []*ClusterNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Layer != nodes[j].Layer {
			return nodes[i].Layer > nodes[j].Layer
		}
		return nodes[i].ClusterID < nodes[j].ClusterID
	})
}
