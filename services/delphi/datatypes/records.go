// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the record shapes stored in the Delphi tables.
//
// Every table holds generic Records; the typed variants in this package
// (TopicRecord, ModerationRecord, ...) are parsed at the fetch boundary so
// that aggregation code never reads loosely-typed attribute maps. Records
// that fail to parse are skipped by callers, not fatal.
package datatypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KeyDelimiter separates the logical segments of a composite key.
const KeyDelimiter = "#"

// ParentRef points a cluster at the cluster it merges into.
type ParentRef struct {
	LayerID   int `json:"layer_id"`
	ClusterID int `json:"cluster_id"`
}

// Record is the generic unit returned by the store.
//
// CompositeKey always has at least two #-delimited segments: segment 0 is
// the grouping identifier (job id, report id, or topic key depending on the
// table) and segment 1 is the logical section or layer.
type Record struct {
	CompositeKey string            `json:"composite_key"`
	Timestamp    string            `json:"timestamp"`
	Payload      string            `json:"payload,omitempty"`
	ParentRef    *ParentRef        `json:"parent_ref,omitempty"`
	Attrs        map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute or "" when absent.
func (r Record) Attr(name string) string {
	if r.Attrs == nil {
		return ""
	}
	return r.Attrs[name]
}

// KeySegments splits the composite key on the delimiter.
func (r Record) KeySegments() []string {
	return strings.Split(r.CompositeKey, KeyDelimiter)
}

// SplitKey splits a composite key and enforces the two-segment minimum.
func SplitKey(key string) ([]string, error) {
	segs := strings.Split(key, KeyDelimiter)
	if len(segs) < 2 {
		return nil, fmt.Errorf("composite key %q: need at least 2 segments", key)
	}
	return segs, nil
}

// TopicKey builds the canonical cross-table key for a cluster, e.g. "layer0_3".
func TopicKey(layer, cluster int) string {
	return fmt.Sprintf("layer%d_%d", layer, cluster)
}

// ParseTopicKey reverses TopicKey.
func ParseTopicKey(key string) (layer, cluster int, err error) {
	rest, ok := strings.CutPrefix(key, "layer")
	if !ok {
		return 0, 0, fmt.Errorf("topic key %q: missing layer prefix", key)
	}
	layerStr, clusterStr, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, fmt.Errorf("topic key %q: missing cluster suffix", key)
	}
	layer, err = strconv.Atoi(layerStr)
	if err != nil {
		return 0, 0, fmt.Errorf("topic key %q: bad layer: %w", key, err)
	}
	cluster, err = strconv.Atoi(clusterStr)
	if err != nil {
		return 0, 0, fmt.Errorf("topic key %q: bad cluster: %w", key, err)
	}
	return layer, cluster, nil
}

// ModerationStatus is the moderation decision for a topic.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusAccepted ModerationStatus = "accepted"
	StatusRejected ModerationStatus = "rejected"
	StatusMeta     ModerationStatus = "meta"
)

// ValidStatus reports whether s is one of the four known statuses.
func ValidStatus(s string) bool {
	switch ModerationStatus(s) {
	case StatusPending, StatusAccepted, StatusRejected, StatusMeta:
		return true
	}
	return false
}

// TopicRecord is a cluster topic row: composite key "{jobID}#{layer}#{cluster}".
type TopicRecord struct {
	JobID     string
	Layer     int
	ClusterID int
	Name      string
	Size      int
	Parent    *ParentRef
	Raw       Record
}

// Key returns the canonical topic key for joining against moderation rows.
func (t TopicRecord) Key() string {
	return TopicKey(t.Layer, t.ClusterID)
}

// ParseTopicRecord validates and types a raw topics-table record.
func ParseTopicRecord(r Record) (TopicRecord, error) {
	segs, err := SplitKey(r.CompositeKey)
	if err != nil {
		return TopicRecord{}, err
	}
	if len(segs) < 3 {
		return TopicRecord{}, fmt.Errorf("topic record %q: need job#layer#cluster", r.CompositeKey)
	}
	layer, err := strconv.Atoi(segs[1])
	if err != nil {
		return TopicRecord{}, fmt.Errorf("topic record %q: bad layer: %w", r.CompositeKey, err)
	}
	cluster, err := strconv.Atoi(segs[2])
	if err != nil {
		return TopicRecord{}, fmt.Errorf("topic record %q: bad cluster: %w", r.CompositeKey, err)
	}
	size := 0
	if s := r.Attr("size"); s != "" {
		size, err = strconv.Atoi(s)
		if err != nil {
			return TopicRecord{}, fmt.Errorf("topic record %q: bad size: %w", r.CompositeKey, err)
		}
	}
	name := r.Attr("topic_name")
	if name == "" {
		name = r.Payload
	}
	return TopicRecord{
		JobID:     segs[0],
		Layer:     layer,
		ClusterID: cluster,
		Name:      name,
		Size:      size,
		Parent:    r.ParentRef,
		Raw:       r,
	}, nil
}

// ModerationRecord is a moderation decision: composite key "{topicKey}#decision".
type ModerationRecord struct {
	TopicKey  string
	Status    ModerationStatus
	Moderator string
	Timestamp string
	Raw       Record
}

// ParseModerationRecord validates and types a raw moderation-table record.
// An unknown or missing status is defaulted to pending rather than rejected,
// matching the read-side treatment of missing rows.
func ParseModerationRecord(r Record) (ModerationRecord, error) {
	segs, err := SplitKey(r.CompositeKey)
	if err != nil {
		return ModerationRecord{}, err
	}
	if _, _, err := ParseTopicKey(segs[0]); err != nil {
		return ModerationRecord{}, err
	}
	status := ModerationStatus(r.Attr("status"))
	if !ValidStatus(string(status)) {
		status = StatusPending
	}
	return ModerationRecord{
		TopicKey:  segs[0],
		Status:    status,
		Moderator: r.Attr("moderator"),
		Timestamp: r.Timestamp,
		Raw:       r,
	}, nil
}

// AssignmentRecord maps a comment to a cluster within one job and layer:
// composite key "{jobID}#{layer}#{commentID}".
type AssignmentRecord struct {
	JobID     string
	Layer     int
	CommentID string
	ClusterID int
	Raw       Record
}

// ParseAssignmentRecord validates and types a raw assignments-table record.
func ParseAssignmentRecord(r Record) (AssignmentRecord, error) {
	segs, err := SplitKey(r.CompositeKey)
	if err != nil {
		return AssignmentRecord{}, err
	}
	if len(segs) < 3 {
		return AssignmentRecord{}, fmt.Errorf("assignment record %q: need job#layer#comment", r.CompositeKey)
	}
	layer, err := strconv.Atoi(segs[1])
	if err != nil {
		return AssignmentRecord{}, fmt.Errorf("assignment record %q: bad layer: %w", r.CompositeKey, err)
	}
	cluster, err := strconv.Atoi(r.Attr("cluster_id"))
	if err != nil {
		return AssignmentRecord{}, fmt.Errorf("assignment record %q: bad cluster_id: %w", r.CompositeKey, err)
	}
	return AssignmentRecord{
		JobID:     segs[0],
		Layer:     layer,
		CommentID: segs[2],
		ClusterID: cluster,
		Raw:       r,
	}, nil
}

// CoordinateRecord is one edge of the UMAP coordinate graph: composite key
// "{sourceID}#{targetID}". A self-referencing edge (source == target)
// carries the node's own 2D position.
type CoordinateRecord struct {
	SourceID string
	TargetID string
	X        float64
	Y        float64
	Layer    int
	Raw      Record
}

// SelfEdge reports whether the record carries a node position rather than
// a relation between two comments.
func (c CoordinateRecord) SelfEdge() bool {
	return c.SourceID == c.TargetID
}

// Finite reports whether both coordinates are usable for plotting.
// NaN and ±Inf positions come out of failed projections and must be dropped.
func (c CoordinateRecord) Finite() bool {
	return !math.IsNaN(c.X) && !math.IsInf(c.X, 0) &&
		!math.IsNaN(c.Y) && !math.IsInf(c.Y, 0)
}

// ParseCoordinateRecord validates and types a raw coordinate-graph record.
// Non-numeric positions parse as NaN so that the Finite filter catches them.
func ParseCoordinateRecord(r Record) (CoordinateRecord, error) {
	segs, err := SplitKey(r.CompositeKey)
	if err != nil {
		return CoordinateRecord{}, err
	}
	x := parseFloatOrNaN(r.Attr("x"))
	y := parseFloatOrNaN(r.Attr("y"))
	layer := 0
	if l := r.Attr("layer_id"); l != "" {
		layer, err = strconv.Atoi(l)
		if err != nil {
			return CoordinateRecord{}, fmt.Errorf("coordinate record %q: bad layer_id: %w", r.CompositeKey, err)
		}
	}
	return CoordinateRecord{
		SourceID: segs[0],
		TargetID: segs[1],
		X:        x,
		Y:        y,
		Layer:    layer,
		Raw:      r,
	}, nil
}

func parseFloatOrNaN(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// NarrativeRecord is one section of an LLM-generated narrative report:
// composite key "{reportID}#{section}#{topicKey}". The topic-key segment is
// "all" for report-level sections.
type NarrativeRecord struct {
	ReportID string
	Section  string
	TopicKey string
	Model    string
	Body     string
	Raw      Record
}

// ParseNarrativeRecord validates and types a raw narrative-table record.
func ParseNarrativeRecord(r Record) (NarrativeRecord, error) {
	segs, err := SplitKey(r.CompositeKey)
	if err != nil {
		return NarrativeRecord{}, err
	}
	if len(segs) < 3 {
		return NarrativeRecord{}, fmt.Errorf("narrative record %q: need report#section#topic", r.CompositeKey)
	}
	if r.Timestamp == "" {
		return NarrativeRecord{}, fmt.Errorf("narrative record %q: missing timestamp", r.CompositeKey)
	}
	return NarrativeRecord{
		ReportID: segs[0],
		Section:  segs[1],
		TopicKey: segs[2],
		Model:    r.Attr("model"),
		Body:     r.Payload,
		Raw:      r,
	}, nil
}
