// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage abstracts the key-value store holding Delphi records.
//
// Records are addressed by (table, partition key, sort key) and queried by
// sort-key prefix or exact match, with continuation-token pagination. The
// production backend is an external managed store; the badgerstore
// subpackage provides an embedded implementation for local deployments and
// tests. Handlers depend only on this interface.
package storage

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
)

// Table names. One table per record variant so that malformed rows can be
// rejected at the fetch boundary instead of deep in aggregation code.
const (
	TableTopics        = "delphi_topics"
	TableModeration    = "delphi_topic_moderation"
	TableAssignments   = "delphi_cluster_assignments"
	TableCoordinates   = "delphi_coordinate_graph"
	TableNarratives    = "delphi_narrative_reports"
	TableConversations = "delphi_conversations"
	TableReports       = "delphi_reports"
)

var (
	// ErrTableNotProvisioned means the target table has never been created.
	// Callers treat this as "no data yet" and degrade gracefully.
	ErrTableNotProvisioned = errors.New("table not provisioned")

	// ErrStoreUnavailable means a transient connectivity, throttling, or
	// permission failure. Callers log it and return empty data.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// QueryInput describes one page request against a table partition.
type QueryInput struct {
	Table     string
	Partition string

	// SortPrefix restricts results to sort keys with this prefix.
	// Ignored when ExactSort is set.
	SortPrefix string

	// ExactSort requests the single record with this sort key.
	ExactSort string

	// Limit caps the page size. Zero means the store default.
	Limit int

	// StartToken resumes a paged query. Empty starts from the beginning.
	StartToken string
}

// QueryOutput is one page of results.
type QueryOutput struct {
	Records []datatypes.Record

	// NextToken is non-empty when more pages remain.
	NextToken string
}

// Store is the key-value store the aggregation core reads from.
//
// Implementations must return ErrTableNotProvisioned and
// ErrStoreUnavailable (possibly wrapped) so callers can tell the two apart.
type Store interface {
	// Query returns one page of records from a table partition.
	// Result order within a partition is implementation-defined.
	Query(ctx context.Context, in QueryInput) (QueryOutput, error)

	// Put writes a record under (table, partition, sortKey), overwriting
	// any existing record with the same key.
	Put(ctx context.Context, table, partition, sortKey string, rec datatypes.Record) error

	// ProvisionTable creates a table if it does not exist.
	ProvisionTable(ctx context.Context, table string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
