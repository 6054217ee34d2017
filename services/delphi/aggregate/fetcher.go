// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate holds the request-scoped aggregation core: the record
// fetcher, the run grouper, and the hierarchy builder. Everything here is
// pure data-shaping over records the storage layer returns; nothing is
// cached across requests.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/observability"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

var fetcherTracer = otel.Tracer("aleutian.delphi.aggregate")

// FetchOptions narrow a fetch to a sort-key prefix or a single sort key.
type FetchOptions struct {
	SortPrefix string
	ExactSort  string
}

// Fetcher retrieves complete record sets from the store, following
// continuation tokens until the store reports none remaining.
type Fetcher struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFetcher builds a Fetcher. The metrics may be nil (tests).
func NewFetcher(store storage.Store, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{store: store, logger: logger, metrics: metrics}
}

// FetchRecords pages through a table partition and concatenates all pages.
//
// The pagination loop is strictly sequential: each page's continuation
// token gates the next query. An empty partition yields an empty slice and
// nil error; "no data" and "not found" are the same signal here. Result
// order is whatever the store returns; callers sort when order matters.
func (f *Fetcher) FetchRecords(ctx context.Context, table, partition string, opts FetchOptions) ([]datatypes.Record, error) {
	if partition == "" {
		return nil, fmt.Errorf("fetch %s: partition key must be non-empty", table)
	}

	ctx, span := fetcherTracer.Start(ctx, "fetcher.FetchRecords")
	defer span.End()
	span.SetAttributes(attribute.String("delphi.table", table))

	var records []datatypes.Record
	token := ""
	pages := 0
	for {
		out, err := f.store.Query(ctx, storage.QueryInput{
			Table:      table,
			Partition:  partition,
			SortPrefix: opts.SortPrefix,
			ExactSort:  opts.ExactSort,
			StartToken: token,
		})
		if err != nil {
			return nil, err
		}
		pages++
		records = append(records, out.Records...)
		if out.NextToken == "" {
			break
		}
		token = out.NextToken
	}

	span.SetAttributes(
		attribute.Int("delphi.pages", pages),
		attribute.Int("delphi.records", len(records)),
	)
	f.metrics.RecordFetch(table, pages, len(records))
	f.logger.Debug("fetched records",
		"table", table, "pages", pages, "records", len(records))
	return records, nil
}
