// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver maps public-facing conversation and report identifiers
// to the internal partition keys the store is organized under.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// ErrNotResolved means the public identifier has no internal mapping.
var ErrNotResolved = errors.New("identifier not resolved")

// Resolver turns public ids into internal partition keys.
type Resolver interface {
	ResolveConversation(ctx context.Context, conversationID string) (string, error)
	ResolveReport(ctx context.Context, reportID string) (string, error)
}

// StoreResolver looks mappings up in the conversations and reports tables.
// Mapping records live under a single well-known partition with the public
// id as sort key and the internal partition key in the payload.
type StoreResolver struct {
	store storage.Store
}

// MappingPartition is the partition all id-mapping records live under.
const MappingPartition = "mappings"

// NewStoreResolver builds a resolver over the given store.
func NewStoreResolver(store storage.Store) *StoreResolver {
	return &StoreResolver{store: store}
}

var _ Resolver = (*StoreResolver)(nil)

// ResolveConversation maps a public conversation id to its partition key.
func (r *StoreResolver) ResolveConversation(ctx context.Context, conversationID string) (string, error) {
	return r.resolve(ctx, storage.TableConversations, conversationID)
}

// ResolveReport maps a public report id to its partition key.
func (r *StoreResolver) ResolveReport(ctx context.Context, reportID string) (string, error) {
	return r.resolve(ctx, storage.TableReports, reportID)
}

func (r *StoreResolver) resolve(ctx context.Context, table, publicID string) (string, error) {
	if publicID == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotResolved)
	}
	out, err := r.store.Query(ctx, storage.QueryInput{
		Table:     table,
		Partition: MappingPartition,
		ExactSort: publicID,
	})
	if err != nil {
		// An absent mapping table means nothing has been registered yet.
		if errors.Is(err, storage.ErrTableNotProvisioned) {
			return "", fmt.Errorf("%w: %s", ErrNotResolved, publicID)
		}
		return "", err
	}
	if len(out.Records) == 0 || out.Records[0].Payload == "" {
		return "", fmt.Errorf("%w: %s", ErrNotResolved, publicID)
	}
	return out.Records[0].Payload, nil
}

// Register writes an id mapping. Used by the seed command and tests.
func (r *StoreResolver) Register(ctx context.Context, table, publicID, partitionKey string) error {
	rec := datatypes.Record{
		CompositeKey: publicID + datatypes.KeyDelimiter + "mapping",
		Payload:      partitionKey,
	}
	return r.store.Put(ctx, table, MappingPartition, publicID, rec)
}

// Static resolves ids by prefixing them, for deployments where the public
// id is the partition key. Useful in local development.
type Static struct {
	ConversationPrefix string
	ReportPrefix       string
}

var _ Resolver = Static{}

// ResolveConversation prefixes the public id.
func (s Static) ResolveConversation(ctx context.Context, conversationID string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotResolved)
	}
	return s.ConversationPrefix + conversationID, nil
}

// ResolveReport prefixes the public id.
func (s Static) ResolveReport(ctx context.Context, reportID string) (string, error) {
	if reportID == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotResolved)
	}
	return s.ReportPrefix + reportID, nil
}
