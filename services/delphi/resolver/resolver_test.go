// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage/badgerstore"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreResolver_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ProvisionTable(ctx, storage.TableConversations))
	require.NoError(t, store.ProvisionTable(ctx, storage.TableReports))

	res := NewStoreResolver(store)
	require.NoError(t, res.Register(ctx, storage.TableConversations, "demo", "conv_internal_1"))
	require.NoError(t, res.Register(ctx, storage.TableReports, "r-demo", "report_internal_1"))

	partition, err := res.ResolveConversation(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "conv_internal_1", partition)

	partition, err = res.ResolveReport(ctx, "r-demo")
	require.NoError(t, err)
	assert.Equal(t, "report_internal_1", partition)
}

func TestStoreResolver_UnknownID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ProvisionTable(ctx, storage.TableConversations))

	res := NewStoreResolver(store)
	_, err := res.ResolveConversation(ctx, "never-registered")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestStoreResolver_EmptyID(t *testing.T) {
	res := NewStoreResolver(newTestStore(t))
	_, err := res.ResolveConversation(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestStoreResolver_UnprovisionedTableMeansUnresolved(t *testing.T) {
	// A fresh deployment has no mapping tables at all. That must read as
	// "identifier not found", not as a store failure.
	res := NewStoreResolver(newTestStore(t))
	_, err := res.ResolveConversation(context.Background(), "demo")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestStatic(t *testing.T) {
	res := Static{ConversationPrefix: "conv_", ReportPrefix: "report_"}

	partition, err := res.ResolveConversation(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "conv_abc", partition)

	partition, err = res.ResolveReport(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "report_xyz", partition)

	_, err = res.ResolveConversation(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotResolved)
}
