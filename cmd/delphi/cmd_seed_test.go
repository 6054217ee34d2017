// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage/badgerstore"
)

const seedFixtureYAML = `
mappings:
  conversations:
    - public_id: demo
      partition: conv_demo
  reports:
    - public_id: r-demo
      partition: report_demo
records:
  delphi_topics:
    - partition: conv_demo
      sort_key: "job1#0#0"
      composite_key: "job1#0#0"
      timestamp: "2024-01-15T10:30:00Z"
      parent_ref: {layer_id: 1, cluster_id: 0}
      attrs: {topic_name: "Housing", size: "12"}
    - partition: conv_demo
      sort_key: "job1#1#0"
      composite_key: "job1#1#0"
      timestamp: "2024-01-15T10:30:00Z"
      attrs: {topic_name: "Economy", size: "20"}
`

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store")

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("store_path: "+storePath+"\n"), 0600))

	fixturePath := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte(seedFixtureYAML), 0600))

	oldConfigPath := configPath
	configPath = cfgPath
	t.Cleanup(func() { configPath = oldConfigPath })

	require.NoError(t, seed(fixturePath))

	store, err := badgerstore.Open(badgerstore.DefaultConfig(storePath))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	res := resolver.NewStoreResolver(store)
	partition, err := res.ResolveConversation(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "conv_demo", partition)

	partition, err = res.ResolveReport(ctx, "r-demo")
	require.NoError(t, err)
	assert.Equal(t, "report_demo", partition)

	out, err := store.Query(ctx, storage.QueryInput{
		Table:     storage.TableTopics,
		Partition: "conv_demo",
	})
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	withParent := out.Records[0]
	require.NotNil(t, withParent.ParentRef)
	assert.Equal(t, &datatypes.ParentRef{LayerID: 1, ClusterID: 0}, withParent.ParentRef)
	assert.Equal(t, "Housing", withParent.Attr("topic_name"))

	assert.Nil(t, out.Records[1].ParentRef)
}

func TestSeed_RefusesInMemoryStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store_in_memory: true\n"), 0600))

	fixturePath := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte(seedFixtureYAML), 0600))

	oldConfigPath := configPath
	configPath = cfgPath
	t.Cleanup(func() { configPath = oldConfigPath })

	assert.Error(t, seed(fixturePath))
}
