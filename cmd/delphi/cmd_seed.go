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
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/config"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage/badgerstore"
)

// seedMapping maps a public id to the internal partition key.
type seedMapping struct {
	PublicID  string `yaml:"public_id"`
	Partition string `yaml:"partition"`
}

// seedParentRef mirrors datatypes.ParentRef in fixture YAML.
type seedParentRef struct {
	LayerID   int `yaml:"layer_id"`
	ClusterID int `yaml:"cluster_id"`
}

// seedRecord is one row of a seed fixture table.
type seedRecord struct {
	Partition    string            `yaml:"partition"`
	SortKey      string            `yaml:"sort_key"`
	CompositeKey string            `yaml:"composite_key"`
	Timestamp    string            `yaml:"timestamp"`
	Payload      string            `yaml:"payload"`
	ParentRef    *seedParentRef    `yaml:"parent_ref"`
	Attrs        map[string]string `yaml:"attrs"`
}

func (r seedRecord) toRecord() datatypes.Record {
	rec := datatypes.Record{
		CompositeKey: r.CompositeKey,
		Timestamp:    r.Timestamp,
		Payload:      r.Payload,
		Attrs:        r.Attrs,
	}
	if r.ParentRef != nil {
		rec.ParentRef = &datatypes.ParentRef{
			LayerID:   r.ParentRef.LayerID,
			ClusterID: r.ParentRef.ClusterID,
		}
	}
	return rec
}

// seedFixture is the on-disk fixture format:
//
//	mappings:
//	  conversations:
//	    - public_id: demo
//	      partition: conv_demo
//	records:
//	  delphi_topics:
//	    - partition: conv_demo
//	      sort_key: "job1#0#0"
//	      composite_key: "job1#0#0"
//	      timestamp: "2024-01-15T10:30:00Z"
//	      parent_ref: {layer_id: 1, cluster_id: 0}
//	      attrs: {topic_name: "Housing", size: "12"}
type seedFixture struct {
	Mappings struct {
		Conversations []seedMapping `yaml:"conversations"`
		Reports       []seedMapping `yaml:"reports"`
	} `yaml:"mappings"`
	Records map[string][]seedRecord `yaml:"records"`
}

func runSeed(cmd *cobra.Command, args []string) {
	if err := seed(args[0]); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func seed(fixturePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", fixturePath, err)
	}
	var fixture seedFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("parse fixture %s: %w", fixturePath, err)
	}

	storeCfg := badgerstore.DefaultConfig(cfg.StorePath)
	if cfg.StoreInMemory {
		return fmt.Errorf("cannot seed an in-memory store, set store_path")
	}
	store, err := badgerstore.Open(storeCfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	tables := []string{
		storage.TableTopics,
		storage.TableModeration,
		storage.TableAssignments,
		storage.TableCoordinates,
		storage.TableNarratives,
		storage.TableConversations,
		storage.TableReports,
	}
	for _, table := range tables {
		if err := store.ProvisionTable(ctx, table); err != nil {
			return fmt.Errorf("provision %s: %w", table, err)
		}
	}

	res := resolver.NewStoreResolver(store)
	for _, m := range fixture.Mappings.Conversations {
		if err := res.Register(ctx, storage.TableConversations, m.PublicID, m.Partition); err != nil {
			return fmt.Errorf("register conversation %s: %w", m.PublicID, err)
		}
	}
	for _, m := range fixture.Mappings.Reports {
		if err := res.Register(ctx, storage.TableReports, m.PublicID, m.Partition); err != nil {
			return fmt.Errorf("register report %s: %w", m.PublicID, err)
		}
	}

	total := 0
	for table, rows := range fixture.Records {
		if err := store.ProvisionTable(ctx, table); err != nil {
			return fmt.Errorf("provision %s: %w", table, err)
		}
		for _, row := range rows {
			if err := store.Put(ctx, table, row.Partition, row.SortKey, row.toRecord()); err != nil {
				return fmt.Errorf("put %s/%s/%s: %w", table, row.Partition, row.SortKey, err)
			}
			total++
		}
	}

	slog.Info("seed complete",
		"conversations", len(fixture.Mappings.Conversations),
		"reports", len(fixture.Mappings.Reports),
		"records", total)
	return nil
}
