// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore implements storage.Store on BadgerDB.
//
// Keys are laid out as "{table}/{partition}/{sortKey}" with JSON-encoded
// records as values, so a partition query is a single prefix scan. Tables
// are provisioned through a meta key; querying a table that was never
// provisioned returns storage.ErrTableNotProvisioned, mirroring the
// behavior of the managed production store.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badgerstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

const (
	tableMetaPrefix = "!tables/"
	keySeparator    = "/"

	// defaultPageSize bounds a single Query page when the caller passes
	// no limit. The fetcher pages until exhaustion regardless.
	defaultPageSize = 100
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used in tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC runs.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes, five-minute GC.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a badger-backed storage.Store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

var _ storage.Store = (*Store)(nil)

// Open creates the database directory if needed and opens the store.
// Callers must Close the returned store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// ProvisionTable records the table in the meta registry.
func (s *Store) ProvisionTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tableMetaPrefix+table), []byte("1"))
	})
	if err != nil {
		return fmt.Errorf("provision table %s: %w: %v", table, storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping verifies the database is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	err := s.db.View(func(txn *badger.Txn) error { return nil })
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Put writes a record under (table, partition, sortKey).
// The table must have been provisioned first.
func (s *Store) Put(ctx context.Context, table, partition, sortKey string, rec datatypes.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	if partition == "" || sortKey == "" {
		return errors.New("partition and sort key must be non-empty")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.checkProvisioned(txn, table); err != nil {
			return err
		}
		return txn.Set(recordKey(table, partition, sortKey), value)
	})
	if err != nil {
		if errors.Is(err, storage.ErrTableNotProvisioned) {
			return err
		}
		return fmt.Errorf("put %s/%s/%s: %w: %v", table, partition, sortKey, storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Query returns one page of records from a table partition. Results come
// back in badger key order; callers must not rely on it.
func (s *Store) Query(ctx context.Context, in storage.QueryInput) (storage.QueryOutput, error) {
	var out storage.QueryOutput
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	if in.Partition == "" {
		return out, errors.New("partition key must be non-empty")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.checkProvisioned(txn, in.Table); err != nil {
			return err
		}

		if in.ExactSort != "" {
			item, err := txn.Get(recordKey(in.Table, in.Partition, in.ExactSort))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			rec, err := decodeRecord(item)
			if err != nil {
				return err
			}
			out.Records = append(out.Records, rec)
			return nil
		}

		prefix := recordKey(in.Table, in.Partition, in.SortPrefix)
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		start := prefix
		skipFirst := false
		if in.StartToken != "" {
			last, err := decodeToken(in.StartToken)
			if err != nil {
				return err
			}
			start = last
			skipFirst = true
		}

		var lastKey []byte
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if skipFirst {
				skipFirst = false
				if string(it.Item().Key()) == string(start) {
					continue
				}
			}
			if len(out.Records) == limit {
				// One more key exists past the page boundary.
				out.NextToken = encodeToken(lastKey)
				return nil
			}
			rec, err := decodeRecord(it.Item())
			if err != nil {
				return err
			}
			out.Records = append(out.Records, rec)
			lastKey = it.Item().KeyCopy(nil)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrTableNotProvisioned) {
			return storage.QueryOutput{}, err
		}
		return storage.QueryOutput{}, fmt.Errorf("query %s/%s: %w: %v", in.Table, in.Partition, storage.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *Store) checkProvisioned(txn *badger.Txn, table string) error {
	if table == "" {
		return errors.New("table must be non-empty")
	}
	_, err := txn.Get([]byte(tableMetaPrefix + table))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrTableNotProvisioned, table)
	}
	return err
}

func recordKey(table, partition, sortKey string) []byte {
	var b strings.Builder
	b.WriteString(table)
	b.WriteString(keySeparator)
	b.WriteString(partition)
	b.WriteString(keySeparator)
	b.WriteString(sortKey)
	return []byte(b.String())
}

func decodeRecord(item *badger.Item) (datatypes.Record, error) {
	var rec datatypes.Record
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return datatypes.Record{}, fmt.Errorf("decode record %s: %w", item.Key(), err)
	}
	return rec, nil
}

func encodeToken(lastKey []byte) string {
	return base64.StdEncoding.EncodeToString(lastKey)
}

func decodeToken(token string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("bad continuation token: %w", err)
	}
	return key, nil
}
