// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// Run lifecycle states recorded in the index.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

var keyPrefix = []byte("run/")

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the index entry for one run. It carries only counts and
// status, never document content or extracted values.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	NumDocs      int       `json:"num_docs"`
	FieldsTotal  int       `json:"fields_total"`
	FieldsFilled int       `json:"fields_filled"`
	Error        string    `json:"error,omitempty"`
}

// IndexConfig holds configuration for the run index database.
type IndexConfig struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultIndexConfig returns production defaults for a path.
func DefaultIndexConfig(path string) IndexConfig {
	return IndexConfig{Path: path, SyncWrites: true}
}

// InMemoryIndexConfig returns a configuration for tests.
func InMemoryIndexConfig() IndexConfig {
	return IndexConfig{InMemory: true}
}

// Index is the BadgerDB-backed run listing. Run ids sort by creation
// time, so a reverse key scan lists newest runs first without a
// secondary index.
//
// Thread Safety: Safe for concurrent use.
type Index struct {
	db *badger.DB
}

// OpenIndex opens the run index with the given configuration.
func OpenIndex(cfg IndexConfig) (*Index, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent index")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, dirPerm); err != nil {
			return nil, fmt.Errorf("%w: create index directory %s: %v", contracts.ErrRunStorage, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open run index: %v", contracts.ErrRunStorage, err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Put inserts or replaces a run record.
func (ix *Index) Put(ctx context.Context, rec RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RunID == "" {
		return errors.New("run record missing run id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	err = ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: index put %s: %v", contracts.ErrRunStorage, rec.RunID, err)
	}
	return nil
}

// Get returns the record for a run id, or ErrRunNotFound.
func (ix *Index) Get(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 means no
// limit.
func (ix *Index) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []RunRecord
	err := ix.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.Prefix = keyPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse iteration must seek past the last possible key in
		// the prefix range.
		seek := append(append([]byte{}, keyPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec RunRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: index list: %v", contracts.ErrRunStorage, err)
	}
	return records, nil
}

func recordKey(runID string) []byte {
	return append(append([]byte{}, keyPrefix...), runID...)
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
