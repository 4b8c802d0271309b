// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the embedded audit store for finished
// pipelines.
//
// # Description
//
// Finished pipelines (completed, failed, or cancelled) are persisted to
// BadgerDB so the audit trail survives restarts. Each pipeline is
// stored under its ID with a secondary time-ordered index for
// reverse-chronological listing.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// ErrNotFound indicates no pipeline is stored under the given ID.
var ErrNotFound = errors.New("pipeline not found in store")

// Key prefixes. The ts index value is the pipeline ID.
const (
	pipelinePrefix = "pipeline:"
	tsPrefix       = "ts:"
)

// Config holds audit store configuration.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is set.
	Path string

	// InMemory enables in-memory mode for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true when persistent.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// AuditStore is the badger-backed pipeline archive. It implements the
// orchestrator's Store contract.
type AuditStore struct {
	db     *badger.DB
	logger *slog.Logger
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

// Open creates the store directory if needed and opens the database.
func Open(cfg Config) (*AuditStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store: path is required for persistent mode")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditStore{db: db, logger: logger.With("component", "store")}, nil
}

// Close flushes and closes the database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// SavePipeline persists one finished pipeline. Saving the same ID again
// overwrites the record and refreshes its index entry.
func (s *AuditStore) SavePipeline(ctx context.Context, p pipeline.Pipeline) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal pipeline %s: %w", p.ID, err)
	}

	at := p.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pipelineKey(p.ID), data); err != nil {
			return err
		}
		return txn.Set(tsKey(at, p.ID), []byte(p.ID))
	})
	if err != nil {
		return fmt.Errorf("store: save pipeline %s: %w", p.ID, err)
	}
	return nil
}

// GetPipeline loads one pipeline by ID.
func (s *AuditStore) GetPipeline(ctx context.Context, id string) (pipeline.Pipeline, error) {
	var p pipeline.Pipeline
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pipelineKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pipeline.Pipeline{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return pipeline.Pipeline{}, fmt.Errorf("store: get pipeline %s: %w", id, err)
	}
	return p, nil
}

// ListPipelines returns up to limit pipelines, most recently finished
// first. A limit of 0 returns everything.
func (s *AuditStore) ListPipelines(ctx context.Context, limit int) ([]pipeline.Pipeline, error) {
	out := make([]pipeline.Pipeline, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		// Collect IDs by walking the time index in reverse.
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(tsPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		ids := make([]string, 0)
		// Reverse iteration needs a seek key past the prefix range.
		for it.Seek([]byte(tsPrefix + "\xff")); it.ValidForPrefix([]byte(tsPrefix)); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}

		for _, id := range ids {
			item, err := txn.Get(pipelineKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var p pipeline.Pipeline
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list pipelines: %w", err)
	}
	return out, nil
}

// Count returns the number of stored pipelines.
func (s *AuditStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pipelinePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(pipelinePrefix)); it.ValidForPrefix([]byte(pipelinePrefix)); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: count pipelines: %w", err)
	}
	return n, nil
}

func pipelineKey(id string) []byte {
	return []byte(pipelinePrefix + id)
}

func tsKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", tsPrefix, at.UnixNano(), id))
}
