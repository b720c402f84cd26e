// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docs

// =============================================================================
// Page Cache
// =============================================================================
//
// Crawled page trees are persisted in BadgerDB so a restart does not recrawl
// every configured root. Expiry is BadgerDB's native TTL; an expired key reads
// as a miss.
//
// Storage layout:
//
//	docs/pages/v1/{rootID}  →  gob-encoded []Document   TTL: 24h default

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultCacheTTL is the lifetime of a cached page tree.
const DefaultCacheTTL = 24 * time.Hour

// CacheKeyPrefix prefixes every cache key.
const CacheKeyPrefix = "docs/pages/v1/"

// ErrCacheMiss is returned when no unexpired entry exists for a root.
var ErrCacheMiss = errors.New("docs: cache miss")

// PageCache persists crawled page trees by root page id.
//
// Thread Safety: Implementations must be safe for concurrent use.
type PageCache interface {
	// Load returns the cached documents for rootID, or ErrCacheMiss.
	Load(ctx context.Context, rootID string) ([]Document, error)

	// Save stores docs for rootID, replacing any previous entry.
	Save(ctx context.Context, rootID string, docs []Document) error
}

// CacheEntry summarizes one cached root for inspection.
type CacheEntry struct {
	RootID    string    `json:"root_id"`
	Titles    []string  `json:"titles"`
	Size      int       `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`

	// Err is set when the entry could not be decoded.
	Err error `json:"-"`
}

// BadgerPageCache implements PageCache on BadgerDB.
//
// Description:
//
//	The DB lifecycle belongs to the caller; the cache never closes it.
//
// Thread Safety: Safe for concurrent use.
type BadgerPageCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadger opens a BadgerDB at path, or an in-memory one when path is "".
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("docs: opening page cache at %q: %w", path, err)
	}
	return db, nil
}

// NewBadgerPageCache creates a cache over db.
//
// Inputs:
//   - db: Opened BadgerDB. Must not be nil.
//   - ttl: Entry lifetime. Zero or negative uses DefaultCacheTTL.
//   - logger: May be nil.
func NewBadgerPageCache(db *badger.DB, ttl time.Duration, logger *slog.Logger) (*BadgerPageCache, error) {
	if db == nil {
		return nil, errors.New("docs: page cache requires a db")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerPageCache{db: db, ttl: ttl, logger: logger}, nil
}

// Load implements PageCache.
func (c *BadgerPageCache) Load(ctx context.Context, rootID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(rootID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrCacheMiss) {
		c.logger.Debug("page cache: miss", slog.String("root_id", rootID))
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("docs: page cache load: %w", err)
	}

	docs, err := decodeDocuments(raw)
	if err != nil {
		return nil, fmt.Errorf("docs: page cache decode: %w", err)
	}
	c.logger.Debug("page cache: hit",
		slog.String("root_id", rootID),
		slog.Int("pages", len(docs)))
	return docs, nil
}

// Save implements PageCache. An empty tree is not stored.
func (c *BadgerPageCache) Save(ctx context.Context, rootID string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeDocuments(docs)
	if err != nil {
		return fmt.Errorf("docs: page cache encode: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(cacheKey(rootID), raw).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("docs: page cache save: %w", err)
	}
	c.logger.Debug("page cache: saved",
		slog.String("root_id", rootID),
		slog.Int("pages", len(docs)),
		slog.Duration("ttl", c.ttl))
	return nil
}

// Entries lists every unexpired cached root, in key order.
func (c *BadgerPageCache) Entries(ctx context.Context) ([]CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []CacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(CacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e := CacheEntry{RootID: strings.TrimPrefix(string(item.Key()), CacheKeyPrefix)}
			if exp := item.ExpiresAt(); exp > 0 {
				e.ExpiresAt = time.Unix(int64(exp), 0)
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.Err = err
				out = append(out, e)
				continue
			}
			e.Size = len(raw)
			docs, err := decodeDocuments(raw)
			if err != nil {
				e.Err = err
			}
			for _, d := range docs {
				e.Titles = append(e.Titles, d.Title)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docs: listing page cache: %w", err)
	}
	return out, nil
}

func cacheKey(rootID string) []byte {
	return []byte(CacheKeyPrefix + rootID)
}

func encodeDocuments(docs []Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(docs); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDocuments(data []byte) ([]Document, error) {
	var docs []Document
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&docs); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return docs, nil
}
