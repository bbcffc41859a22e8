// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package store persists sellers, jobs and schema state in BadgerDB. All
// document encoding is JSON; keys are short namespaced prefixes.
package store

import (
	"errors"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cratedig/cratedig/internal/logging"
)

// ErrNotFound is returned when a key does not exist, regardless of backend.
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal key-value capability the repositories need. BadgerKV is
// the production implementation; MemoryKV backs tests.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Scan visits every key with the given prefix. Returning an error from
	// fn stops the scan and propagates the error.
	Scan(prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// BadgerKV implements KV on a BadgerDB instance.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path. An empty path
// opens an in-memory instance, used for ephemeral deployments and tests.
func OpenBadger(path string) (*BadgerKV, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerKV{db: db}, nil
}

// Get implements KV.
func (b *BadgerKV) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

// Set implements KV.
func (b *BadgerKV) Set(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete implements KV.
func (b *BadgerKV) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Scan implements KV.
func (b *BadgerKV) Scan(prefix string, fn func(key string, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements KV.
func (b *BadgerKV) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any)   { logging.Error().Msgf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...any) { logging.Warn().Msgf("badger: "+f, v...) }
func (badgerLogger) Infof(f string, v ...any)    { logging.Debug().Msgf("badger: "+f, v...) }
func (badgerLogger) Debugf(f string, v ...any)   { logging.Debug().Msgf("badger: "+f, v...) }

// MemoryKV is an in-memory KV for tests.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements KV.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Scan implements KV.
func (m *MemoryKV) Scan(prefix string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	for _, k := range keys {
		v, err := m.Get(k)
		if err != nil {
			continue
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error { return nil }
