// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Environment Store
// =============================================================================

// EnvHashVar is the environment variable EnvStore reads for the default profile.
const EnvHashVar = "TOOLGATE_PASSWORD_HASH"

// EnvStore reads hashes from environment variables with TTL-based caching.
//
// Description:
//
//	The "default" profile reads TOOLGATE_PASSWORD_HASH. Any other profile
//	reads TOOLGATE_PASSWORD_HASH_<PROFILE> (upper-cased, '-' becomes '_').
//	Values are cached for the TTL so a rotated hash is picked up once the
//	entry expires. The environment is read-only; Save always fails.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex.
type EnvStore struct {
	mu    sync.RWMutex
	cache map[string]cachedHash
	ttl   time.Duration
}

type cachedHash struct {
	value     string
	fetchedAt int64 // Unix milliseconds UTC
}

// NewEnvStore creates an environment-backed store.
//
// Inputs:
//   - ttl: How long to cache values. Use 0 to re-read every time.
func NewEnvStore(ttl time.Duration) *EnvStore {
	return &EnvStore{
		cache: make(map[string]cachedHash),
		ttl:   ttl,
	}
}

// envVarFor returns the variable name holding profile's hash.
func envVarFor(profile string) string {
	if profile == "" || profile == "default" {
		return EnvHashVar
	}
	return EnvHashVar + "_" + strings.ToUpper(strings.ReplaceAll(profile, "-", "_"))
}

// Load returns the hash for profile from the environment, using the cache if fresh.
func (e *EnvStore) Load(ctx context.Context, profile string) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("loading credential %q: %w", profile, ctx.Err())
	}

	key := envVarFor(profile)
	now := time.Now().UnixMilli()

	if e.ttl > 0 {
		e.mu.RLock()
		cached, ok := e.cache[key]
		e.mu.RUnlock()
		if ok && time.Duration(now-cached.fetchedAt)*time.Millisecond < e.ttl {
			if cached.value == "" {
				return "", fmt.Errorf("profile %q: %w", profile, ErrNoCredential)
			}
			return cached.value, nil
		}
	}

	value := strings.TrimSpace(os.Getenv(key))

	if e.ttl > 0 {
		e.mu.Lock()
		e.cache[key] = cachedHash{value: value, fetchedAt: now}
		e.mu.Unlock()
	}

	if value == "" {
		return "", fmt.Errorf("profile %q: %w", profile, ErrNoCredential)
	}
	return value, nil
}

// Save is not supported by the environment store.
func (e *EnvStore) Save(_ context.Context, profile, _ string) error {
	return fmt.Errorf("credential: environment store is read-only; set %s instead", envVarFor(profile))
}

// =============================================================================
// BadgerDB Store
// =============================================================================

// badgerKeyPrefix namespaces credential keys inside a shared database.
const badgerKeyPrefix = "credential:hash:"

// BadgerStore persists hashes in BadgerDB, one key per profile.
//
// Thread Safety: Safe for concurrent use (BadgerDB transactions are).
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerStore wraps an already-open database. Close does not close it.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("credential: badger db must not be nil")
	}
	return &BadgerStore{db: db}, nil
}

// OpenBadgerStore opens (creating if needed) a database at dir.
//
// Inputs:
//   - dir: The database directory. Created with 0700 permissions.
//
// Outputs:
//   - *BadgerStore: The store. Close it when done.
//   - error: Non-nil if the directory or database cannot be opened.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("credential: store directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credential store dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(nil) // suppress BadgerDB internal logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening credential store at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

func badgerKey(profile string) []byte {
	return []byte(badgerKeyPrefix + profile)
}

// Load returns the hash stored for profile.
func (s *BadgerStore) Load(ctx context.Context, profile string) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("loading credential %q: %w", profile, ctx.Err())
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(profile))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("profile %q: %w", profile, ErrNoCredential)
	}
	if err != nil {
		return "", fmt.Errorf("loading credential %q: %w", profile, err)
	}
	return string(raw), nil
}

// Save stores encoded as profile's hash.
func (s *BadgerStore) Save(ctx context.Context, profile, encoded string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("saving credential %q: %w", profile, ctx.Err())
	}
	if _, err := decode(encoded); err != nil {
		return fmt.Errorf("refusing to save credential %q: %w", profile, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(profile), []byte(encoded))
	})
	if err != nil {
		return fmt.Errorf("saving credential %q: %w", profile, err)
	}
	return nil
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// Layered Store
// =============================================================================

// ChainStore consults several stores in order.
//
// Description:
//
//	Load returns the first hash found. A store reporting ErrNoCredential
//	passes the lookup on; any other error stops it. Save writes to the
//	last store, which is expected to be the writable one (an EnvStore in
//	front of a BadgerStore, for example).
//
// Thread Safety: As safe as the stores it wraps.
type ChainStore struct {
	stores []Store
}

// NewChainStore layers stores, first match wins. Nil entries are skipped.
func NewChainStore(stores ...Store) *ChainStore {
	kept := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &ChainStore{stores: kept}
}

// Load returns the first hash any store holds for profile.
func (c *ChainStore) Load(ctx context.Context, profile string) (string, error) {
	for _, s := range c.stores {
		encoded, err := s.Load(ctx, profile)
		if err == nil {
			return encoded, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			return "", err
		}
	}
	return "", fmt.Errorf("profile %q: %w", profile, ErrNoCredential)
}

// Save writes to the last store in the chain.
func (c *ChainStore) Save(ctx context.Context, profile, encoded string) error {
	if len(c.stores) == 0 {
		return fmt.Errorf("credential: no store configured")
	}
	return c.stores[len(c.stores)-1].Save(ctx, profile, encoded)
}
