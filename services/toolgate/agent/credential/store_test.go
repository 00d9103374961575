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
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	enc, err := newTestHasher(t).Hash([]byte(secret))
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	return enc
}

func TestEnvStore_Load(t *testing.T) {
	ctx := context.Background()
	t.Setenv(EnvHashVar, "$argon2id$default")
	t.Setenv(EnvHashVar+"_CI_BOT", "$argon2id$ci")

	s := NewEnvStore(0)

	got, err := s.Load(ctx, "default")
	if err != nil || got != "$argon2id$default" {
		t.Errorf("Load(default) = (%q, %v)", got, err)
	}
	got, err = s.Load(ctx, "")
	if err != nil || got != "$argon2id$default" {
		t.Errorf("Load(\"\") = (%q, %v), want default profile", got, err)
	}
	got, err = s.Load(ctx, "ci-bot")
	if err != nil || got != "$argon2id$ci" {
		t.Errorf("Load(ci-bot) = (%q, %v)", got, err)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Load(missing) error = %v, want ErrNoCredential", err)
	}
}

func TestEnvStore_TTLCache(t *testing.T) {
	ctx := context.Background()
	t.Setenv(EnvHashVar, "first")

	cached := NewEnvStore(time.Hour)
	uncached := NewEnvStore(0)

	if v, _ := cached.Load(ctx, "default"); v != "first" {
		t.Fatalf("cached Load() = %q", v)
	}
	_, _ = uncached.Load(ctx, "default")

	t.Setenv(EnvHashVar, "second")

	if v, _ := cached.Load(ctx, "default"); v != "first" {
		t.Errorf("cached Load() after rotation = %q, want first", v)
	}
	if v, _ := uncached.Load(ctx, "default"); v != "second" {
		t.Errorf("uncached Load() after rotation = %q, want second", v)
	}
}

func TestEnvStore_SaveAndCancel(t *testing.T) {
	s := NewEnvStore(0)
	if err := s.Save(context.Background(), "default", "x"); err == nil {
		t.Error("Save() should fail on the environment store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Load(ctx, "default"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() with cancelled ctx error = %v", err)
	}
}

func TestBadgerStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewBadgerStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewBadgerStore() error: %v", err)
	}

	if _, err := s.Load(ctx, "default"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Load() before Save error = %v, want ErrNoCredential", err)
	}

	enc := mustHash(t, "pw")
	if err := s.Save(ctx, "default", enc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := s.Load(ctx, "default")
	if err != nil || got != enc {
		t.Errorf("Load() = (%q, %v), want saved hash", got, err)
	}

	if _, err := s.Load(ctx, "other"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("profiles must be isolated, got %v", err)
	}

	replacement := mustHash(t, "pw2")
	if err := s.Save(ctx, "default", replacement); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(ctx, "default"); got != replacement {
		t.Error("Save() should replace the previous hash")
	}
}

func TestBadgerStore_RejectsInvalidHash(t *testing.T) {
	s, err := NewBadgerStore(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), "default", "plaintext"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("Save(invalid) error = %v, want ErrInvalidHash", err)
	}
}

func TestBadgerStore_CloseOwnership(t *testing.T) {
	db := openTestDB(t)
	shared, err := NewBadgerStore(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := shared.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if db.IsClosed() {
		t.Error("Close() must not close a database it did not open")
	}

	if _, err := NewBadgerStore(nil); err == nil {
		t.Error("expected error for nil db")
	}
}

func TestOpenBadgerStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/creds"

	s, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("OpenBadgerStore() error: %v", err)
	}
	enc := mustHash(t, "persist")
	if err := s.Save(ctx, "default", enc); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if got, err := reopened.Load(ctx, "default"); err != nil || got != enc {
		t.Errorf("Load() after reopen = (%q, %v)", got, err)
	}

	if _, err := OpenBadgerStore(""); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestChainStore(t *testing.T) {
	ctx := context.Background()
	front, back := newMemStore(), newMemStore()
	front.hashes["ci"] = "front-ci"
	back.hashes["ci"] = "back-ci"
	back.hashes["default"] = "back-default"

	chain := NewChainStore(front, nil, back)

	tests := []struct {
		profile string
		want    string
		wantErr error
	}{
		{"ci", "front-ci", nil},
		{"default", "back-default", nil},
		{"ghost", "", ErrNoCredential},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			got, err := chain.Load(ctx, tt.profile)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Load() = %q, want %q", got, tt.want)
			}
		})
	}

	if err := chain.Save(ctx, "new", "h"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, ok := back.hashes["new"]; !ok {
		t.Error("Save should write to the last store")
	}
	if _, ok := front.hashes["new"]; ok {
		t.Error("Save must not write to earlier stores")
	}
}

func TestChainStore_StopsOnHardError(t *testing.T) {
	boom := errors.New("disk on fire")
	front, back := newMemStore(), newMemStore()
	front.err = boom
	back.hashes["default"] = "h"

	if _, err := NewChainStore(front, back).Load(context.Background(), "default"); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want %v", err, boom)
	}
}

func TestChainStore_EnvInFrontOfBadger(t *testing.T) {
	ctx := context.Background()
	badgerStore, err := NewBadgerStore(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvHashVar, "")
	chain := NewChainStore(NewEnvStore(0), badgerStore)

	enc := mustHash(t, "s3cret")
	if err := chain.Save(ctx, "default", enc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got, err := chain.Load(ctx, "default"); err != nil || got != enc {
		t.Errorf("Load() = (%q, %v), want badger value", got, err)
	}

	t.Setenv(EnvHashVar, "from-env")
	if got, _ := chain.Load(ctx, "default"); got != "from-env" {
		t.Errorf("Load() = %q, want environment to win", got)
	}

	if err := NewChainStore().Save(ctx, "x", enc); err == nil {
		t.Error("empty chain Save should fail")
	}
}
