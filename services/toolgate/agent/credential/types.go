// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package credential hashes and verifies the unlock secret that guards
// high-risk commands.
//
// Secrets are hashed with Argon2id and encoded as PHC strings. Hashes are
// kept in a Store (environment or BadgerDB), and a Gate checks secrets
// against the stored hash under an attempt rate limit.
package credential

import (
	"context"
	"errors"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrHash is returned when hashing fails (salt generation or empty secret).
	ErrHash = errors.New("credential: hashing failed")

	// ErrInvalidHash is returned when a stored hash is not a valid argon2id
	// PHC string. It is distinct from a mismatch.
	ErrInvalidHash = errors.New("credential: invalid hash encoding")

	// ErrMismatch is returned by Gate when the secret does not match.
	ErrMismatch = errors.New("credential: secret does not match")

	// ErrNoCredential is returned when no hash is stored for the profile.
	ErrNoCredential = errors.New("credential: no credential configured")

	// ErrTooManyAttempts is returned when the attempt rate limit is exceeded.
	ErrTooManyAttempts = errors.New("credential: too many attempts")
)

// Params are the Argon2id cost parameters.
type Params struct {
	// MemoryKiB is the memory cost in KiB.
	MemoryKiB uint32

	// Iterations is the time cost.
	Iterations uint32

	// Threads is the degree of parallelism.
	Threads uint8

	// SaltLength is the random salt size in bytes.
	SaltLength uint32

	// KeyLength is the derived key size in bytes.
	KeyLength uint32
}

// DefaultParams returns the OWASP-recommended Argon2id parameters
// (19 MiB, t=2, p=1) with a 16-byte salt and a 32-byte key.
func DefaultParams() Params {
	return Params{
		MemoryKiB:  19 * 1024,
		Iterations: 2,
		Threads:    1,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// Store persists the encoded hash per profile.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the encoded hash for profile.
	//
	// Outputs:
	//   - string: The PHC-encoded hash.
	//   - error: ErrNoCredential if nothing is stored.
	Load(ctx context.Context, profile string) (string, error)

	// Save stores the encoded hash for profile, replacing any previous one.
	Save(ctx context.Context, profile, encoded string) error
}
