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
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// phcPrefix is the algorithm identifier in the encoded form.
const phcPrefix = "argon2id"

var b64 = base64.RawStdEncoding

// Upper bounds on the cost parameters accepted by NewHasher and read from
// stored hashes. A hash outside them is rejected before any key derivation.
const (
	MaxMemoryKiB  = 1 << 22 // 4 GiB
	MaxIterations = 32
	MaxThreads    = 64
	MaxSaltLength = 64
	MaxKeyLength  = 64
)

// Hasher hashes and verifies secrets with Argon2id.
//
// Description:
//
//	Each Hash call draws a fresh random salt, so hashing the same secret
//	twice yields different strings that both verify. The encoded form is
//	the PHC string:
//
//	  $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<key>
//
//	with salt and key in unpadded standard base64. Verify reads the cost
//	parameters from the encoded string, so hashes made with older
//	parameters keep verifying after the defaults change.
//
// Thread Safety: Safe for concurrent use.
type Hasher struct {
	params Params
	rand   io.Reader
}

// NewHasher creates a Hasher with the given parameters.
//
// Outputs:
//   - *Hasher: The hasher.
//   - error: Non-nil if any parameter is zero or above its Max bound.
func NewHasher(params Params) (*Hasher, error) {
	if params.MemoryKiB == 0 || params.Iterations == 0 || params.Threads == 0 ||
		params.SaltLength == 0 || params.KeyLength == 0 {
		return nil, fmt.Errorf("credential: argon2 parameters must be non-zero: %+v", params)
	}
	if params.MemoryKiB > MaxMemoryKiB || params.Iterations > MaxIterations || params.Threads > MaxThreads ||
		params.SaltLength > MaxSaltLength || params.KeyLength > MaxKeyLength {
		return nil, fmt.Errorf("credential: argon2 parameters above limits: %+v", params)
	}
	return &Hasher{params: params, rand: rand.Reader}, nil
}

var defaultHasher = &Hasher{params: DefaultParams(), rand: rand.Reader}

// Hash hashes secret with the default parameters.
func Hash(secret []byte) (string, error) {
	return defaultHasher.Hash(secret)
}

// Verify checks secret against an encoded hash. See Hasher.Verify.
func Verify(secret []byte, encoded string) (bool, error) {
	return defaultHasher.Verify(secret, encoded)
}

// Hash derives an Argon2id key from secret and returns its PHC encoding.
//
// Inputs:
//   - secret: The secret. It is not modified.
//
// Outputs:
//   - string: The PHC-encoded hash.
//   - error: Wraps ErrHash if the secret is empty or the salt cannot be read.
func (h *Hasher) Hash(secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("empty secret: %w", ErrHash)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("reading salt: %w: %w", ErrHash, err)
	}

	key := derive(secret, salt, h.params.Iterations, h.params.MemoryKiB, h.params.Threads, h.params.KeyLength)
	defer clear(key)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify checks secret against an encoded hash.
//
// Inputs:
//   - secret: The candidate secret. It is not modified.
//   - encoded: A PHC string produced by Hash.
//
// Outputs:
//   - bool: True if the secret matches.
//   - error: Wraps ErrInvalidHash if encoded is malformed. A well-formed
//     hash that does not match returns (false, nil).
func (h *Hasher) Verify(secret []byte, encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if len(secret) == 0 {
		return false, nil
	}

	key := derive(secret, d.salt, d.iterations, d.memoryKiB, d.threads, uint32(len(d.key)))
	defer clear(key)

	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// derive runs Argon2id on a locked copy of secret.
func derive(secret, salt []byte, iterations, memoryKiB uint32, threads uint8, keyLen uint32) []byte {
	// NewBufferFromBytes wipes its argument, so hand it a copy.
	buf := memguard.NewBufferFromBytes(append([]byte(nil), secret...))
	defer buf.Destroy()
	return argon2.IDKey(buf.Bytes(), salt, iterations, memoryKiB, threads, keyLen)
}

type decoded struct {
	memoryKiB  uint32
	iterations uint32
	threads    uint8
	salt       []byte
	key        []byte
}

func decode(encoded string) (*decoded, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != phcPrefix {
		return nil, fmt.Errorf("expected $%s$v=..$m=..,t=..,p=..$salt$key: %w", phcPrefix, ErrInvalidHash)
	}

	version, err := phcField(parts[2], "v", 0xff)
	if err != nil {
		return nil, err
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d: %w", version, ErrInvalidHash)
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return nil, fmt.Errorf("parameter field %q: %w", parts[3], ErrInvalidHash)
	}
	m, err := phcField(params[0], "m", MaxMemoryKiB)
	if err != nil {
		return nil, err
	}
	t, err := phcField(params[1], "t", MaxIterations)
	if err != nil {
		return nil, err
	}
	p, err := phcField(params[2], "p", MaxThreads)
	if err != nil {
		return nil, err
	}
	d := decoded{memoryKiB: uint32(m), iterations: uint32(t), threads: uint8(p)}

	if d.salt, err = b64.Strict().DecodeString(parts[4]); err != nil || len(d.salt) == 0 || len(d.salt) > MaxSaltLength {
		return nil, fmt.Errorf("salt: %w", ErrInvalidHash)
	}
	if d.key, err = b64.Strict().DecodeString(parts[5]); err != nil || len(d.key) == 0 || len(d.key) > MaxKeyLength {
		return nil, fmt.Errorf("key: %w", ErrInvalidHash)
	}
	return &d, nil
}

// phcField parses "<name>=<n>" with 1 <= n <= limit. The whole field must
// be consumed.
func phcField(field, name string, limit uint64) (uint64, error) {
	digits, ok := strings.CutPrefix(field, name+"=")
	if !ok {
		return 0, fmt.Errorf("field %q: want %s=<n>: %w", field, name, ErrInvalidHash)
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || n == 0 || n > limit {
		return 0, fmt.Errorf("field %q: %s must be in 1..%d: %w", field, name, limit, ErrInvalidHash)
	}
	return n, nil
}
