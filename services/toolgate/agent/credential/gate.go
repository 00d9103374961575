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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var credentialTracer = otel.Tracer("aleutian.toolgate.credential")

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// GateOptions configures a Gate.
type GateOptions struct {
	// Profile is the profile Check verifies against. Empty uses DefaultProfile.
	Profile string

	// AttemptsPerMinute caps checks across all profiles. Zero or negative
	// disables the limit.
	AttemptsPerMinute int

	// Logger is used for check logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// Gate verifies unlock secrets against stored hashes.
//
// Description:
//
//	Every check first takes a token from the attempt limiter, then loads
//	the profile's hash and verifies the secret. The limiter refills at
//	AttemptsPerMinute per minute with a burst of the same size, so a
//	burst of wrong guesses locks the gate out until tokens return.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	hasher  *Hasher
	store   Store
	profile string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGate creates a Gate.
//
// Inputs:
//   - hasher: Used for Verify and SetSecret. Nil uses the default parameters.
//   - store: Where hashes live. Must not be nil.
//   - opts: Optional settings.
//
// Outputs:
//   - *Gate: The configured gate.
//   - error: Non-nil if store is nil.
func NewGate(hasher *Hasher, store Store, opts GateOptions) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("credential: store must not be nil")
	}
	if hasher == nil {
		hasher = defaultHasher
	}
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.AttemptsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.AttemptsPerMinute)), opts.AttemptsPerMinute)
	}

	return &Gate{
		hasher:  hasher,
		store:   store,
		profile: opts.Profile,
		limiter: limiter,
		logger:  opts.Logger,
	}, nil
}

// Profile returns the profile Check verifies against.
func (g *Gate) Profile() string {
	return g.profile
}

// Check verifies secret against the configured profile.
func (g *Gate) Check(ctx context.Context, secret []byte) error {
	return g.CheckProfile(ctx, g.profile, secret)
}

// CheckProfile verifies secret against profile's stored hash.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - profile: The credential profile.
//   - secret: The candidate secret. It is not modified.
//
// Outputs:
//   - error: nil on match. Otherwise ErrTooManyAttempts, ErrNoCredential,
//     ErrMismatch, or a wrapped ErrInvalidHash.
func (g *Gate) CheckProfile(ctx context.Context, profile string, secret []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := credentialTracer.Start(ctx, "credential.Gate.Check",
		oteltrace.WithAttributes(attribute.String("profile", profile)),
	)
	defer span.End()

	start := time.Now()
	outcome, err := g.check(ctx, profile, secret)
	recordCheck(outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))

	if err != nil {
		g.logger.Warn("credential check failed",
			slog.String("profile", profile),
			slog.String("outcome", outcome),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return err
	}

	g.logger.Debug("credential check passed", slog.String("profile", profile))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (g *Gate) check(ctx context.Context, profile string, secret []byte) (string, error) {
	if !g.limiter.Allow() {
		return "rate_limited", fmt.Errorf("profile %q: %w", profile, ErrTooManyAttempts)
	}

	encoded, err := g.store.Load(ctx, profile)
	if errors.Is(err, ErrNoCredential) {
		return "no_credential", err
	}
	if err != nil {
		return "error", fmt.Errorf("loading credential: %w", err)
	}

	ok, err := g.hasher.Verify(secret, encoded)
	if err != nil {
		return "invalid_hash", fmt.Errorf("profile %q: %w", profile, err)
	}
	if !ok {
		return "mismatch", fmt.Errorf("profile %q: %w", profile, ErrMismatch)
	}
	return "ok", nil
}

// SetSecret hashes secret and stores it for profile.
//
// Outputs:
//   - error: Wraps ErrHash on hashing failure, or the store's error.
func (g *Gate) SetSecret(ctx context.Context, profile string, secret []byte) error {
	if profile == "" {
		profile = g.profile
	}
	encoded, err := g.hasher.Hash(secret)
	if err != nil {
		return err
	}
	if err := g.store.Save(ctx, profile, encoded); err != nil {
		return err
	}
	g.logger.Info("credential updated", slog.String("profile", profile))
	return nil
}
