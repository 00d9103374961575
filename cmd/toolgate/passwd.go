// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/credential"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/safety"
)

// envCacheTTL is how long EnvStore caches a hash read from the environment.
const envCacheTTL = 30 * time.Second

// credentialGate builds the password checker used for high-risk commands.
//
// Hashes come from the environment first, then from the badger store. A
// store that cannot be opened is logged and skipped so that env-only
// setups keep working. The returned func closes the store.
func (a *app) credentialGate() (*credential.Gate, func(), error) {
	c := a.cfg.Credential
	hasher, err := credential.NewHasher(credential.Params{
		MemoryKiB:  c.Argon2.MemoryKiB,
		Iterations: c.Argon2.Iterations,
		Threads:    c.Argon2.Threads,
		SaltLength: c.Argon2.SaltLength,
		KeyLength:  c.Argon2.KeyLength,
	})
	if err != nil {
		return nil, nil, err
	}

	closeStore := func() {}
	var persistent credential.Store
	if c.StoreDir != "" {
		bs, err := credential.OpenBadgerStore(c.StoreDir)
		if err != nil {
			a.logger.Warn("credential store unavailable, using environment only",
				slog.String("path", c.StoreDir),
				slog.String("error", err.Error()),
			)
		} else {
			persistent = bs
			closeStore = func() {
				if err := bs.Close(); err != nil {
					a.logger.Warn("closing credential store", slog.String("error", err.Error()))
				}
			}
		}
	}

	gate, err := credential.NewGate(hasher,
		credential.NewChainStore(credential.NewEnvStore(envCacheTTL), persistent),
		credential.GateOptions{
			Profile:           c.Profile,
			AttemptsPerMinute: c.MaxAttemptsPerMinute,
			Logger:            a.logger,
		})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return gate, closeStore, nil
}

func (a *app) passwdCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set the password that unlocks high-risk commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Credential.StoreDir == "" {
				return errors.New("no credential store directory configured")
			}
			if profile == "" {
				profile = a.cfg.Credential.Profile
			}

			first, err := a.prompter.Secret(ctx, "New password", fmt.Sprintf("Profile %q", profile))
			if err != nil {
				return err
			}
			defer memguard.WipeBytes(first)
			second, err := a.prompter.Secret(ctx, "Repeat password", "")
			if err != nil {
				return err
			}
			defer memguard.WipeBytes(second)

			if subtle.ConstantTimeCompare(first, second) != 1 {
				return errors.New("passwords do not match")
			}

			gate, closeStore, err := a.credentialGate()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := gate.SetSecret(ctx, profile, first); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password saved for profile %q.\n", profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile to set (default from config)")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a password against the stored hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if profile == "" {
				profile = a.cfg.Credential.Profile
			}

			secret, err := a.prompter.Secret(ctx, "Password", fmt.Sprintf("Profile %q", profile))
			if err != nil {
				return err
			}
			defer memguard.WipeBytes(secret)

			gate, closeStore, err := a.credentialGate()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := gate.CheckProfile(ctx, profile, secret); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.styles.level(safety.Safe, "Password OK."))
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile to check (default from config)")
	return cmd
}
