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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/safety"
)

// prompter is the interactive surface of the CLI. It confirms gated
// commands for safety.Gate and reads secrets for passwd and verify.
type prompter interface {
	safety.Confirmer

	// Secret reads a hidden line. The caller wipes the returned slice.
	Secret(ctx context.Context, title, description string) ([]byte, error)
}

// huhPrompter asks questions with charmbracelet/huh forms. When stdin is
// not a terminal it falls back to huh's accessible (line-based) mode so
// answers can be piped in.
type huhPrompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

func newHuhPrompter(in io.Reader, out io.Writer) *huhPrompter {
	accessible := true
	if f, ok := in.(*os.File); ok {
		accessible = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &huhPrompter{in: in, out: out, accessible: accessible}
}

func (p *huhPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(p.in).
		WithOutput(p.out).
		WithAccessible(p.accessible)
	return form.RunWithContext(ctx)
}

// Confirm asks whether a medium or low risk command may run.
func (p *huhPrompter) Confirm(ctx context.Context, prompt safety.Prompt) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(fmt.Sprintf("Run %s command?", prompt.Level)).
		Description(prompt.Warning).
		Affirmative("Run").
		Negative("Cancel").
		Value(&ok)

	if err := p.run(ctx, field); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Password asks for the unlock password of a high-risk command.
func (p *huhPrompter) Password(ctx context.Context, prompt safety.Prompt) ([]byte, error) {
	return p.Secret(ctx, "Password required", prompt.Warning)
}

// Secret reads a hidden, non-empty line.
func (p *huhPrompter) Secret(ctx context.Context, title, description string) ([]byte, error) {
	var value string
	field := huh.NewInput().
		Title(title).
		Description(description).
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if s == "" {
				return errors.New("password must not be empty")
			}
			return nil
		}).
		Value(&value)

	if err := p.run(ctx, field); err != nil {
		return nil, err
	}
	return []byte(value), nil
}
