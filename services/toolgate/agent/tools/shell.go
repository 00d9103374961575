// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long a killed command may hold its output pipes.
const waitDelay = 500 * time.Millisecond

// commandOutput is the captured result of one process.
type commandOutput struct {
	exitCode int
	stdout   string
	stderr   string
}

func (t *Toolbox) executeShell(ctx context.Context, args map[string]any) string {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return missingArg("command")
	}

	timeout := t.shellTimeout
	if secs, ok := intArg(args, "timeout_secs"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > MaxShellTimeout {
		timeout = MaxShellTimeout
	}

	out, err := t.run(ctx, timeout, "sh", "-c", command)
	if err != nil {
		return fmt.Sprintf("Error executing command: %v", err)
	}
	return t.format("Command", out)
}

func (t *Toolbox) git(ctx context.Context, args map[string]any) string {
	gitArgs, err := stringListArg(args, "args")
	if err != nil {
		return fmt.Sprintf("Error: invalid argument: %v", err)
	}
	if len(gitArgs) == 0 {
		return missingArg("args")
	}
	if err := checkGitArgs(gitArgs); err != nil {
		return fmt.Sprintf("Error: invalid argument: %v", err)
	}

	out, err := t.run(ctx, t.shellTimeout, "git", gitArgs...)
	if err != nil {
		return fmt.Sprintf("Error running git: %v", err)
	}
	return t.format("git", out)
}

// gitGlobalOptions are the options accepted before the git subcommand.
// -C is handled separately because it takes an operand.
var gitGlobalOptions = map[string]bool{
	"--version":            true,
	"--help":               true,
	"-p":                   true,
	"--paginate":           true,
	"-P":                   true,
	"--no-pager":           true,
	"--bare":               true,
	"--no-replace-objects": true,
	"--literal-pathspecs":  true,
	"--glob-pathspecs":     true,
	"--noglob-pathspecs":   true,
	"--icase-pathspecs":    true,
	"--no-optional-locks":  true,
}

// gitProgramOptions make git run the program named in their value.
var gitProgramOptions = map[string]bool{
	"--config-env":   true,
	"--upload-pack":  true,
	"--receive-pack": true,
	"--exec-path":    true,
}

// checkGitArgs rejects arguments that let git run a program chosen by the
// caller: configuration overrides, repository relocation and the pack
// helper options.
func checkGitArgs(args []string) error {
	i := 0
	for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
		arg := args[i]
		switch {
		case arg == "-C":
			i++
		case gitGlobalOptions[arg]:
		default:
			return fmt.Errorf("git option %q is not allowed", arg)
		}
	}
	if i >= len(args) {
		return nil
	}

	sub := args[i]
	for _, arg := range args[i+1:] {
		name, _, _ := strings.Cut(arg, "=")
		switch {
		case gitProgramOptions[name]:
			return fmt.Errorf("git option %q is not allowed", name)
		case arg == "-u" && (sub == "clone" || sub == "ls-remote"):
			return fmt.Errorf("git %s option %q is not allowed", sub, arg)
		case name == "--exec" && sub == "archive":
			return fmt.Errorf("git %s option %q is not allowed", sub, name)
		}
	}
	return nil
}

// run starts name in the working directory and waits for it. A non-zero
// exit is reported in the output, not as an error.
func (t *Toolbox) run(ctx context.Context, timeout time.Duration, name string, args ...string) (commandOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = t.WorkingDir()
	// Children of sh can keep the output pipes open after sh is killed.
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return commandOutput{}, fmt.Errorf("timed out after %s", timeout)
		}
		return commandOutput{}, ctx.Err()
	}

	out := commandOutput{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return commandOutput{}, err
		}
		out.exitCode = exitErr.ExitCode()
	}
	return out, nil
}

// format renders a process result. The leading marker is the success
// signal the scheduler looks for.
func (t *Toolbox) format(label string, out commandOutput) string {
	status := "✅"
	if out.exitCode != 0 {
		status = "❌"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s exited with code %d\n", status, label, out.exitCode)
	if out.stdout != "" {
		b.WriteString("\nstdout:\n")
		b.WriteString(truncateOutput(out.stdout, t.maxLines))
	}
	if out.stderr != "" {
		b.WriteString("\nstderr:\n")
		b.WriteString(truncateOutput(out.stderr, t.maxLines))
	}
	return b.String()
}
