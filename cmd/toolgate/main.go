// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command toolgate resolves model tool calls, screens shell commands for
// risk and runs tool batches safely against the local machine.
package main

import (
	"context"
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	// Wipe locked secret buffers on SIGINT/SIGTERM as well as on return.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := a.execute(context.Background(), os.Args[1:]); err != nil {
		memguard.SafeExit(1)
	}
}
