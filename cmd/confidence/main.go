// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command confidence scores code units, gates changes and inspects the
// local confidence store.
//
// Evidence comes from a YAML fixtures file of recorded source values, so
// the CLI runs without language tooling:
//
//	confidence score --fixtures evidence.yaml pkg/auth/login.go:42
//	confidence gate --fixtures evidence.yaml --developer ana < change.diff
//	confidence propagate --snapshot deps.yaml pkg/db/conn.go 0.4
//	confidence feedback record ana pkg/auth fix_flagged_line
//	confidence audit verify
//
// Exit codes:
//
//	0 = success (gate passed)
//	1 = gate failed or audit chain corrupted
//	2 = usage or runtime error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	exitOK    = 0
	exitCheck = 1
	exitError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := errors.Join(root.Execute(), a.close())
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errCheckFailed):
		return exitCheck
	default:
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
}
