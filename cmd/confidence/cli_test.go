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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
)

const testFixtures = `
sources:
  - name: parser
    criterion: syntax
    proven: true
    values: {"pkg/x.go": 1}
  - name: tsc
    criterion: type_safety
    proven: true
    values: {"pkg/x.go": 1}
  - name: lint
    criterion: lint
    proven: true
    values: {"pkg/x.go": 1}
  - name: runtime
    criterion: runtime
    proven: true
    values: {"pkg/x.go": 1}
  - name: go-test
    criterion: behavior
    proven: true
    values: {"pkg/x.go": 1}
    kill_rates: {"pkg/x.go": 0.9}
  - name: sast
    criterion: security
    proven: true
    values: {"pkg/x.go": 1}
developers:
  - developer: veteran
    module: pkg
    signals:
      commit_history: 1
      review_acceptance: 1
      recency: 1
      domain_expertise: 1
`

const testDiff = `diff --git a/pkg/x.go b/pkg/x.go
--- a/pkg/x.go
+++ b/pkg/x.go
@@ -1,2 +1,3 @@
 package x
+var A = 1
 var B = 2
`

const testSnapshot = `
files:
  - path: api.go
    score: 0.9
  - path: db.go
    score: 0.9
dependencies:
  - file: api.go
    depends_on: db.go
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the CLI and returns stdout, stderr and the exit code.
func execute(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    evidence.Unit
		wantErr bool
	}{
		{"pkg/a.go", evidence.Unit{File: "pkg/a.go"}, false},
		{"pkg/a.go:12", evidence.Unit{File: "pkg/a.go", Line: 12}, false},
		{`C:\src\a.go`, evidence.Unit{File: `C:\src\a.go`}, false},
		{"pkg/a.go:0", evidence.Unit{}, true},
		{"", evidence.Unit{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUnit(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFixtures(t *testing.T) {
	fx, err := ParseFixtures([]byte(testFixtures))
	require.NoError(t, err)
	assert.Len(t, fx.Sources, 6)
	require.Len(t, fx.Developers, 1)
	assert.Equal(t, 1.0, fx.Developers[0].Signals.CommitHistory)

	regs, err := fx.Registrations()
	require.NoError(t, err)
	assert.Len(t, regs, 6)
	assert.Equal(t, "go-test", regs[4].Source.Name())

	_, err = ParseFixtures([]byte("sources:\n  - criterion: lint\n"))
	assert.Error(t, err, "source without a name")

	fx, err = ParseFixtures([]byte("sources:\n  - name: x\n    criterion: style\n"))
	require.NoError(t, err)
	_, err = fx.Registrations()
	assert.Error(t, err, "unknown criterion")
}

func TestScoreCommand_JSON(t *testing.T) {
	fixtures := writeFile(t, "evidence.yaml", testFixtures)
	stdout, stderr, code := execute(t, "", "--in-memory", "-f", fixtures, "-o", "json", "score", "pkg/x.go")
	require.Equal(t, exitOK, code, stderr)

	var scores []struct {
		Unit    evidence.Unit `json:"unit"`
		Overall float64       `json:"overall"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &scores), stdout)
	require.Len(t, scores, 1)
	assert.Equal(t, "pkg/x.go", scores[0].Unit.File)
	assert.Greater(t, scores[0].Overall, 0.85)
}

func TestScoreCommand_PlainExplain(t *testing.T) {
	fixtures := writeFile(t, "evidence.yaml", testFixtures)
	stdout, stderr, code := execute(t, "", "--in-memory", "-f", fixtures, "-o", "plain", "score", "--explain", "pkg/x.go:2")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "pkg/x.go:2")
	assert.Contains(t, stdout, "type_safety")
	assert.Contains(t, stdout, "go-test → behavior")
}

func TestGateCommand_ExitCodes(t *testing.T) {
	fixtures := writeFile(t, "evidence.yaml", testFixtures)

	_, stderr, code := execute(t, testDiff, "--in-memory", "-f", fixtures, "-o", "plain", "gate", "-d", "veteran")
	assert.Equal(t, exitOK, code, stderr)

	stdout, stderr, code := execute(t, testDiff, "--in-memory", "-f", fixtures, "-o", "plain", "gate", "-d", "stranger")
	assert.Equal(t, exitCheck, code, stderr)
	assert.Contains(t, stdout, "Ship gate failed")

	_, _, code = execute(t, "", "--in-memory", "-f", fixtures, "gate", "-d", "veteran")
	assert.Equal(t, exitError, code, "empty diff")
}

func TestFeedbackAndAudit_PersistAcrossRuns(t *testing.T) {
	storeDir := t.TempDir()

	_, stderr, code := execute(t, "", "--store", storeDir, "-o", "plain", "feedback", "record", "ana", "pkg", "add_test")
	require.Equal(t, exitOK, code, stderr)

	stdout, stderr, code := execute(t, "", "--store", storeDir, "-o", "json", "feedback", "show", "ana")
	require.Equal(t, exitOK, code, stderr)
	var priors []priorView
	require.NoError(t, json.Unmarshal([]byte(stdout), &priors), stdout)
	require.Len(t, priors, 1)
	assert.Equal(t, "pkg", priors[0].Module)
	assert.Greater(t, priors[0].Prior, 0.5)

	stdout, stderr, code = execute(t, "", "--store", storeDir, "-o", "plain", "audit", "verify")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "1 entries")

	_, _, code = execute(t, "", "--store", storeDir, "feedback", "record", "ana", "pkg", "shrug")
	assert.Equal(t, exitError, code)

	_, _, code = execute(t, "", "--store", storeDir, "feedback", "forget")
	assert.Equal(t, exitError, code, "forget needs a developer or --all")
	_, stderr, code = execute(t, "", "--store", storeDir, "-o", "plain", "feedback", "forget", "ana")
	require.Equal(t, exitOK, code, stderr)
}

func TestPropagateCommand(t *testing.T) {
	snapshot := writeFile(t, "deps.yaml", testSnapshot)
	stdout, stderr, code := execute(t, "", "--in-memory", "--snapshot", snapshot, "-o", "json", "propagate", "db.go", "0.5")
	require.Equal(t, exitOK, code, stderr)

	var sweeps []struct {
		Origin  string `json:"Origin"`
		Updates []struct {
			Path string
			New  float64
		}
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &sweeps), stdout)
	require.Len(t, sweeps, 1)
	require.Len(t, sweeps[0].Updates, 2)
	assert.Equal(t, "api.go", sweeps[0].Updates[1].Path)
	assert.Less(t, sweeps[0].Updates[1].New, 0.9)

	_, _, code = execute(t, "", "--in-memory", "propagate", "db.go", "0.5")
	assert.Equal(t, exitError, code, "no snapshot")
	_, _, code = execute(t, "", "--in-memory", "--snapshot", snapshot, "propagate", "db.go", "1.5")
	assert.Equal(t, exitError, code, "score out of range")
}

func TestDeveloperCommands(t *testing.T) {
	fixtures := writeFile(t, "evidence.yaml", testFixtures)
	stdout, stderr, code := execute(t, "", "--in-memory", "-f", fixtures, "-o", "plain", "developer", "busfactor", "pkg")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "bus factor 1 (veteran)")
	assert.Contains(t, stdout, "knowledge risk")

	_, _, code = execute(t, "", "--in-memory", "-f", fixtures, "developer", "show", "nobody", "pkg")
	assert.Equal(t, exitError, code)
}

func TestMetricsCommand(t *testing.T) {
	stdout, stderr, code := execute(t, "", "--in-memory", "metrics")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "go_goroutines")
}
