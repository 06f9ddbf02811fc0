// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package developer

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

// TouchedFile is one file in a change with the new-side lines it touches.
type TouchedFile struct {
	Path    string
	Lines   []int
	Added   int
	Removed int
	Deleted bool
}

// Change is a parsed unified diff.
type Change struct {
	Files []TouchedFile
}

// Paths returns the touched file paths in diff order.
func (c *Change) Paths() []string {
	out := make([]string, len(c.Files))
	for i, f := range c.Files {
		out[i] = f.Path
	}
	return out
}

// ParseChange parses a unified (git) diff into touched files and lines.
//
// # Description
//
// Added lines count at their new-side line number. A removal counts at the
// new-side line it sits before, so pure deletions still touch a line. Paths
// lose their a/ and b/ prefixes. A file deleted outright is marked Deleted
// and touches no lines.
//
// # Outputs
//
//   - *Change: Files in diff order.
//   - error: Non-nil if the diff cannot be parsed or is empty
//     (ErrEmptyChange).
func ParseChange(text []byte) (*Change, error) {
	fds, err := diff.ParseMultiFileDiff(text)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	c := &Change{}
	for _, fd := range fds {
		tf := TouchedFile{Path: cleanPath(fd.NewName)}
		if fd.NewName == "/dev/null" {
			tf.Path = cleanPath(fd.OrigName)
			tf.Deleted = true
		}
		if tf.Path == "" {
			continue
		}

		seen := make(map[int]struct{})
		for _, h := range fd.Hunks {
			newLine := int(h.NewStartLine)
			for _, line := range bytes.Split(h.Body, []byte("\n")) {
				if len(line) == 0 {
					continue
				}
				switch line[0] {
				case '+':
					tf.Added++
					seen[newLine] = struct{}{}
					newLine++
				case '-':
					tf.Removed++
					if newLine > 0 {
						seen[newLine] = struct{}{}
					}
				case ' ':
					newLine++
				}
			}
		}
		if !tf.Deleted {
			for l := range seen {
				tf.Lines = append(tf.Lines, l)
			}
			sort.Ints(tf.Lines)
		}
		c.Files = append(c.Files, tf)
	}
	if len(c.Files) == 0 {
		return nil, ErrEmptyChange
	}
	return c, nil
}

func cleanPath(name string) string {
	if name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// Scorer supplies current code confidence for the change gate.
type Scorer interface {
	// LineScore returns the overall score of one line, if known.
	LineScore(file string, line int) (float64, bool)

	// FileScore returns the file-level score, if known.
	FileScore(file string) (float64, bool)
}

// CodeConfidence is C(code) for a change: the CVaR of the touched lines'
// scores, using the file score for lines without one and for files with no
// touched lines. Files nothing knows about are skipped.
func CodeConfidence(c *Change, s Scorer) (float64, error) {
	if c == nil || len(c.Files) == 0 {
		return 0, ErrEmptyChange
	}
	var scores []float64
	for _, f := range c.Files {
		if f.Deleted {
			continue
		}
		fileScore, hasFile := s.FileScore(f.Path)
		if len(f.Lines) == 0 && hasFile {
			scores = append(scores, fileScore)
			continue
		}
		for _, l := range f.Lines {
			if v, ok := s.LineScore(f.Path, l); ok {
				scores = append(scores, v)
			} else if hasFile {
				scores = append(scores, fileScore)
			}
		}
	}
	if len(scores) == 0 {
		return 0, ErrUnscoredChange
	}
	return aggregate.AggregateFile(scores)
}
