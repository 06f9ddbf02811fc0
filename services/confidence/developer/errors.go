// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package developer derives C(developer, module) from seven normalized
// signals, counts a module's bus factor and discounts code confidence by
// developer confidence for the change gate.
package developer

import "errors"

var (
	// ErrUnknownDeveloper is returned when no signals were observed for a
	// (developer, module) pair.
	ErrUnknownDeveloper = errors.New("no signals for developer")

	// ErrInvalidConfig is returned for an unknown combination rule or
	// unusable weights.
	ErrInvalidConfig = errors.New("invalid developer model config")

	// ErrEmptyChange is returned when a diff touches no files.
	ErrEmptyChange = errors.New("change touches no files")

	// ErrUnscoredChange is returned when no touched line or file has a score.
	ErrUnscoredChange = errors.New("no scores for touched lines")
)
