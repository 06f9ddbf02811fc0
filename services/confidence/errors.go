// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confidence wires evidence collection, Bayesian inference,
// CVaR aggregation, propagation, feedback and the immune layer into one
// service that scores code units and gates changes.
//
// # Scoring pipeline
//
//	sources → collector → mutation gate → Bayesian network → ML cap → CVaR
//	        → field publish → audit → propagation (file scores)
//
// Every score mutation, whether from scoring, propagation, re-verification
// or feedback, is appended to the hash-chained audit log.
package confidence

import (
	"errors"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/bayes"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/immune"
)

// Re-exported sentinels so callers can match on one package.
var (
	ErrInvalidNetwork      = bayes.ErrInvalidNetwork
	ErrUnknownNode         = bayes.ErrUnknownNode
	ErrNonConvergence      = bayes.ErrNonConvergence
	ErrEvidenceUnavailable = evidence.ErrEvidenceUnavailable
	ErrAuditChainCorrupted = immune.ErrAuditChainCorrupted
	ErrFeedbackPoisoning   = immune.ErrFeedbackPoisoning
)

var (
	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid confidence config")

	// ErrServiceClosed is returned by calls after Close.
	ErrServiceClosed = errors.New("confidence service closed")

	// ErrNoScore is returned when a unit has never been scored.
	ErrNoScore = errors.New("unit has no score")
)
