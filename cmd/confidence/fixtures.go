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
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/developer"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
)

// Fixtures is recorded evidence and developer signals, used in place of
// live checkers, test runners and models.
//
//	sources:
//	  - name: tsc
//	    criterion: type_safety
//	    proven: true
//	    values: {"pkg/a.go": 1, "pkg/a.go:12": 0}
//	  - name: go-test
//	    criterion: behavior
//	    proven: true
//	    values: {"pkg/a.go": 0.95}
//	    kill_rates: {"pkg/a.go": 0.8}
//	  - name: codebert
//	    criterion: behavior
//	    ml_derived: true
//	    weight: 2
//	    values: {"pkg/a.go": 0.7}
//	developers:
//	  - developer: ana
//	    module: pkg
//	    signals: {commit_history: 0.9, review_acceptance: 0.8, recency: 1}
type Fixtures struct {
	Sources    []SourceFixture    `yaml:"sources" validate:"dive"`
	Developers []DeveloperFixture `yaml:"developers" validate:"dive"`
}

// SourceFixture is one recorded evidence source.
type SourceFixture struct {
	evidence.FixedSpec `yaml:",inline"`

	Criterion   string  `yaml:"criterion" validate:"required"`
	Weight      float64 `yaml:"weight" validate:"gte=0"`
	Reliability float64 `yaml:"reliability" validate:"gte=0,lt=1"`
}

// DeveloperFixture is one developer's signals for a module.
type DeveloperFixture struct {
	Developer string            `yaml:"developer" validate:"required"`
	Module    string            `yaml:"module" validate:"required"`
	Signals   developer.Signals `yaml:"signals"`
}

var fixturesValidate = validator.New()

// LoadFixtures reads and validates a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes and validates fixtures YAML.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := fixturesValidate.Struct(&fx); err != nil {
		return nil, fmt.Errorf("invalid fixtures: %w", err)
	}
	return &fx, nil
}

// Registrations converts every source fixture into an evidence
// registration.
func (fx *Fixtures) Registrations() ([]evidence.Registration, error) {
	regs := make([]evidence.Registration, 0, len(fx.Sources))
	for _, s := range fx.Sources {
		c, err := aggregate.ParseCriterion(s.Criterion)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name, err)
		}
		regs = append(regs, evidence.Registration{
			Source:      evidence.NewFixed(s.FixedSpec),
			Criterion:   c,
			Weight:      s.Weight,
			Reliability: s.Reliability,
		})
	}
	return regs, nil
}
