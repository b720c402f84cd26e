// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed intent_rules.yaml
var defaultRulesYAML []byte

// MaxRulesFileSize bounds the rules YAML accepted by LoadRules.
const MaxRulesFileSize = 1 << 20

// =============================================================================
// YAML schema
// =============================================================================

type rulesFile struct {
	Version         int            `yaml:"version"`
	DirectGates     []gateSpec     `yaml:"direct_gates"`
	Categories      []categorySpec `yaml:"categories"`
	KeywordFallback []keywordSpec  `yaml:"keyword_fallback"`
}

type gateSpec struct {
	Intent   string   `yaml:"intent"`
	Patterns []string `yaml:"patterns"`
}

type categorySpec struct {
	Intent      string   `yaml:"intent"`
	Description string   `yaml:"description"`
	High        []string `yaml:"high"`
	Medium      []string `yaml:"medium"`
}

type keywordSpec struct {
	Intent  string `yaml:"intent"`
	Pattern string `yaml:"pattern"`
}

// =============================================================================
// Compiled rules
// =============================================================================

// Gate is a direct high-precision rule: any match returns Intent immediately.
type Gate struct {
	Intent   Intent
	Patterns []*regexp.Regexp
}

// Category is one row of the ordered decision table.
type Category struct {
	Intent      Intent
	Description string
	High        []*regexp.Regexp
	Medium      []*regexp.Regexp
}

// Keyword is one step of the last-resort keyword cascade.
type Keyword struct {
	Intent  Intent
	Pattern *regexp.Regexp
}

// Rules is the compiled, ordered decision table. Slice order is the
// tie-break order and must not be re-sorted.
//
// Thread Safety: Rules is immutable after LoadRules returns.
type Rules struct {
	Gates      []Gate
	Categories []Category
	Keywords   []Keyword
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// LoadRules parses, validates and compiles classifier rules.
//
// Description:
//
//	Every intent must be in Vocabulary, every category needs at least one
//	high and one medium pattern, categories must be unique, and every
//	pattern must compile.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*Rules - The compiled rules.
//	error - Non-nil if parsing, validation or compilation fails.
func LoadRules(ctx context.Context, data []byte) (*Rules, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "intent.LoadRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRules: empty YAML data")
	}
	if len(data) > MaxRulesFileSize {
		return nil, fmt.Errorf("LoadRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxRulesFileSize)
	}

	var raw rulesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("LoadRules: parsing YAML: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("LoadRules: no categories defined")
	}

	rules := &Rules{}

	for i, g := range raw.DirectGates {
		in, err := knownIntent(g.Intent)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: direct_gates[%d]: %w", i, err)
		}
		if len(g.Patterns) == 0 {
			return nil, fmt.Errorf("LoadRules: direct_gates[%d] (%s): patterns must not be empty", i, in)
		}
		compiled, err := compileAll(g.Patterns)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: direct_gates[%d] (%s): %w", i, in, err)
		}
		rules.Gates = append(rules.Gates, Gate{Intent: in, Patterns: compiled})
	}

	seen := make(map[Intent]bool, len(raw.Categories))
	for i, c := range raw.Categories {
		in, err := knownIntent(c.Intent)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: categories[%d]: %w", i, err)
		}
		if seen[in] {
			return nil, fmt.Errorf("LoadRules: categories[%d]: duplicate category %s", i, in)
		}
		seen[in] = true
		if len(c.High) == 0 || len(c.Medium) == 0 {
			return nil, fmt.Errorf("LoadRules: categories[%d] (%s): high and medium patterns must not be empty", i, in)
		}
		high, err := compileAll(c.High)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: categories[%d] (%s) high: %w", i, in, err)
		}
		medium, err := compileAll(c.Medium)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: categories[%d] (%s) medium: %w", i, in, err)
		}
		desc := c.Description
		if desc == "" {
			desc = in.Description()
		}
		rules.Categories = append(rules.Categories, Category{Intent: in, Description: desc, High: high, Medium: medium})
	}

	for i, k := range raw.KeywordFallback {
		in, err := knownIntent(k.Intent)
		if err != nil {
			return nil, fmt.Errorf("LoadRules: keyword_fallback[%d]: %w", i, err)
		}
		p, err := regexp.Compile(k.Pattern)
		if err != nil || k.Pattern == "" {
			return nil, fmt.Errorf("LoadRules: keyword_fallback[%d] (%s): invalid pattern %q", i, in, k.Pattern)
		}
		rules.Keywords = append(rules.Keywords, Keyword{Intent: in, Pattern: p})
	}

	span.SetAttributes(
		attribute.Int("gates", len(rules.Gates)),
		attribute.Int("categories", len(rules.Categories)),
		attribute.Int("keywords", len(rules.Keywords)),
	)
	slog.Debug("intent rules loaded",
		slog.Int("gates", len(rules.Gates)),
		slog.Int("categories", len(rules.Categories)),
		slog.Int("keywords", len(rules.Keywords)),
	)
	return rules, nil
}

// LoadRulesFile reads and compiles a rules file from disk.
func LoadRulesFile(ctx context.Context, path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRulesFile: %w", err)
	}
	return LoadRules(ctx, data)
}

func knownIntent(name string) (Intent, error) {
	in := Intent(name)
	if !in.Known() {
		return "", fmt.Errorf("unknown intent %q", name)
	}
	return in, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// =============================================================================
// Default rules singleton
// =============================================================================

var (
	defaultRulesMu   sync.RWMutex
	defaultRulesOnce sync.Once
	defaultRules     *Rules
	defaultRulesErr  error
)

// DefaultRules returns the compiled embedded rules, loading them once.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func DefaultRules(ctx context.Context) (*Rules, error) {
	defaultRulesMu.RLock()
	if defaultRules != nil || defaultRulesErr != nil {
		r, err := defaultRules, defaultRulesErr
		defaultRulesMu.RUnlock()
		return r, err
	}
	defaultRulesMu.RUnlock()

	defaultRulesMu.Lock()
	defer defaultRulesMu.Unlock()
	defaultRulesOnce.Do(func() {
		defaultRules, defaultRulesErr = LoadRules(ctx, defaultRulesYAML)
	})
	return defaultRules, defaultRulesErr
}

// ResetDefaultRules clears the cached default rules for tests.
func ResetDefaultRules() {
	defaultRulesMu.Lock()
	defer defaultRulesMu.Unlock()
	defaultRules = nil
	defaultRulesErr = nil
	defaultRulesOnce = sync.Once{}
}
