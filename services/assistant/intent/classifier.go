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
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "projectassist.intent"

// DefaultOracleTimeout bounds each oracle call made by the classifier.
const DefaultOracleTimeout = 10 * time.Second

var classificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "projectassist",
		Subsystem: "intent",
		Name:      "classifications_total",
		Help:      "Intent classifications by tier and intent.",
	},
	[]string{"tier", "intent"},
)

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	answerToken = regexp.MustCompile(`[A-Z][A-Z_]+`)
)

// Classifier maps utterances to issue-tracker intents.
//
// Description:
//
//	The decision table comes from Rules. The oracle is consulted only for
//	medium-tier ties and when no pattern matches; every oracle failure
//	degrades to a deterministic answer. Classify never fails.
//
// Thread Safety: Classifier is safe for concurrent use.
type Classifier struct {
	rules   atomic.Pointer[Rules]
	oracle  oracle.Oracle
	timeout time.Duration
	keys    entities.KeyMatcher
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithOracleTimeout sets the per-call oracle timeout.
func WithOracleTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithProjectKey lets lower-case keys of the project ("proj-12") count as
// issue keys. Without it only upper-case keys do.
func WithProjectKey(key string) Option {
	return func(c *Classifier) { c.keys = entities.NewKeyMatcher(key) }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a Classifier.
//
// Inputs:
//   - rules: Compiled rules. Must not be nil; see DefaultRules.
//   - o: Completion oracle. Nil means oracle.Disabled.
func NewClassifier(rules *Rules, o oracle.Oracle, opts ...Option) (*Classifier, error) {
	if rules == nil {
		return nil, fmt.Errorf("NewClassifier: rules must not be nil")
	}
	if o == nil {
		o = oracle.Disabled{}
	}
	c := &Classifier{oracle: o, timeout: DefaultOracleTimeout, logger: slog.Default()}
	c.rules.Store(rules)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Rules returns the rules currently in use.
func (c *Classifier) Rules() *Rules { return c.rules.Load() }

// SetRules swaps the decision table. Classifications already in flight
// finish with the rules they started with.
func (c *Classifier) SetRules(rules *Rules) error {
	if rules == nil {
		return fmt.Errorf("SetRules: rules must not be nil")
	}
	c.rules.Store(rules)
	return nil
}

// Normalize trims, lowercases and collapses whitespace. Upper-case issue
// keys keep their case, which is how rule patterns recognize them.
func Normalize(utterance string) string {
	return spaceRun.ReplaceAllString(entities.FoldCase(strings.TrimSpace(utterance)), " ")
}

// Classify returns exactly one intent for utterance.
//
// Description:
//
//	Tiers, in strict order, stopping at the first that yields one intent:
//	  1. direct gates
//	  2. high-confidence patterns, first category in rule order wins
//	  3. medium-confidence patterns; all matching categories are collected,
//	     a single candidate wins, several are resolved by the oracle
//	     restricted to the candidates, else the first candidate
//	  4. full oracle classification over the whole vocabulary
//	  5. keyword cascade, then GENERAL
//	A continuation ("what about ...", "and ...") that would land on
//	GENERAL inherits the session's last tracker intent.
//
// Inputs:
//   - ctx: Context for oracle calls and tracing.
//   - utterance: Raw user text.
//   - dc: Session context for the oracle prompts. May be nil.
//
// Thread Safety: This method is safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, utterance string, dc *session.DerivedContext) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "intent.Classifier.Classify",
		trace.WithAttributes(attribute.Int("utterance_len", len(utterance))),
	)
	defer span.End()

	res := c.classify(ctx, Normalize(c.keys.Canonicalize(utterance)), dc)

	span.SetAttributes(
		attribute.String("intent", string(res.Intent)),
		attribute.String("tier", string(res.Tier)),
		attribute.Bool("used_oracle", res.UsedOracle),
		attribute.Int("candidates", len(res.Candidates)),
	)
	classificationsTotal.WithLabelValues(string(res.Tier), string(res.Intent)).Inc()
	c.logger.Debug("intent classified",
		slog.String("intent", string(res.Intent)),
		slog.String("tier", string(res.Tier)),
		slog.Bool("used_oracle", res.UsedOracle),
	)
	return res
}

func (c *Classifier) classify(ctx context.Context, norm string, dc *session.DerivedContext) Result {
	if norm == "" {
		return Result{Intent: General, Tier: TierDefault}
	}
	rules := c.rules.Load()

	if in, ok := rules.matchGate(norm); ok {
		return Result{Intent: in, Tier: TierGate}
	}
	if in, ok := rules.matchHigh(norm); ok {
		return Result{Intent: in, Tier: TierHigh}
	}

	candidates := rules.matchMedium(norm)
	switch len(candidates) {
	case 0:
	case 1:
		return Result{Intent: candidates[0], Tier: TierMedium}
	default:
		in, used := c.tieBreak(ctx, norm, candidates, dc)
		return Result{Intent: in, Tier: TierMedium, Candidates: candidates, UsedOracle: used}
	}

	in, err := c.classifyWithOracle(ctx, norm, dc)
	if err == nil {
		return Result{Intent: in, Tier: TierAI, UsedOracle: true}
	}
	c.logger.Debug("full oracle classification failed; using keyword cascade",
		slog.String("error", err.Error()))

	if in, ok := rules.matchKeyword(norm); ok {
		return Result{Intent: in, Tier: TierKeyword}
	}
	if in, ok := inheritedIntent(norm, dc); ok {
		return Result{Intent: in, Tier: TierFollowUp}
	}
	return Result{Intent: General, Tier: TierDefault}
}

func (r *Rules) matchGate(norm string) (Intent, bool) {
	for _, g := range r.Gates {
		if matchAny(g.Patterns, norm) {
			return g.Intent, true
		}
	}
	return "", false
}

func (r *Rules) matchHigh(norm string) (Intent, bool) {
	for _, cat := range r.Categories {
		if matchAny(cat.High, norm) {
			return cat.Intent, true
		}
	}
	return "", false
}

func (r *Rules) matchMedium(norm string) []Intent {
	var out []Intent
	for _, cat := range r.Categories {
		if matchAny(cat.Medium, norm) {
			out = append(out, cat.Intent)
		}
	}
	return out
}

func (r *Rules) matchKeyword(norm string) (Intent, bool) {
	for _, k := range r.Keywords {
		if k.Pattern.MatchString(norm) {
			return k.Intent, true
		}
	}
	return "", false
}

// tieBreak asks the oracle to pick among candidates. Any error or an
// answer outside the candidate set yields the first candidate.
func (c *Classifier) tieBreak(ctx context.Context, norm string, candidates []Intent, dc *session.DerivedContext) (Intent, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.oracle.Complete(ctx, c.tieBreakPrompt(candidates), userPrompt(norm, dc), 0)
	if err != nil {
		c.logger.Debug("tie-break oracle failed; using first candidate",
			slog.String("error", err.Error()),
			slog.String("fallback", string(candidates[0])))
		return candidates[0], false
	}
	picked := parseAnswer(answer)
	for _, cand := range candidates {
		if picked == cand {
			return cand, true
		}
	}
	c.logger.Debug("tie-break answer outside candidate set; using first candidate",
		slog.String("answer", string(picked)),
		slog.String("fallback", string(candidates[0])))
	return candidates[0], false
}

// classifyWithOracle asks for any intent in the vocabulary. The answer is
// normalized but not validated against the vocabulary.
func (c *Classifier) classifyWithOracle(ctx context.Context, norm string, dc *session.DerivedContext) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.oracle.Complete(ctx, fullPrompt(), userPrompt(norm, dc), 0)
	if err != nil {
		return "", err
	}
	in := parseAnswer(answer)
	if in == "" {
		return "", oracle.ErrEmptyAnswer
	}
	return in, nil
}

// parseAnswer upper-cases the oracle answer. A known intent named anywhere
// in a longer answer wins; otherwise the words are joined with underscores.
func parseAnswer(answer string) Intent {
	s := strings.ToUpper(oracle.StripCodeFences(answer))
	s = strings.Trim(s, " \t\n.:;!\"'`*")
	for _, tok := range answerToken.FindAllString(s, -1) {
		if in := Intent(tok); in.Known() {
			return in
		}
	}
	return Intent(strings.Join(strings.Fields(s), "_"))
}

// inheritedIntent returns the last issue-tracker intent when norm is a
// continuation of the previous question.
func inheritedIntent(norm string, dc *session.DerivedContext) (Intent, bool) {
	if dc == nil || !session.IsFollowUp(norm) {
		return "", false
	}
	for i := len(dc.RecentIntents) - 1; i >= 0; i-- {
		in := Intent(dc.RecentIntents[i])
		if in.Known() && in != General && in != Conversation && in != Greeting {
			return in, true
		}
	}
	return "", false
}
