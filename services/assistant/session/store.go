// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session keeps per-session conversational memory.
//
// The Store is an explicit object injected into the handlers that use it.
// State lives in process memory only and is lost on restart.
package session

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MaxHistory bounds the query and intent ring buffers.
	MaxHistory = 10

	// DefaultID is used when a caller supplies no session key.
	DefaultID = "default"

	// DetailsIntent is the intent whose queries set the last issue key.
	DetailsIntent = "TASK_DETAILS"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "projectassist",
	Subsystem: "session",
	Name:      "active",
	Help:      "Number of sessions held in memory.",
})

// Metrics tracks response quality for one session.
type Metrics struct {
	TotalResponses    int           `json:"total_responses"`
	OracleResponses   int           `json:"oracle_responses"`
	FallbackResponses int           `json:"fallback_responses"`
	EmptyResults      int           `json:"empty_results"`
	TotalLatency      time.Duration `json:"total_latency"`
	AvgLatency        time.Duration `json:"avg_latency"`
}

// Session is the state held for one session key.
type Session struct {
	ID           string      `json:"id"`
	Queries      []string    `json:"queries"`
	Intents      []string    `json:"intents"`
	LastResponse string      `json:"last_response,omitempty"`
	LastIssueKey string      `json:"last_issue_key,omitempty"`
	Preferences  Preferences `json:"preferences"`
	Metrics      Metrics     `json:"metrics"`
}

func (s *Session) clone() Session {
	c := *s
	c.Queries = append([]string(nil), s.Queries...)
	c.Intents = append([]string(nil), s.Intents...)
	c.Preferences = s.Preferences.clone()
	return c
}

// Interaction is one completed request, as recorded after the response.
type Interaction struct {
	Query      string
	Intent     string
	Response   string
	Latency    time.Duration
	UsedOracle bool
	HadResults bool
}

// DerivedContext is the read model other components consume.
type DerivedContext struct {
	Preferences         Preferences `json:"preferences"`
	ConversationSummary string      `json:"conversation_summary"`
	Metrics             Metrics     `json:"metrics"`
	RecentQueries       []string    `json:"recent_queries"`
	RecentIntents       []string    `json:"recent_intents"`
	LastIssueKey        string      `json:"last_issue_key,omitempty"`
}

// Store is a keyed, mutex-guarded session map.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeID(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultID
	}
	return id
}

// getLocked returns the session for id, creating it lazily. Caller holds mu.
func (s *Store) getLocked(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, Preferences: newPreferences(s.now())}
		s.sessions[id] = sess
		activeSessions.Inc()
		s.logger.Debug("session created", slog.String("session_id", id))
	}
	return sess
}

// GetOrCreate returns a snapshot of the session, creating it on first use.
func (s *Store) GetOrCreate(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(normalizeID(id)).clone()
}

// RecordInteraction folds one completed request into the session.
//
// Description:
//
//	Appends the query and intent to the ring buffers (dropping the oldest
//	beyond MaxHistory), stores the response, sets the last issue key for
//	TASK_DETAILS queries that name one, updates preferences by keyword
//	sniffing and entity extraction, and updates response metrics.
//
// Inputs:
//   - id: Session key; empty means DefaultID.
//   - in: The completed interaction.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Store) RecordInteraction(id string, in Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(normalizeID(id))
	now := s.now()

	sess.Queries = pushBounded(sess.Queries, in.Query)
	sess.Intents = pushBounded(sess.Intents, in.Intent)
	sess.LastResponse = in.Response
	if in.Intent == DetailsIntent {
		if key := entities.FirstIssueKey(in.Query); key != "" {
			sess.LastIssueKey = key
		}
	}

	updatePreferences(&sess.Preferences, in.Query, now)
	updateMetrics(&sess.Metrics, in)
}

func pushBounded(buf []string, v string) []string {
	buf = append(buf, v)
	if over := len(buf) - MaxHistory; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}

func updatePreferences(p *Preferences, query string, now time.Time) {
	if v, ok := DetectVerbosity(query); ok {
		p.Verbosity = v
	}
	if order, ok := DetectSort(query); ok {
		p.PreferredSort = order
	}

	ents := entities.Extract(query)
	if ents.Assignee != "" && ents.Assignee != entities.CurrentUser {
		p.FavoriteAssignees[ents.Assignee]++
	}
	if ents.Status != "" {
		p.FavoriteStatuses[ents.Status]++
	}
	if ents.IssueType != "" {
		p.FavoriteIssueTypes[ents.IssueType]++
	}

	p.QueryCount++
	n := float64(p.QueryCount)
	p.AvgQueryLength = (p.AvgQueryLength*(n-1) + float64(utf8.RuneCountInString(query))) / n
	p.LastActive = now
	p.SessionDuration = p.LastActive.Sub(p.SessionStart)
}

func updateMetrics(m *Metrics, in Interaction) {
	m.TotalResponses++
	if in.UsedOracle {
		m.OracleResponses++
	} else {
		m.FallbackResponses++
	}
	if !in.HadResults {
		m.EmptyResults++
	}
	m.TotalLatency += in.Latency
	m.AvgLatency = m.TotalLatency / time.Duration(m.TotalResponses)
}

// DerivedContext summarizes the session for prompts and API callers.
func (s *Store) DerivedContext(id string) DerivedContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(normalizeID(id)).clone()
	return DerivedContext{
		Preferences:         sess.Preferences,
		ConversationSummary: summarize(&sess),
		Metrics:             sess.Metrics,
		RecentQueries:       sess.Queries,
		RecentIntents:       sess.Intents,
		LastIssueKey:        sess.LastIssueKey,
	}
}

// LastIssueKey is the issue most recently looked at in detail, or "".
func (s *Store) LastIssueKey(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[normalizeID(id)]; ok {
		return sess.LastIssueKey
	}
	return ""
}

func summarize(sess *Session) string {
	if len(sess.Queries) == 0 {
		return "New conversation."
	}
	var b strings.Builder
	start := len(sess.Queries) - 3
	if start < 0 {
		start = 0
	}
	b.WriteString("Recent questions:")
	for i := start; i < len(sess.Queries); i++ {
		fmt.Fprintf(&b, " %q (%s);", sess.Queries[i], sess.Intents[i])
	}
	if sess.LastIssueKey != "" {
		fmt.Fprintf(&b, " Last discussed issue: %s.", sess.LastIssueKey)
	}
	if top := topKeys(sess.Preferences.FavoriteAssignees, 2); len(top) > 0 {
		fmt.Fprintf(&b, " Often asks about: %s.", strings.Join(top, ", "))
	}
	fmt.Fprintf(&b, " Prefers %s answers.", sess.Preferences.Verbosity)
	return b.String()
}

// Reset replaces the session with a fresh record.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	if _, ok := s.sessions[id]; !ok {
		activeSessions.Inc()
	}
	s.sessions[id] = &Session{ID: id, Preferences: newPreferences(s.now())}
	s.logger.Info("session reset", slog.String("session_id", id))
}

// Len is the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// =============================================================================
// Follow-up handling
// =============================================================================

var (
	followUpPattern  = regexp.MustCompile(`(?i)^\s*(and|also|what\s+about|how\s+about|what\s+of|same\s+for|now|then)\b`)
	referencePattern = regexp.MustCompile(`(?i)\b(that\s+(?:issue|ticket|task|one|bug|story)|this\s+(?:issue|ticket|task|one|bug|story)|it)\b`)
)

// IsFollowUp reports whether an utterance continues the previous question.
func IsFollowUp(utterance string) bool {
	return followUpPattern.MatchString(utterance)
}

// ResolveReferences substitutes the last discussed issue key for a pronoun
// reference ("it", "that issue") when the utterance names no key itself.
func (s *Store) ResolveReferences(id, utterance string) string {
	if entities.FirstIssueKey(utterance) != "" {
		return utterance
	}
	s.mu.Lock()
	sess, ok := s.sessions[normalizeID(id)]
	var key string
	if ok {
		key = sess.LastIssueKey
	}
	s.mu.Unlock()
	if key == "" {
		return utterance
	}

	loc := referencePattern.FindStringIndex(utterance)
	if loc == nil {
		return utterance
	}
	return utterance[:loc[0]] + key + utterance[loc[1]:]
}
