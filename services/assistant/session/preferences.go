// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Verbosity controls how much detail a response carries.
type Verbosity string

const (
	Concise  Verbosity = "concise"
	Medium   Verbosity = "medium"
	Detailed Verbosity = "detailed"
)

// DefaultVerbosity is the level for a fresh session.
const DefaultVerbosity = Medium

// ParseVerbosity converts a string to a Verbosity, defaulting to Medium.
func ParseVerbosity(s string) Verbosity {
	switch Verbosity(strings.ToLower(strings.TrimSpace(s))) {
	case Concise:
		return Concise
	case Detailed:
		return Detailed
	default:
		return Medium
	}
}

// Preferences are derived from the queries a session has made.
type Preferences struct {
	Verbosity          Verbosity      `json:"verbosity"`
	FavoriteAssignees  map[string]int `json:"favorite_assignees"`
	FavoriteStatuses   map[string]int `json:"favorite_statuses"`
	FavoriteIssueTypes map[string]int `json:"favorite_issue_types"`
	PreferredSort      string         `json:"preferred_sort,omitempty"`
	AvgQueryLength     float64        `json:"avg_query_length"`
	QueryCount         int            `json:"query_count"`
	LastActive         time.Time      `json:"last_active"`
	SessionStart       time.Time      `json:"session_start"`
	SessionDuration    time.Duration  `json:"session_duration"`
}

func newPreferences(now time.Time) Preferences {
	return Preferences{
		Verbosity:          DefaultVerbosity,
		FavoriteAssignees:  make(map[string]int),
		FavoriteStatuses:   make(map[string]int),
		FavoriteIssueTypes: make(map[string]int),
		LastActive:         now,
		SessionStart:       now,
	}
}

// TopAssignee is the most frequently mentioned assignee, or "".
func (p Preferences) TopAssignee() string { return argmax(p.FavoriteAssignees) }

// TopStatus is the most frequently mentioned status, or "".
func (p Preferences) TopStatus() string { return argmax(p.FavoriteStatuses) }

// TopIssueType is the most frequently mentioned issue type, or "".
func (p Preferences) TopIssueType() string { return argmax(p.FavoriteIssueTypes) }

// argmax breaks count ties by the lexically smallest key.
func argmax(m map[string]int) string {
	best, bestN := "", 0
	for k, n := range m {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func (p Preferences) clone() Preferences {
	p.FavoriteAssignees = cloneCounts(p.FavoriteAssignees)
	p.FavoriteStatuses = cloneCounts(p.FavoriteStatuses)
	p.FavoriteIssueTypes = cloneCounts(p.FavoriteIssueTypes)
	return p
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// =============================================================================
// Keyword sniffing
// =============================================================================

var (
	detailedPattern = regexp.MustCompile(`(?i)\b(detailed|in\s+detail|elaborate|full\s+details|comprehensive|everything|thorough(ly)?|explain|deep\s+dive|more\s+info(rmation)?)\b`)
	concisePattern  = regexp.MustCompile(`(?i)\b(brief(ly)?|short|quick(ly)?|concise|summar(y|ize)|tl;?dr|in\s+a\s+nutshell|just\s+the\s+(list|count|numbers))\b`)
	sortPattern     = regexp.MustCompile(`(?i)\b(?:sort(?:ed)?|order(?:ed)?)\s+by\s+(priority|due\s*dates?|deadlines?|created|creation\s+date|updated|last\s+updated|status|assignee)\b`)
)

// DetectVerbosity returns the verbosity a query asks for, if any.
func DetectVerbosity(query string) (Verbosity, bool) {
	switch {
	case detailedPattern.MatchString(query):
		return Detailed, true
	case concisePattern.MatchString(query):
		return Concise, true
	default:
		return "", false
	}
}

// DetectSort returns the JQL ORDER BY fragment a query asks for, if any.
func DetectSort(query string) (string, bool) {
	m := sortPattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	field := strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
	switch {
	case field == "priority":
		return "priority DESC", true
	case strings.HasPrefix(field, "due"), strings.HasPrefix(field, "deadline"):
		return "duedate ASC", true
	case field == "created", field == "creation date":
		return "created DESC", true
	case field == "status":
		return "status ASC", true
	case field == "assignee":
		return "assignee ASC", true
	default:
		return "updated DESC", true
	}
}

// topKeys lists map keys by descending count, then name.
func topKeys(m map[string]int, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
