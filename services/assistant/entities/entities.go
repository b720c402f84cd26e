// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entities pulls structured values out of free-text utterances.
//
// All extractors are pure functions over compiled pattern tables and are
// safe for concurrent use.
package entities

import (
	"regexp"
	"strings"
)

// Timeframe is a closed set of relative time ranges.
type Timeframe string

const (
	ThisWeek  Timeframe = "thisWeek"
	NextWeek  Timeframe = "nextWeek"
	ThisMonth Timeframe = "thisMonth"
	NextMonth Timeframe = "nextMonth"
	Overdue   Timeframe = "overdue"
	NoDate    Timeframe = "noDate"
	Upcoming  Timeframe = "upcoming"
	Recent    Timeframe = "recent"
	NoTime    Timeframe = "none"
)

// CurrentUser is returned as the assignee for first-person references.
const CurrentUser = "currentUser()"

// Entities is the set of values found in one utterance. Empty strings mean
// the value was not present.
type Entities struct {
	Assignee  string    `json:"assignee,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Status    string    `json:"status,omitempty"`
	IssueType string    `json:"issue_type,omitempty"`
	Timeframe Timeframe `json:"timeframe"`
	IssueKeys []string  `json:"issue_keys,omitempty"`
}

// =============================================================================
// Pattern tables
// =============================================================================

// IssueKeyPattern matches upper-case issue keys such as PROJ-42. Lower-case
// tokens like top-5 or utf-8 are not keys.
var IssueKeyPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// keyCandidate matches anything shaped like an issue key in either case.
var keyCandidate = regexp.MustCompile(`(?i)\b([a-z][a-z0-9]+)-\d+\b`)

var assigneePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bassigned\s+to\s+([a-z][a-z'.-]*(?:\s+[a-z][a-z'.-]*)?)`),
	regexp.MustCompile(`(?i)\b(?:tasks|issues|tickets|work|bugs|stories)\s+(?:for|owned\s+by|of)\s+([a-z][a-z'.-]*(?:\s+[a-z][a-z'.-]*)?)`),
	regexp.MustCompile(`(?i)\bwhat\s+(?:is|'s)\s+([a-z][a-z'.-]*(?:\s+[a-z][a-z'.-]*)?)\s+working\s+on\b`),
	regexp.MustCompile(`(?i)\b([a-z][a-z.-]*)'s\s+(?:tasks|issues|tickets|work|bugs|stories|workload)\b`),
	regexp.MustCompile(`(?i)\bassignee\s*(?:is|=|:)?\s+([a-z][a-z'.-]*(?:\s+[a-z][a-z'.-]*)?)`),
}

// assigneeStop ends a captured name; these words never belong to a name.
var assigneeStop = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true, "in": true,
	"on": true, "with": true, "and": true, "or": true, "due": true, "by": true,
	"for": true, "from": true, "type": true, "which": true, "who": true,
	"status": true, "priority": true, "today": true, "now": true, "currently": true,
	"right": true, "are": true, "is": true, "that's": true, "next": true, "last": true,
	"high": true, "low": true, "open": true, "closed": true, "done": true,
	"sprint": true, "project": true, "team": true, "everyone": true, "anyone": true,
	"someone": true, "nobody": true, "all": true, "each": true, "every": true,
}

var firstPersonPattern = regexp.MustCompile(`(?i)\b(my\s+(tasks|issues|tickets|work|bugs)|assigned\s+to\s+me)\b`)

var firstPerson = map[string]bool{"me": true, "myself": true, "i": true, "my": true}

var priorityPatterns = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{regexp.MustCompile(`(?i)\b(highest|critical|blocker)\s+priority\b|\bpriority\s+(?:is\s+|of\s+)?(?:highest|critical)\b|\bcritical\b`), "Highest"},
	{regexp.MustCompile(`(?i)\blowest\s+priority\b|\bpriority\s+(?:is\s+|of\s+)?lowest\b`), "Lowest"},
	{regexp.MustCompile(`(?i)\b(high|urgent)[\s-]+priority\b|\bpriority\s+(?:is\s+|of\s+)?high\b|\burgent\b`), "High"},
	{regexp.MustCompile(`(?i)\b(medium|normal)[\s-]+priority\b|\bpriority\s+(?:is\s+|of\s+)?medium\b`), "Medium"},
	{regexp.MustCompile(`(?i)\blow[\s-]+priority\b|\bpriority\s+(?:is\s+|of\s+)?low\b`), "Low"},
}

var statusPatterns = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{regexp.MustCompile(`(?i)\bin[\s-]+progress\b|\bongoing\b|\bbeing\s+worked\s+on\b`), "In Progress"},
	{regexp.MustCompile(`(?i)\bin[\s-]+review\b|\bunder\s+review\b`), "In Review"},
	{regexp.MustCompile(`(?i)\bto[\s-]?do\b`), "To Do"},
	{regexp.MustCompile(`(?i)\bblocked\b`), "Blocked"},
	{regexp.MustCompile(`(?i)\b(done|completed|finished)\b`), "Done"},
	{regexp.MustCompile(`(?i)\bclosed\b`), "Closed"},
	{regexp.MustCompile(`(?i)\bresolved\b`), "Resolved"},
	{regexp.MustCompile(`(?i)\bopen\b`), "Open"},
}

var issueTypePatterns = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{regexp.MustCompile(`(?i)\bbugs?\b|\bdefects?\b`), "Bug"},
	{regexp.MustCompile(`(?i)\b(user\s+)?stor(y|ies)\b`), "Story"},
	{regexp.MustCompile(`(?i)\bepics?\b`), "Epic"},
	// "task" alone is generic; only an explicit type reference counts.
	{regexp.MustCompile(`(?i)\b(type\s+task|task\s+type|tasks?\s+(?:issues|only)|issue\s+type\s+(?:is\s+)?task)\b`), "Task"},
}

var timeframePatterns = []struct {
	pattern *regexp.Regexp
	value   Timeframe
}{
	{regexp.MustCompile(`(?i)\b(overdue|past\s+due|late|missed\s+(?:the\s+)?deadlines?|behind\s+schedule)\b`), Overdue},
	{regexp.MustCompile(`(?i)\b(no|without|missing)\s+(?:a\s+)?due\s+dates?\b|\bundated\b`), NoDate},
	{regexp.MustCompile(`(?i)\bnext\s+week\b`), NextWeek},
	{regexp.MustCompile(`(?i)\bthis\s+week\b|\bby\s+(?:the\s+)?end\s+of\s+(?:the\s+)?week\b|\bthis\s+weekend\b`), ThisWeek},
	{regexp.MustCompile(`(?i)\bnext\s+month\b`), NextMonth},
	{regexp.MustCompile(`(?i)\bthis\s+month\b|\bby\s+(?:the\s+)?end\s+of\s+(?:the\s+)?month\b`), ThisMonth},
	{regexp.MustCompile(`(?i)\b(upcoming|coming\s+up|due\s+soon|deadlines?|due\s+dates?|what'?s\s+due|timeline|schedule)\b`), Upcoming},
	{regexp.MustCompile(`(?i)\b(recent(ly)?|lately|last\s+(?:few\s+)?(?:days|week)|yesterday|today)\b`), Recent},
}

// =============================================================================
// Extraction
// =============================================================================

// Extract runs every extractor over the utterance.
func Extract(utterance string) Entities {
	return Entities{
		Assignee:  Assignee(utterance),
		Priority:  Priority(utterance),
		Status:    Status(utterance),
		IssueType: IssueType(utterance),
		Timeframe: TimeframeOf(utterance),
		IssueKeys: IssueKeys(utterance),
	}
}

// IssueKeys returns every distinct upper-case issue key in order of
// appearance.
func IssueKeys(utterance string) []string {
	return KeyMatcher{}.Keys(utterance)
}

// FirstIssueKey returns the first upper-case issue key or "".
func FirstIssueKey(utterance string) string {
	return KeyMatcher{}.First(utterance)
}

// IsIssueKey reports whether s is exactly one upper-case issue key.
func IsIssueKey(s string) bool {
	s = strings.TrimSpace(s)
	loc := IssueKeyPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// KeyMatcher finds issue keys for one project. Upper-case keys always
// match; a key in any other case matches only when its prefix is the
// project key, so "proj-12" is PROJ-12 while "top-5" is not a key.
//
// The zero value matches upper-case keys only.
type KeyMatcher struct {
	project string
}

// NewKeyMatcher creates a matcher for projectKey.
func NewKeyMatcher(projectKey string) KeyMatcher {
	return KeyMatcher{project: strings.ToUpper(strings.TrimSpace(projectKey))}
}

// locations returns the byte ranges of every key in s.
func (m KeyMatcher) locations(s string) [][]int {
	var out [][]int
	for _, loc := range keyCandidate.FindAllStringSubmatchIndex(s, -1) {
		prefix := s[loc[2]:loc[3]]
		if upperKeyPrefix(prefix) || (m.project != "" && strings.EqualFold(prefix, m.project)) {
			out = append(out, loc[:2])
		}
	}
	return out
}

func upperKeyPrefix(p string) bool {
	for i, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return p != ""
}

// Keys returns every distinct key in order of appearance, upper-cased.
func (m KeyMatcher) Keys(utterance string) []string {
	locs := m.locations(utterance)
	if len(locs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(locs))
	keys := make([]string, 0, len(locs))
	for _, loc := range locs {
		k := strings.ToUpper(utterance[loc[0]:loc[1]])
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// First returns the first key, upper-cased, or "".
func (m KeyMatcher) First(utterance string) string {
	locs := m.locations(utterance)
	if len(locs) == 0 {
		return ""
	}
	return strings.ToUpper(utterance[locs[0][0]:locs[0][1]])
}

// Canonicalize upper-cases every key in utterance and leaves the rest
// untouched.
func (m KeyMatcher) Canonicalize(utterance string) string {
	locs := m.locations(utterance)
	if len(locs) == 0 {
		return utterance
	}
	var b strings.Builder
	b.Grow(len(utterance))
	last := 0
	for _, loc := range locs {
		b.WriteString(utterance[last:loc[0]])
		b.WriteString(strings.ToUpper(utterance[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(utterance[last:])
	return b.String()
}

// FoldCase lower-cases s except for upper-case issue keys, which keep
// their case so patterns can tell PROJ-12 from top-5.
func FoldCase(s string) string {
	locs := IssueKeyPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range locs {
		b.WriteString(strings.ToLower(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ToLower(s[last:]))
	return b.String()
}

// Assignee returns a Title Case person name, CurrentUser for first-person
// references, or "".
//
// Description:
//
//	Tries each assignee phrasing in order. The captured words are cut at the
//	first stop word so "assigned to alice in the sprint" yields "Alice".
func Assignee(utterance string) string {
	if firstPersonPattern.MatchString(utterance) {
		return CurrentUser
	}
	for _, p := range assigneePatterns {
		m := p.FindStringSubmatch(utterance)
		if m == nil {
			continue
		}
		name := trimName(m[1])
		if name == "" {
			continue
		}
		if firstPerson[strings.ToLower(name)] {
			return CurrentUser
		}
		return titleCase(name)
	}
	return ""
}

func trimName(raw string) string {
	var kept []string
	for _, w := range strings.Fields(raw) {
		lw := strings.ToLower(strings.Trim(w, "'."))
		if assigneeStop[lw] {
			break
		}
		kept = append(kept, strings.Trim(w, "'."))
	}
	return strings.Join(kept, " ")
}

// Priority returns a normalized priority from Highest/High/Medium/Low/Lowest.
func Priority(utterance string) string {
	for _, p := range priorityPatterns {
		if p.pattern.MatchString(utterance) {
			return p.value
		}
	}
	return ""
}

// Status returns a normalized workflow status.
func Status(utterance string) string {
	for _, p := range statusPatterns {
		if p.pattern.MatchString(utterance) {
			return p.value
		}
	}
	return ""
}

// IssueType returns Bug, Story, Task or Epic.
func IssueType(utterance string) string {
	for _, p := range issueTypePatterns {
		if p.pattern.MatchString(utterance) {
			return p.value
		}
	}
	return ""
}

// TimeframeOf returns the first matching timeframe tag, or NoTime.
func TimeframeOf(utterance string) Timeframe {
	for _, p := range timeframePatterns {
		if p.pattern.MatchString(utterance) {
			return p.value
		}
	}
	return NoTime
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
