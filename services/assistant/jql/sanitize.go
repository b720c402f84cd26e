// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jql

import (
	"regexp"
	"strings"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	codeFencePattern   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	labelPattern       = regexp.MustCompile(`(?i)^\s*(jql|query)\s*:\s*`)
	queryLinePattern   = regexp.MustCompile(`(?i)[=~]|\bin\s*\(|\bis\s+(not\s+)?empty\b|\border\s+by\b`)
	singleQuoted       = regexp.MustCompile(`'([^'"]*)'`)
	orderByPattern     = regexp.MustCompile(`(?i)\border\s+by\b`)
	limitClausePattern = regexp.MustCompile(`(?i)\blimit\s*=?\s*\d+`)
	bareLimitPattern   = regexp.MustCompile(`(?i)\blimit\b`)
	scopePattern       = regexp.MustCompile(`(?i)\b(project|key|issuekey)\s*=`)
	projectOnlyPattern = regexp.MustCompile(`(?i)^\(*\s*project\s*=\s*"?([A-Za-z][A-Za-z0-9_]*)"?\s*\)*$`)
	bareProjectPattern = regexp.MustCompile(`(?i)\bproject\s*(!=|=)\s*([A-Za-z][A-Za-z0-9_]*)\b`)
	comparisonPattern  = regexp.MustCompile(`(?i)\b([A-Za-z][\w.]*|cf\[\d+\])\s*(!=|!~|=|~)\s*`)
	inListPattern      = regexp.MustCompile(`(?i)\b(not\s+in|in)\s*\(`)
	notEqualsPattern   = regexp.MustCompile(`\s*!=\s*`)
	valueTokenPattern  = regexp.MustCompile(`^[^\s()",=!<>~]+`)
	operatorAhead      = regexp.MustCompile(`(?i)^\s*(!=|!~|<=|>=|=|~|<|>|in\b|is\b|was\b|not\s+in\b)`)
	orderItemPattern   = regexp.MustCompile(`(?i)^([A-Za-z][\w.]*|cf\[\d+\])(?:\s+(asc|desc))?$`)
	spacePattern       = regexp.MustCompile(`\s+`)
	openParenSpace     = regexp.MustCompile(`\(\s+`)
	closeParenSpace    = regexp.MustCompile(`\s+\)`)
	doubleConnector    = regexp.MustCompile(`(?i)\b(and|or)(\s+(and|or)\b)+`)
	leadingConnector   = regexp.MustCompile(`(?i)^(and|or)\b\s*`)
	trailingConnector  = regexp.MustCompile(`(?i)\s*\b(and|or)$`)

	emptyRewrites = []struct {
		pattern *regexp.Regexp
		repl    string
	}{
		{regexp.MustCompile(`(?i)\s*!=\s*(empty|null)\b`), " is not EMPTY"},
		{regexp.MustCompile(`(?i)\s*=\s*(empty|null)\b`), " is EMPTY"},
		{regexp.MustCompile(`(?i)\bis\s+not\s+(empty|null)\b`), "is not EMPTY"},
		{regexp.MustCompile(`(?i)\bis\s+(empty|null)\b`), "is EMPTY"},
	}
)

// reservedWords are JQL keywords that must be quoted when used as a value.
var reservedWords = map[string]bool{
	"limit": true, "and": true, "or": true, "not": true, "empty": true,
	"null": true, "order": true, "by": true, "asc": true, "desc": true,
}

// quotedFields always get their single-word values quoted.
var quotedFields = map[string]bool{
	"status": true, "priority": true, "assignee": true, "reporter": true,
	"creator": true, "issuetype": true, "type": true, "resolution": true,
	"labels": true, "component": true, "project": true,
}

// connectors end a multi-word bare value.
var connectors = map[string]bool{"and": true, "or": true, "order": true}

// =============================================================================
// Sanitize
// =============================================================================

// Sanitize repairs common mistakes in a generated query string.
//
// Description:
//
//	Applies an ordered sequence of string-level rewrites. It is a best-effort
//	repair, not a parser: adversarial input can still yield an invalid query,
//	which surfaces later as a failed search. The rewrite order matters:
//
//	  1. Strip code fences, "JQL:" labels, trailing semicolons.
//	  2. Split off ORDER BY; drop LIMIT n clauses.
//	  3. Normalize "= empty" / "is not empty" forms.
//	  4. Replace commas outside parentheses with AND.
//	  5. Ensure a project scope clause, wrapping the rest in parentheses.
//	  6. Collapse a project-only query to canonical form.
//	  7. Quote the project key, then bare values (multi-word values,
//	     reserved words, values after common fields).
//	  8. Quote every element of IN (...) lists.
//	  9. Normalize spacing around != and whitespace in general.
//	 10. Drop stray LIMIT tokens; final scope safety net.
//
// Inputs:
//   - query: Raw query text, typically oracle output.
//   - projectKey: Project used for the scope clause.
//
// Outputs:
//   - string: The repaired query. Sanitize(Sanitize(q)) == Sanitize(q).
//
// Thread Safety: This function is safe for concurrent use.
func Sanitize(query, projectKey string) string {
	q := stripDecorations(query)
	where, order := splitOrderBy(q)

	where = mapUnquoted(where, func(seg string) string {
		return limitClausePattern.ReplaceAllString(seg, " ")
	})
	where = normalizeEmptyChecks(where)
	where = replaceTopLevelCommas(where)
	where = tidy(where)
	where = ensureProjectClause(where, projectKey)
	where = collapseProjectOnly(where)
	where = quoteProjectKey(where)
	where = quoteBareValues(where)
	where = quoteInLists(where)
	where = mapUnquoted(where, func(seg string) string {
		return notEqualsPattern.ReplaceAllString(seg, " != ")
	})
	where = mapUnquoted(where, func(seg string) string {
		return bareLimitPattern.ReplaceAllString(seg, " ")
	})
	where = tidy(where)
	where = ensureProjectClause(where, projectKey)

	if order = normalizeOrderBy(order); order != "" {
		return where + " " + order
	}
	return where
}

// ContainsBareLimit reports whether LIMIT appears outside a quoted literal.
func ContainsBareLimit(query string) bool {
	return bareLimitPattern.MatchString(maskQuoted(query))
}

// HasScope reports whether the query carries a project or key clause
// outside quoted literals.
func HasScope(query string) bool {
	return scopePattern.MatchString(maskQuoted(query))
}

func stripDecorations(q string) string {
	q = strings.TrimSpace(q)
	if m := codeFencePattern.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.ReplaceAll(q, "`", "")
	q = firstQueryLine(q)
	q = labelPattern.ReplaceAllString(q, "")
	q = strings.TrimRight(strings.TrimSpace(q), "; ")
	return mapUnquoted(q, func(seg string) string {
		return singleQuoted.ReplaceAllString(seg, `"$1"`)
	})
}

// firstQueryLine drops explanation lines around the query.
func firstQueryLine(q string) string {
	lines := strings.Split(q, "\n")
	var first string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		if queryLinePattern.MatchString(line) {
			return line
		}
	}
	return first
}

func splitOrderBy(q string) (string, string) {
	loc := orderByPattern.FindStringIndex(maskQuoted(q))
	if loc == nil {
		return q, ""
	}
	return strings.TrimSpace(q[:loc[0]]), strings.TrimSpace(q[loc[1]:])
}

func normalizeOrderBy(fields string) string {
	fields = limitClausePattern.ReplaceAllString(fields, " ")
	fields = bareLimitPattern.ReplaceAllString(fields, " ")
	var items []string
	for _, raw := range strings.Split(fields, ",") {
		item := strings.Join(strings.Fields(raw), " ")
		m := orderItemPattern.FindStringSubmatch(item)
		if m == nil {
			continue
		}
		if m[2] != "" {
			items = append(items, m[1]+" "+strings.ToUpper(m[2]))
		} else {
			items = append(items, m[1])
		}
	}
	if len(items) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(items, ", ")
}

func normalizeEmptyChecks(where string) string {
	return mapUnquoted(where, func(seg string) string {
		for _, r := range emptyRewrites {
			seg = r.pattern.ReplaceAllString(seg, r.repl)
		}
		return seg
	})
}

func replaceTopLevelCommas(s string) string {
	var b strings.Builder
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			i++
			b.WriteByte(s[i])
			continue
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			b.WriteString(" AND ")
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func ensureProjectClause(where, projectKey string) string {
	where = strings.TrimSpace(where)
	if where == "" {
		return ProjectClause(projectKey)
	}
	if HasScope(where) {
		return where
	}
	return ProjectClause(projectKey) + " AND (" + where + ")"
}

func collapseProjectOnly(where string) string {
	if m := projectOnlyPattern.FindStringSubmatch(where); m != nil {
		return ProjectClause(strings.ToUpper(m[1]))
	}
	return where
}

func quoteProjectKey(where string) string {
	return mapUnquoted(where, func(seg string) string {
		var b strings.Builder
		last := 0
		for _, m := range bareProjectPattern.FindAllStringSubmatchIndex(seg, -1) {
			if m[1] < len(seg) && seg[m[1]] == '(' {
				continue
			}
			b.WriteString(seg[last:m[0]])
			b.WriteString("project " + seg[m[2]:m[3]] + " " + Quote(strings.ToUpper(seg[m[4]:m[5]])))
			last = m[1]
		}
		b.WriteString(seg[last:])
		return b.String()
	})
}

// quoteBareValues quotes the value side of field comparisons that are not
// already quoted: multi-word values, reserved words, and any value after a
// field in quotedFields. Function calls and numbers on other fields are left.
func quoteBareValues(where string) string {
	return mapUnquoted(where, func(seg string) string {
		var b strings.Builder
		pos := 0
		for pos < len(seg) {
			m := comparisonPattern.FindStringSubmatchIndex(seg[pos:])
			if m == nil {
				break
			}
			field := strings.ToLower(seg[pos+m[2] : pos+m[3]])
			valueStart := pos + m[1]
			b.WriteString(seg[pos:valueStart])

			valueEnd, words, isCall := scanBareValue(seg, valueStart)
			if len(words) == 0 || isCall || !needsQuoting(field, words) {
				pos = valueStart
				if valueEnd > valueStart && isCall {
					b.WriteString(seg[valueStart:valueEnd])
					pos = valueEnd
				}
				continue
			}
			b.WriteString(Quote(strings.Join(words, " ")))
			pos = valueEnd
		}
		b.WriteString(seg[pos:])
		return b.String()
	})
}

// scanBareValue reads whitespace-separated tokens starting at start. It stops
// at an operator character, before a connector keyword, or before a token
// that is itself followed by an operator. isCall reports a value immediately
// followed by "(".
func scanBareValue(seg string, start int) (end int, words []string, isCall bool) {
	pos := start
	end = start
	for {
		rest := seg[pos:]
		trimmed := strings.TrimLeft(rest, " \t")
		tokStart := pos + len(rest) - len(trimmed)
		tok := valueTokenPattern.FindString(trimmed)
		if tok == "" {
			break
		}
		tokEnd := tokStart + len(tok)
		if len(words) > 0 {
			if connectors[strings.ToLower(tok)] || operatorAhead.MatchString(seg[tokEnd:]) {
				break
			}
		}
		if tokEnd < len(seg) && seg[tokEnd] == '(' {
			return tokEnd, words, true
		}
		words = append(words, tok)
		pos = tokEnd
		end = tokEnd
	}
	return end, words, false
}

func needsQuoting(field string, words []string) bool {
	if len(words) > 1 {
		return true
	}
	w := strings.ToLower(words[0])
	if reservedWords[w] {
		return true
	}
	if !quotedFields[field] {
		return false
	}
	return !isNumeric(w)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// quoteInLists rewrites every IN (...) list so each element is quoted.
func quoteInLists(where string) string {
	masked := maskQuoted(where)
	var b strings.Builder
	last := 0
	for _, m := range inListPattern.FindAllStringSubmatchIndex(masked, -1) {
		if m[0] < last {
			continue
		}
		closeIdx := matchingParen(where, m[1]-1)
		if closeIdx < 0 {
			continue
		}
		elems := splitListElements(where[m[1]:closeIdx])
		for i, e := range elems {
			if !strings.HasPrefix(e, `"`) && !strings.Contains(e, "(") {
				elems[i] = Quote(e)
			}
		}
		keyword := strings.Join(strings.Fields(where[m[2]:m[3]]), " ")
		b.WriteString(where[last:m[0]])
		b.WriteString(keyword + " (" + strings.Join(elems, ", ") + ")")
		last = closeIdx + 1
	}
	b.WriteString(where[last:])
	return b.String()
}

func matchingParen(s string, open int) int {
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitListElements(s string) []string {
	var elems []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	flush := func() {
		if e := strings.TrimSpace(cur.String()); e != "" {
			elems = append(elems, e)
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			i++
			c = s[i]
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return elems
}

func tidy(where string) string {
	where = mapUnquoted(where, func(seg string) string {
		seg = spacePattern.ReplaceAllString(seg, " ")
		seg = openParenSpace.ReplaceAllString(seg, "(")
		seg = closeParenSpace.ReplaceAllString(seg, ")")
		return doubleConnector.ReplaceAllString(seg, "$1")
	})
	where = strings.TrimSpace(where)
	where = leadingConnector.ReplaceAllString(where, "")
	return strings.TrimSpace(trailingConnector.ReplaceAllString(where, ""))
}

// =============================================================================
// Quote-aware helpers
// =============================================================================

// maskQuoted blanks the contents of double-quoted literals while keeping
// byte offsets, so pattern searches only see unquoted text.
func maskQuoted(s string) string {
	b := []byte(s)
	inQuote := false
	for i := 0; i < len(b); i++ {
		switch {
		case inQuote && b[i] == '\\' && i+1 < len(b):
			b[i], b[i+1] = 0, 0
			i++
		case b[i] == '"':
			inQuote = !inQuote
		case inQuote:
			b[i] = 0
		}
	}
	return string(b)
}

// mapUnquoted applies fn to every segment outside double-quoted literals.
// An unterminated literal runs to the end of the string.
func mapUnquoted(s string, fn func(string) string) string {
	var b strings.Builder
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case inQuote && s[i] == '\\':
			i++
		case s[i] == '"':
			if inQuote {
				b.WriteString(s[start : i+1])
				start = i + 1
			} else {
				b.WriteString(fn(s[start:i]))
				start = i
			}
			inQuote = !inQuote
		}
	}
	if start < len(s) {
		if inQuote {
			b.WriteString(s[start:])
		} else {
			b.WriteString(fn(s[start:]))
		}
	}
	return b.String()
}
