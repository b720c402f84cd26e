// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
)

var (
	codeHostKeywords = regexp.MustCompile(`\b(repo|repos|repository|repositories|commit|commits|branch|branches|pull requests?|prs?|git|merge|merged|source|clone|push|pushed|main|master|develop|dev)\b`)
	codeHostGeneric  = regexp.MustCompile(`\b(code|changes|repository)\b`)

	// Status phrasings never go to the code host even when they mention
	// "main" or "source".
	projectStatusOverride = regexp.MustCompile(`^(show|give|get|what s|whats|what is|how s|hows|how is)?\s*(me\s+)?(the\s+)?(overall\s+)?(project\s+status|status of the project|project overview|overall status|project (doing|going|progress))\b|^how is the project (doing|going)`)

	repoNamePattern = regexp.MustCompile(`\b(?:in|for|of|from|on)\s+(?:the\s+)?(?:repo|repository)\s+([a-z0-9][\w.-]*)|\b([a-z0-9][\w.-]*)\s+(?:repo|repository)\b`)
	repoStopWords   = map[string]bool{
		"the": true, "a": true, "this": true, "that": true, "my": true, "our": true, "which": true,
		"what": true, "all": true, "each": true, "every": true, "git": true, "any": true, "code": true,
		"in": true, "of": true, "for": true, "from": true, "on": true, "about": true, "source": true,
		"show": true, "list": true, "info": true, "details": true,
	}
	notBranch = map[string]bool{"repo": true, "repository": true, "project": true, "codebase": true}
)

// detector is one entry in the ordered code-host battery.
type detector struct {
	name    string
	pattern *regexp.Regexp
	// branchGroup is the capture group holding a branch name, or 0.
	branchGroup int
	// commit marks patterns whose only capture groups hold a commit hash.
	commit bool
}

// codeHostDetectors are evaluated in order; the first match wins.
var codeHostDetectors = []detector{
	{
		name:    BitbucketCommitDiff,
		pattern: regexp.MustCompile(`\b(?:diff|diffstat|changes|changed|change|files)\b.*\bcommit\s+([0-9a-f]{7,40})\b|\bcommit\s+([0-9a-f]{7,40})\b.*\b(?:diff|diffstat|changes|changed|change|touch|touched|files)\b`),
		commit:  true,
	},
	{
		name:        BitbucketLatestCommit,
		pattern:     regexp.MustCompile(`\b(latest|last|most recent|newest)\s+commit\s+(?:on|in|to|of)\s+(?:the\s+)?([\w./-]+)`),
		branchGroup: 2,
	},
	{
		name:        BitbucketBranchCommits,
		pattern:     regexp.MustCompile(`\bcommits?\s+(?:on|in|to|from)\s+(?:the\s+)?([\w./-]+)\s+branch\b`),
		branchGroup: 1,
	},
	{
		name:        BitbucketBranchCommits,
		pattern:     regexp.MustCompile(`\b([\w./-]+)\s+branch\s+(?:commits?|history)\b`),
		branchGroup: 1,
	},
	{
		name:    BitbucketRepos,
		pattern: regexp.MustCompile(`\b(list|show|what|which|all|our|available)\b.*\b(repos|repositories)\b|^(repos|repositories)$`),
	},
	{
		name:    BitbucketCommits,
		pattern: regexp.MustCompile(`\bcommits?\b|\bcommit history\b|\bwhat was (pushed|merged)\b`),
	},
	{
		name:    BitbucketBranches,
		pattern: regexp.MustCompile(`\bbranches\b|\b(list|show|which|what)\b.*\bbranch\b`),
	},
	{
		name:    BitbucketPullRequests,
		pattern: regexp.MustCompile(`\bpull requests?\b|\bprs?\b|\bmerge requests?\b`),
	},
	{
		name:    BitbucketRepoInfo,
		pattern: regexp.MustCompile(`\b(repo|repository)\s+(info|information|details|description|overview)\b|\b(about|describe)\s+(the\s+)?[\w.-]+\s+(repo|repository)\b|\bwhat is the\s+[\w.-]+\s+(repo|repository)\b`),
	},
	{
		name:    BitbucketIssueChanges,
		pattern: regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b.*\b(code|changes|changed|diff|implementation)\b|\b(code|changes|changed|diff|implementation)\b.*\b[A-Z][A-Z0-9]+-\d+\b`),
	},
	{
		name:    BitbucketGeneral,
		pattern: regexp.MustCompile(`\b(repo|repos|repository|repositories|git|source code|clone)\b`),
	},
}

var (
	prStatePattern = regexp.MustCompile(`\b(open|opened|merged|declined|rejected|superseded|closed)\b`)
	prStateAliases = map[string]string{
		"open":       "OPEN",
		"opened":     "OPEN",
		"merged":     "MERGED",
		"closed":     "MERGED",
		"declined":   "DECLINED",
		"rejected":   "DECLINED",
		"superseded": "SUPERSEDED",
	}
)

// RouteCodeHost returns a code-host intent or nil.
//
// Description:
//
//	Project-status phrasings are rejected first. The utterance must carry a
//	code-host keyword or a generic code/changes/repository mention; then
//	the detector battery runs in fixed order and the first match wins,
//	even when a later detector would be more specific.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Router) RouteCodeHost(utterance string) *Intent {
	norm := normalize(utterance)
	if norm == "" {
		return nil
	}
	if projectStatusOverride.MatchString(norm) {
		return nil
	}
	if !codeHostKeywords.MatchString(norm) && !codeHostGeneric.MatchString(norm) {
		return nil
	}

	for _, d := range codeHostDetectors {
		m := d.pattern.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		in := &Intent{Domain: CodeHost, Name: d.name}
		if d.commit {
			hash := firstGroup(m)
			if !strings.ContainsAny(hash, "0123456789") {
				continue
			}
			in.Metadata.Commit = hash
		}
		in.Metadata.Repository = repositoryName(norm)
		if d.branchGroup > 0 && d.branchGroup < len(m) {
			branch := strings.Trim(m[d.branchGroup], "./-")
			if notBranch[branch] || repoStopWords[branch] {
				continue
			}
			in.Metadata.Branch = branch
		}
		if d.name == BitbucketPullRequests {
			in.Metadata.PRState = prState(norm)
		}
		in.Metadata.IssueKey = entities.FirstIssueKey(utterance)
		return in
	}
	return nil
}

// firstGroup is the first non-empty capture group of m.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// repositoryName extracts a repository name from "in repo X" or "X repo".
func repositoryName(norm string) string {
	for _, m := range repoNamePattern.FindAllStringSubmatch(norm, -1) {
		for _, g := range m[1:] {
			if g != "" && !repoStopWords[g] {
				return g
			}
		}
	}
	return ""
}

// prState maps the first state word to a code-host PR state, defaulting to OPEN.
func prState(norm string) string {
	if m := prStatePattern.FindStringSubmatch(norm); m != nil {
		return prStateAliases[m[1]]
	}
	return "OPEN"
}
