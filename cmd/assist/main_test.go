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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/projectassist/services/assistant"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/domain"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ASSIST_ORACLE_PROVIDER", "none")
	t.Setenv("ASSIST_RULES", "")
	t.Setenv("JIRA_PROJECT_KEY", "")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSanitizeCmd_ScopesAndStripsLimit(t *testing.T) {
	out, err := runCLI(t, "sanitize", "-p", "proj", `status = "Open" LIMIT 5`)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, jql.HasScope(lines[0]))
	assert.False(t, jql.ContainsBareLimit(lines[0]))
	assert.Contains(t, lines[0], `project = "PROJ"`)
	assert.Equal(t, "note: LIMIT removed", lines[1])
	assert.Equal(t, "note: project scope added", lines[2])
}

func TestSanitizeCmd_RequiresProject(t *testing.T) {
	_, err := runCLI(t, "sanitize", "status = Open")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project key is required")
}

func TestJQLCmd_LiteralTemplate(t *testing.T) {
	out, err := runCLI(t, "jql", "-p", "PROJ", "show", "open", "tasks")
	require.NoError(t, err)

	assert.Contains(t, out, "tier:   literal")
	assert.Contains(t, out, "template: OPEN_TASKS")
	assert.Contains(t, out, jql.MustTemplate(jql.OpenTasks, "PROJ"))
}

func TestJQLCmd_UnknownIntent(t *testing.T) {
	_, err := runCLI(t, "jql", "-p", "PROJ", "--intent", "nonsense", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown intent")
}

func TestClassifyCmd_Greeting(t *testing.T) {
	out, err := runCLI(t, "classify", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "intent: GREETING")
	assert.NotContains(t, out, "oracle: yes")
}

func TestCacheDumpCmd_MissingDirectory(t *testing.T) {
	t.Setenv("CONFLUENCE_CACHE_PATH", "")
	dir := t.TempDir() + "/absent"

	out, err := runCLI(t, "cache", "dump", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No cache at "+dir)
}

func TestCacheDumpCmd_RequiresPath(t *testing.T) {
	t.Setenv("CONFLUENCE_CACHE_PATH", "")
	_, err := runCLI(t, "cache", "dump")
	require.Error(t, err)
}

func TestDumpEntries(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	entries := []docs.CacheEntry{
		{RootID: "100", Titles: []string{"A", "B", "C", "D", "E", "F", "G"}, Size: 2048, ExpiresAt: now.Add(time.Hour)},
		{RootID: "200", Size: 10, ExpiresAt: now.Add(-time.Minute)},
		{RootID: "300", Size: 3, Err: errors.New("gob: bad data")},
	}
	var b bytes.Buffer
	dumpEntries(&b, "/tmp/cache", entries, now)
	out := b.String()

	assert.Contains(t, out, "3 cached roots in /tmp/cache")
	assert.Contains(t, out, "2.0 KB (2048 bytes)")
	assert.Contains(t, out, "1h0m0s remaining")
	assert.Contains(t, out, "Pages:  7")
	assert.Contains(t, out, "...and 2 more")
	assert.Contains(t, out, "EXPIRED (1m0s ago)")
	assert.Contains(t, out, "no expiry set")
	assert.Contains(t, out, "DECODE ERROR: gob: bad data")
}

func TestDumpEntries_Empty(t *testing.T) {
	var b bytes.Buffer
	dumpEntries(&b, "/tmp/cache", nil, time.Now())
	assert.Equal(t, "No cached documentation roots in /tmp/cache.\n", b.String())
}

// ============================================================================
// REPL
// ============================================================================

type fakeAsker struct {
	store *session.Store
	asked []string
}

func (f *fakeAsker) Ask(_ context.Context, sessionID, utterance string) *assistant.Response {
	f.asked = append(f.asked, utterance)
	f.store.RecordInteraction(sessionID, session.Interaction{Query: utterance, Intent: "GENERAL"})
	return &assistant.Response{
		SessionID: sessionID,
		Answer:    "answer to " + utterance,
		Domain:    domain.IssueTracker,
		Intent:    "GENERAL",
		Results:   2,
	}
}

func (f *fakeAsker) Store() *session.Store { return f.store }

func TestRunChat(t *testing.T) {
	a := &fakeAsker{store: session.NewStore()}
	in := strings.NewReader("show bugs\n\n/session\n/reset\nwhat next\n/exit\nnever asked\n")
	var out bytes.Buffer

	err := runChat(context.Background(), a, "s1", in, &out, newStyles(false), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"show bugs", "what next"}, a.asked)
	text := out.String()
	assert.Contains(t, text, "answer to show bugs")
	assert.Contains(t, text, "session cleared")
	assert.Contains(t, text, "s1\n")
	assert.Equal(t, []string{"what next"}, a.store.GetOrCreate("s1").Queries)
}

func TestRunChat_EOF(t *testing.T) {
	a := &fakeAsker{store: session.NewStore()}
	var out bytes.Buffer
	err := runChat(context.Background(), a, "s1", strings.NewReader("hi"), &out, newStyles(false), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, a.asked)
}

func TestRunChat_CanceledContext(t *testing.T) {
	a := &fakeAsker{store: session.NewStore()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := runChat(ctx, a, "s1", strings.NewReader("show bugs\n"), &out, newStyles(false), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.asked)
}

func TestPrintResponse_Meta(t *testing.T) {
	resp := &assistant.Response{
		Answer:     "No tasks.",
		Domain:     domain.IssueTracker,
		Intent:     "TASK_LIST",
		Tier:       "high",
		Query:      `project = "PROJ"`,
		QueryTier:  "literal",
		Results:    0,
		LatencyMS:  12,
		UsedOracle: true,
	}
	var b bytes.Buffer
	printResponse(&b, newStyles(false), resp, true)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "No tasks.", lines[0])
	assert.Equal(t, `domain=issue_tracker intent=TASK_LIST tier=high query="project = \"PROJ\"" query_tier=literal results=0 latency=12ms oracle`, lines[1])
}

func TestPrintResponse_NoMeta(t *testing.T) {
	var b bytes.Buffer
	printResponse(&b, newStyles(false), &assistant.Response{Answer: "hi", Error: assistant.KindTimeout}, false)
	assert.Equal(t, "hi\n", b.String())
}
