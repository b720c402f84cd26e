// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/projectassist/services/assistant/oracle"
)

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.Jira.BaseURL = "https://acme.atlassian.net"
	cfg.Jira.ProjectKey = "PROJ"
	cfg.Oracle = oracle.ProviderConfig{Provider: oracle.ProviderNone}
	return cfg
}

func TestBuild_IssueTrackerOnly(t *testing.T) {
	rt, err := Build(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "PROJ", rt.Assistant.ProjectKey())
	assert.Nil(t, rt.Loader)
	assert.Nil(t, rt.Assistant.DocsIndex())
	assert.Equal(t, 0, rt.Preload(context.Background(), []string{"1"}, nil))
}

func TestBuild_WithCodeHostAndDocs(t *testing.T) {
	cfg := baseConfig()
	cfg.Bitbucket.Workspace = "acme"
	cfg.Bitbucket.DefaultRepo = "core"
	cfg.Confluence.BaseURL = "https://acme.atlassian.net/wiki"

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Loader)
	require.NotNil(t, rt.Cache)
	assert.NotNil(t, rt.Assistant.DocsIndex())

	entries, err := rt.Cache.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, rt.Handlers())
}

func TestBuild_MissingRulesFile(t *testing.T) {
	cfg := baseConfig()
	cfg.RulesPath = t.TempDir() + "/absent.yaml"

	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestBuild_WatchRules(t *testing.T) {
	cfg := baseConfig()
	cfg.RulesPath = "intent/intent_rules.yaml"
	cfg.WatchRules = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, rt.Close())
}
