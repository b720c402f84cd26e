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
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"missing param", fmt.Errorf("wrapped: %w", needParam("which repo?")), KindMissingParam},
		{"not indexed", errNotIndexed, KindNotIndexed},
		{"not found", fmt.Errorf("get: %w", atlassian.ErrNotFound), KindNotFound},
		{"cache miss", docs.ErrCacheMiss, KindNotFound},
		{"unauthorized", &atlassian.StatusError{Service: "jira", StatusCode: 401}, KindUnauthorized},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), KindTimeout},
		{"bad query", &atlassian.StatusError{Service: "jira", StatusCode: 400}, KindBadQuery},
		{"rate limited", &atlassian.StatusError{Service: "jira", StatusCode: 429}, KindUnavailable},
		{"server error", &atlassian.StatusError{Service: "bitbucket", StatusCode: 502}, KindUnavailable},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, KindTimeout},
		{"net failure", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindUnavailable},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestUserMessageFor(t *testing.T) {
	assert.Equal(t, "which repo?", userMessageFor(needParam("which repo?")))
	assert.Equal(t, UserMessage(KindInternal), userMessageFor(errors.New("raw detail")))
	assert.Equal(t, "I couldn't process that, try rephrasing.", UserMessage(ErrorKind("nonsense")))
}
