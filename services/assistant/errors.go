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
	"net"
	"net/http"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
)

// ErrorKind classifies a failure for the user-facing message table.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindBadQuery     ErrorKind = "bad_query"
	KindUnavailable  ErrorKind = "unavailable"
	KindTimeout      ErrorKind = "timeout"
	KindMissingParam ErrorKind = "missing_parameter"
	KindNotIndexed   ErrorKind = "not_indexed"
	KindInternal     ErrorKind = "internal"
)

// userMessages never include raw error text.
var userMessages = map[ErrorKind]string{
	KindNotFound:     "I couldn't find that. Please check the key or name and try again.",
	KindUnauthorized: "I don't have permission to read that. The service credentials may need updating.",
	KindBadQuery:     "I had trouble building a search for that question. Try rephrasing it.",
	KindUnavailable:  "The service I need is not responding right now. Please try again in a moment.",
	KindTimeout:      "That took too long to answer. Please try again.",
	KindMissingParam: "I need a little more detail to answer that.",
	KindNotIndexed:   "No documentation has been loaded yet. Share a Confluence page link to index it.",
	KindInternal:     "I couldn't process that, try rephrasing.",
}

// UserMessage returns the message shown for kind.
func UserMessage(kind ErrorKind) string {
	if m, ok := userMessages[kind]; ok {
		return m
	}
	return userMessages[KindInternal]
}

// errMissingParam marks a request that needs a clarification from the user.
type errMissingParam struct {
	prompt string
}

func (e *errMissingParam) Error() string { return "missing parameter: " + e.prompt }

// needParam returns an error whose user message is prompt.
func needParam(prompt string) error {
	return &errMissingParam{prompt: prompt}
}

// errNotIndexed is returned by document questions with an empty index.
var errNotIndexed = errors.New("document index is empty")

// classify maps err onto the message table.
//
// Description:
//
//	Sentinels are checked with errors.Is and typed upstream failures with
//	errors.As. Anything unrecognized is KindInternal.
func classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var missing *errMissingParam
	if errors.As(err, &missing) {
		return KindMissingParam
	}
	switch {
	case errors.Is(err, errNotIndexed):
		return KindNotIndexed
	case errors.Is(err, atlassian.ErrNotFound), errors.Is(err, docs.ErrCacheMiss):
		return KindNotFound
	case errors.Is(err, atlassian.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var status *atlassian.StatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusBadRequest:
			return KindBadQuery
		case status.StatusCode == http.StatusTooManyRequests, status.StatusCode >= 500:
			return KindUnavailable
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	return KindInternal
}

// userMessageFor is the text shown to the user for err.
func userMessageFor(err error) string {
	var missing *errMissingParam
	if errors.As(err, &missing) {
		return missing.prompt
	}
	return UserMessage(classify(err))
}
