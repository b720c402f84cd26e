// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracletest provides a scripted, call-counting Oracle for tests.
package oracletest

import (
	"context"
	"errors"
	"sync"
)

// ErrScripted is returned by a Fake with no scripted answer left.
var ErrScripted = errors.New("oracletest: no scripted answer")

// Call records one Complete invocation.
type Call struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
}

// Fake answers from a script. Each Complete consumes the next entry of
// Answers (and Errors at the same index). When both are exhausted, Err is
// returned if set, else ErrScripted. CompleteFunc, when set, overrides the
// script.
type Fake struct {
	Answers      []string
	Errors       []error
	Err          error
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Failing returns a Fake whose every call returns err.
func Failing(err error) *Fake {
	return &Fake{Err: err}
}

// Answering returns a Fake that answers with the given strings in order.
func Answering(answers ...string) *Fake {
	return &Fake{Answers: answers}
}

// Complete implements oracle.Oracle.
func (f *Fake) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Temperature: temperature})
	f.mu.Unlock()

	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, systemPrompt, userPrompt, temperature)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if idx < len(f.Errors) && f.Errors[idx] != nil {
		return "", f.Errors[idx]
	}
	if idx < len(f.Answers) {
		return f.Answers[idx], nil
	}
	if f.Err != nil {
		return "", f.Err
	}
	return "", ErrScripted
}

// CallCount returns the number of Complete calls so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}
