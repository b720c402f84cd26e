// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "projectassist.oracle"

var (
	// Labels: provider, status ("success" or "error").
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "projectassist",
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Duration of oracle completion calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)

	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "projectassist",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total oracle completion calls.",
		},
		[]string{"provider", "status"},
	)

	// Labels: provider, error_type (see classifyError).
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "projectassist",
			Subsystem: "oracle",
			Name:      "errors_total",
			Help:      "Oracle errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyError maps an error to a low-cardinality label.
//
// Outputs:
//
//	string - One of "timeout", "auth", "rate_limit", "server", "unavailable",
//	         "empty", "unknown". Empty string for nil.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnavailable) {
		return "unavailable"
	}
	if errors.Is(err, ErrEmptyAnswer) {
		return "empty"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return "auth"
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case statusErr.StatusCode >= 500:
			return "server"
		}
		return "unknown"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "api key"):
		return "auth"
	default:
		return "unknown"
	}
}

func recordMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues(provider, classifyError(err)).Inc()
	}
	callDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	callsTotal.WithLabelValues(provider, status).Inc()
}
