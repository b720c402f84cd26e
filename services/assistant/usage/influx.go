// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage exports one time-series point per answered utterance so
// routing and latency can be charted outside the process.
package usage

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Measurement is the InfluxDB measurement name.
const Measurement = "assistant_interaction"

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	drainTimeout         = 5 * time.Second
)

var writeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "projectassist",
	Subsystem: "usage",
	Name:      "write_errors_total",
	Help:      "Failed usage point writes.",
})

// Event is one answered utterance.
type Event struct {
	Time       time.Time
	Domain     string
	Intent     string
	Tier       string
	QueryTier  string
	Outcome    string
	Results    int
	Latency    time.Duration
	UsedOracle bool
}

// Config selects the InfluxDB bucket.
type Config struct {
	URL    string
	Org    string
	Bucket string
	Token  string

	// FlushInterval bounds how long a point waits in the batch.
	FlushInterval time.Duration

	// HTTPClient replaces the client's default transport. May be nil.
	HTTPClient *http.Client
}

// InfluxSink batches events into an InfluxDB v2 bucket.
//
// Description:
//
//	Record never blocks on the network; points are written in batches by
//	the client library. Write failures are logged and counted.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPI
	logger *slog.Logger

	drained   chan struct{}
	closeOnce sync.Once
}

// NewInfluxSink creates a sink.
//
// Outputs:
//   - *InfluxSink: Close it to flush pending points.
//   - error: Non-nil if URL, Org or Bucket is empty.
func NewInfluxSink(cfg Config, logger *slog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("usage: url, org and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	opts := influxdb2.DefaultOptions().
		SetBatchSize(defaultBatchSize).
		SetFlushInterval(uint(flush.Milliseconds()))
	if cfg.HTTPClient != nil {
		opts = opts.SetHTTPClient(cfg.HTTPClient)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	s := &InfluxSink{
		client:  client,
		writer:  client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:  logger,
		drained: make(chan struct{}),
	}
	errs := s.writer.Errors()
	go func() {
		defer close(s.drained)
		for err := range errs {
			writeErrorsTotal.Inc()
			s.logger.Warn("usage write failed", slog.String("error", err.Error()))
		}
	}()
	return s, nil
}

// Record queues ev.
func (s *InfluxSink) Record(ev Event) {
	s.writer.WritePoint(Point(ev))
}

// Close flushes pending points and releases the client.
func (s *InfluxSink) Close() error {
	s.closeOnce.Do(func() {
		s.writer.Flush()
		s.client.Close()
		select {
		case <-s.drained:
		case <-time.After(drainTimeout):
		}
	})
	return nil
}

// Point converts ev to a line-protocol point. Session ids and utterances
// are not exported.
func Point(ev Event) *write.Point {
	tags := map[string]string{
		"domain":  ev.Domain,
		"intent":  ev.Intent,
		"outcome": ev.Outcome,
	}
	if ev.Tier != "" {
		tags["tier"] = ev.Tier
	}
	if ev.QueryTier != "" {
		tags["query_tier"] = ev.QueryTier
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(Measurement, tags, map[string]any{
		"latency_ms":  ev.Latency.Milliseconds(),
		"results":     int64(ev.Results),
		"used_oracle": ev.UsedOracle,
	}, ts)
}
