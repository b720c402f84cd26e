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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/projectassist/services/assistant/docs"
)

const titleSample = 5

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the documentation page cache",
	}
	cacheCmd.AddCommand(newCacheDumpCmd())
	return cacheCmd
}

func newCacheDumpCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "List cached documentation roots with TTL and sample titles",
		Long:  "dump opens the BadgerDB page cache read-only. Stop a running server first; Badger holds an exclusive directory lock.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = os.Getenv("CONFLUENCE_CACHE_PATH")
			}
			if path == "" {
				return errors.New("no cache path: set --path or CONFLUENCE_CACHE_PATH (without one the server keeps its cache in memory)")
			}
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No cache at %s. Index a page with the server running first.\n", path)
				return nil
			}

			db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithReadOnly(true))
			if err != nil {
				return fmt.Errorf("open cache at %s: %w", path, err)
			}
			defer func() { _ = db.Close() }()

			cache, err := docs.NewBadgerPageCache(db, 0, nil)
			if err != nil {
				return err
			}
			entries, err := cache.Entries(cmd.Context())
			if err != nil {
				return fmt.Errorf("read cache: %w", err)
			}
			dumpEntries(cmd.OutOrStdout(), path, entries, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Cache directory (default $CONFLUENCE_CACHE_PATH)")
	return cmd
}

func dumpEntries(w io.Writer, path string, entries []docs.CacheEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No cached documentation roots in %s.\n", path)
		return
	}
	rule := strings.Repeat("─", 72)
	fmt.Fprintf(w, "%d cached root%s in %s\n%s\n", len(entries), pluralS(len(entries)), path, rule)
	for i, e := range entries {
		fmt.Fprintf(w, "[%d] Root:   %s\n", i+1, e.RootID)
		fmt.Fprintf(w, "    Size:   %s\n", formatBytes(e.Size))
		switch {
		case e.ExpiresAt.IsZero():
			fmt.Fprintln(w, "    TTL:    no expiry set")
		case e.ExpiresAt.Before(now):
			fmt.Fprintf(w, "    TTL:    EXPIRED (%s ago)\n", now.Sub(e.ExpiresAt).Round(time.Second))
		default:
			fmt.Fprintf(w, "    TTL:    %s remaining (expires %s)\n",
				e.ExpiresAt.Sub(now).Round(time.Second), e.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		}
		if e.Err != nil {
			fmt.Fprintf(w, "    DECODE ERROR: %v\n", e.Err)
			continue
		}
		sample := e.Titles
		if len(sample) > titleSample {
			sample = sample[:titleSample]
		}
		fmt.Fprintf(w, "    Pages:  %d\n", len(e.Titles))
		for _, t := range sample {
			fmt.Fprintf(w, "      - %s\n", t)
		}
		if rest := len(e.Titles) - len(sample); rest > 0 {
			fmt.Fprintf(w, "      ...and %d more\n", rest)
		}
	}
	fmt.Fprintln(w, rule)
}

func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
