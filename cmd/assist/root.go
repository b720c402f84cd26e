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
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/projectassist/services/assistant"
)

// rootOptions hold the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "assist",
		Short:         "Project assistant for Jira, Bitbucket and Confluence",
		Long:          "assist answers natural-language questions about a project's issues, repositories and documentation, either as an HTTP service or from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newClassifyCmd(opts),
		newJQLCmd(opts),
		newSanitizeCmd(),
		newCacheCmd(),
	)
	return rootCmd
}

// logger builds the process logger and installs it as the slog default.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if o.jsonLogs {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

func (o *rootOptions) loadConfig() (assistant.Config, error) {
	return assistant.LoadConfig(o.configPath)
}
