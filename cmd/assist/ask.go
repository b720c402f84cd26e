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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/projectassist/services/assistant"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// openRuntime loads configuration, wires the assistant and loads the
// configured documentation roots from cache or host.
func openRuntime(ctx context.Context, opts *rootOptions, logger *slog.Logger) (*assistant.Runtime, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := assistant.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Preload(ctx, cfg.Confluence.RootPages, logger)
	return rt, nil
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
		meta      bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			rt, err := openRuntime(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp := rt.Assistant.Ask(cmd.Context(), sessionID, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(out, stylesFor(out), resp, meta)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (default session when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	cmd.Flags().BoolVar(&meta, "meta", false, "Print routing and query details after the answer")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		meta      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Start an interactive conversation. Type /reset to clear the session, /session to print its id and /exit to quit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			rt, err := openRuntime(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			out := cmd.OutOrStdout()
			return runChat(cmd.Context(), rt.Assistant, sessionID, cmd.InOrStdin(), out, stylesFor(out), meta)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume (new session when empty)")
	cmd.Flags().BoolVar(&meta, "meta", false, "Print routing and query details after each answer")
	return cmd
}

// asker is the part of the assistant the REPL drives.
type asker interface {
	Ask(ctx context.Context, sessionID, utterance string) *assistant.Response
	Store() *session.Store
}

// runChat reads one question per line until EOF or /exit.
func runChat(ctx context.Context, a asker, sessionID string, in io.Reader, out io.Writer, st styles, meta bool) error {
	fmt.Fprintln(out, st.title.Render("Project assistant. Ask about issues, code or docs. /exit to quit."))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, st.prompt.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			a.Store().Reset(sessionID)
			fmt.Fprintln(out, st.meta.Render("session cleared"))
			continue
		case "/session":
			fmt.Fprintln(out, st.meta.Render(sessionID))
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		printResponse(out, st, a.Ask(ctx, sessionID, line), meta)
	}
}
