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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/jql"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/querygen"
)

// offlineFlags configure the commands that need no issue tracker.
type offlineFlags struct {
	rulesPath string
	project   string
}

func (f *offlineFlags) register(cmd *cobra.Command, withProject bool) {
	cmd.Flags().StringVar(&f.rulesPath, "rules", os.Getenv("ASSIST_RULES"), "Classifier rules file (embedded rules when empty)")
	if withProject {
		cmd.Flags().StringVarP(&f.project, "project", "p", os.Getenv("JIRA_PROJECT_KEY"), "Project key")
	}
}

// offlineOracle builds the oracle from ASSIST_ORACLE_* only.
func offlineOracle(logger *slog.Logger) (oracle.Oracle, error) {
	cfg, err := oracle.LoadConfigFromEnv(oracle.ProviderConfig{})
	if err != nil {
		return nil, err
	}
	return oracle.New(cfg, logger)
}

func newClassifier(ctx context.Context, flags offlineFlags, o oracle.Oracle, logger *slog.Logger) (*intent.Classifier, error) {
	var (
		rules *intent.Rules
		err   error
	)
	if flags.rulesPath != "" {
		rules, err = intent.LoadRulesFile(ctx, flags.rulesPath)
	} else {
		rules, err = intent.DefaultRules(ctx)
	}
	if err != nil {
		return nil, err
	}
	return intent.NewClassifier(rules, o, intent.WithProjectKey(flags.project), intent.WithLogger(logger))
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var flags offlineFlags
	cmd := &cobra.Command{
		Use:   "classify <utterance...>",
		Short: "Show the intent and tier an utterance classifies to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			o, err := offlineOracle(logger)
			if err != nil {
				return err
			}
			cls, err := newClassifier(cmd.Context(), flags, o, logger)
			if err != nil {
				return err
			}
			res := cls.Classify(cmd.Context(), strings.Join(args, " "), nil)
			printClassification(cmd.OutOrStdout(), res)
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func printClassification(w io.Writer, res intent.Result) {
	fmt.Fprintf(w, "intent: %s\n", res.Intent)
	fmt.Fprintf(w, "tier:   %s\n", res.Tier)
	if len(res.Candidates) > 0 {
		names := make([]string, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			names = append(names, string(c))
		}
		fmt.Fprintf(w, "candidates: %s\n", strings.Join(names, ", "))
	}
	if res.UsedOracle {
		fmt.Fprintln(w, "oracle: yes")
	}
}

func newJQLCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   offlineFlags
		forceIn string
	)
	cmd := &cobra.Command{
		Use:   "jql <utterance...>",
		Short: "Show the query generated for an utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(flags.project) == "" {
				return fmt.Errorf("a project key is required (--project or JIRA_PROJECT_KEY)")
			}
			logger := opts.logger(cmd.ErrOrStderr())
			o, err := offlineOracle(logger)
			if err != nil {
				return err
			}
			utterance := strings.Join(args, " ")
			in := intent.Intent(strings.ToUpper(forceIn))
			if forceIn == "" {
				cls, err := newClassifier(cmd.Context(), flags, o, logger)
				if err != nil {
					return err
				}
				res := cls.Classify(cmd.Context(), utterance, nil)
				in = res.Intent
			} else if !in.Known() {
				return fmt.Errorf("unknown intent %q", forceIn)
			}
			gen, err := querygen.NewGenerator(strings.ToUpper(flags.project), o, querygen.WithLogger(logger))
			if err != nil {
				return err
			}
			res := gen.Generate(cmd.Context(), utterance, in, nil)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "intent: %s\n", in)
			fmt.Fprintf(w, "tier:   %s\n", res.Tier)
			if res.Template != "" {
				fmt.Fprintf(w, "template: %s\n", res.Template)
			}
			fmt.Fprintln(w, res.Query)
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&forceIn, "intent", "", "Skip classification and use this intent")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "sanitize <query...>",
		Short: "Canonicalize a JQL query the way oracle output is repaired",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("a project key is required (--project or JIRA_PROJECT_KEY)")
			}
			raw := strings.Join(args, " ")
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, jql.Sanitize(raw, strings.ToUpper(project)))
			if jql.ContainsBareLimit(raw) {
				fmt.Fprintln(w, "note: LIMIT removed")
			}
			if !jql.HasScope(raw) {
				fmt.Fprintln(w, "note: project scope added")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", os.Getenv("JIRA_PROJECT_KEY"), "Project key used to scope unscoped queries")
	return cmd
}
