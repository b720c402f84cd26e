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
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/projectassist/services/assistant/clients/bitbucket"
	"github.com/AleutianAI/projectassist/services/assistant/domain"
	"github.com/AleutianAI/projectassist/services/assistant/session"
)

// Code-host fetch sizes.
const (
	defaultBranch      = "main"
	repoListLimit      = 25
	commitListLimit    = 10
	branchListLimit    = 20
	prListLimit        = 20
	issueCommitsWindow = 100
)

// CodeHost is the code-host surface the assistant needs.
// *bitbucket.Client satisfies it.
type CodeHost interface {
	Workspace() string
	ListRepos(ctx context.Context, limit int) (*bitbucket.Page[bitbucket.Repository], error)
	GetRepo(ctx context.Context, repo string) (*bitbucket.Repository, error)
	ListCommits(ctx context.Context, repo, branch string, limit int) (*bitbucket.Page[bitbucket.Commit], error)
	ListBranches(ctx context.Context, repo string, limit int) (*bitbucket.Page[bitbucket.Branch], error)
	ListPullRequests(ctx context.Context, repo, state string, limit int) (*bitbucket.Page[bitbucket.PullRequest], error)
	GetCommitDiff(ctx context.Context, repo, hash string) (*bitbucket.DiffStat, error)
}

// needsRepo lists the code-host intents that cannot be answered without a
// repository.
var needsRepo = map[string]bool{
	domain.BitbucketLatestCommit:  true,
	domain.BitbucketBranchCommits: true,
	domain.BitbucketCommits:       true,
	domain.BitbucketBranches:      true,
	domain.BitbucketPullRequests:  true,
	domain.BitbucketRepoInfo:      true,
	domain.BitbucketIssueChanges:  true,
	domain.BitbucketCommitDiff:    true,
}

// answerCodeHost answers a routed code-host intent.
//
// Description:
//
//	The repository comes from the utterance, then the configured default;
//	without either the user is asked which repository. Branch questions
//	default to main. A general mention without a repository lists the
//	workspace's repositories.
func (a *Assistant) answerCodeHost(ctx context.Context, ans *answer, in *domain.Intent, v session.Verbosity) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assistant.Assistant.answerCodeHost")
	defer span.End()

	if a.code == nil {
		return needParam("Repository questions are not enabled. Configure a Bitbucket workspace to ask about code.")
	}
	repo := in.Metadata.Repository
	if repo == "" {
		repo = a.defaultRepo
	}
	name := in.Name
	if name == domain.BitbucketGeneral {
		name = domain.BitbucketRepoInfo
		if repo == "" {
			name = domain.BitbucketRepos
		}
	}
	if needsRepo[name] && repo == "" {
		return needParam(`Which repository do you mean? For example: "latest commits in repo billing-service".`)
	}
	span.SetAttributes(attribute.String("intent", name), attribute.String("repository", repo))

	branch := in.Metadata.Branch
	ans.prose = true
	switch name {
	case domain.BitbucketRepos:
		page, err := a.code.ListRepos(ctx, repoListLimit)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.Repos(a.code.Workspace(), page.Values, v)

	case domain.BitbucketRepoInfo:
		r, err := a.code.GetRepo(ctx, repo)
		if err != nil {
			return err
		}
		ans.results = 1
		ans.markdown = a.format.Repo(r)

	case domain.BitbucketLatestCommit:
		if branch == "" {
			branch = defaultBranch
		}
		page, err := a.code.ListCommits(ctx, repo, branch, 1)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.Commits(fmt.Sprintf("Latest commit on %s in %s", branch, repo), page.Values, v)

	case domain.BitbucketBranchCommits:
		if branch == "" {
			branch = defaultBranch
		}
		page, err := a.code.ListCommits(ctx, repo, branch, commitListLimit)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.Commits(fmt.Sprintf("Commits on %s in %s", branch, repo), page.Values, v)

	case domain.BitbucketCommits:
		page, err := a.code.ListCommits(ctx, repo, branch, commitListLimit)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.Commits("Recent commits in "+repo, page.Values, v)

	case domain.BitbucketBranches:
		page, err := a.code.ListBranches(ctx, repo, branchListLimit)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.Branches(repo, page.Values, v)

	case domain.BitbucketPullRequests:
		state := in.Metadata.PRState
		if state == "" {
			state = "OPEN"
		}
		page, err := a.code.ListPullRequests(ctx, repo, state, prListLimit)
		if err != nil {
			return err
		}
		ans.results = len(page.Values)
		ans.markdown = a.format.PullRequests(repo, state, page.Values, v)

	case domain.BitbucketIssueChanges:
		key := in.Metadata.IssueKey
		if key == "" {
			return needParam(`Which issue should I look for? For example: "code changes for PROJ-42".`)
		}
		page, err := a.code.ListCommits(ctx, repo, branch, issueCommitsWindow)
		if err != nil {
			return err
		}
		matched := CommitsMentioning(page.Values, key)
		ans.results = len(matched)
		if len(matched) == 0 {
			ans.markdown = fmt.Sprintf("No recent commits in %s mention %s.", repo, key)
			return nil
		}
		ans.markdown = a.format.Commits(fmt.Sprintf("Commits in %s for %s", repo, key), matched, v)

	case domain.BitbucketCommitDiff:
		stat, err := a.code.GetCommitDiff(ctx, repo, in.Metadata.Commit)
		if err != nil {
			return err
		}
		ans.results = len(stat.Files)
		ans.markdown = a.format.DiffStat(repo, stat, v)

	default:
		return fmt.Errorf("assistant: unhandled code-host intent %q", in.Name)
	}
	return nil
}

// CommitsMentioning keeps the commits whose message names key, ignoring
// case. The key must stand alone, so PROJ-4 does not match PROJ-42.
func CommitsMentioning(commits []bitbucket.Commit, key string) []bitbucket.Commit {
	key = strings.ToUpper(key)
	var out []bitbucket.Commit
	for _, c := range commits {
		msg := strings.ToUpper(c.Message)
		for i := strings.Index(msg, key); i >= 0; {
			end := i + len(key)
			if (i == 0 || !isKeyChar(msg[i-1])) && (end == len(msg) || !isDigit(msg[end])) {
				out = append(out, c)
				break
			}
			next := strings.Index(msg[i+1:], key)
			if next < 0 {
				break
			}
			i += next + 1
		}
	}
	return out
}

func isKeyChar(b byte) bool {
	return b >= 'A' && b <= 'Z' || isDigit(b)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
