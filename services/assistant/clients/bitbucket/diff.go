// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bitbucket

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// File change kinds.
const (
	FileAdded    = "added"
	FileDeleted  = "deleted"
	FileRenamed  = "renamed"
	FileModified = "modified"
)

// FileChange is one file's line counts in a commit diff.
type FileChange struct {
	Path    string
	OldPath string
	Kind    string
	Added   int
	Deleted int
	Binary  bool
}

// DiffStat summarizes a commit.
type DiffStat struct {
	Hash    string
	Files   []FileChange
	Added   int
	Deleted int
}

// GetCommitDiff fetches the unified diff of one commit against its parent
// and summarizes it per file.
func (c *Client) GetCommitDiff(ctx context.Context, repo, hash string) (*DiffStat, error) {
	raw, err := c.transport.GetText(ctx, "GetCommitDiff", c.repoPath(repo, "diff", hash), nil)
	if err != nil {
		return nil, err
	}
	stat, err := ParseDiffStat(raw)
	if err != nil {
		return nil, err
	}
	stat.Hash = hash
	return stat, nil
}

// ParseDiffStat counts added and deleted lines per file in a git-style
// multi-file diff. A changed line counts once on each side.
func ParseDiffStat(raw string) (*DiffStat, error) {
	files, err := diff.ParseMultiFileDiff([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: parsing diff: %w", serviceName, err)
	}
	out := &DiffStat{Files: make([]FileChange, 0, len(files))}
	for _, fd := range files {
		st := fd.Stat()
		fc := FileChange{
			OldPath: stripPrefix(fd.OrigName),
			Path:    stripPrefix(fd.NewName),
			Added:   int(st.Added + st.Changed),
			Deleted: int(st.Deleted + st.Changed),
			Binary:  len(fd.Hunks) == 0 && isBinary(fd.Extended),
		}
		switch {
		case fd.OrigName == "/dev/null" || hasHeader(fd.Extended, "new file mode"):
			fc.Kind = FileAdded
		case fd.NewName == "/dev/null" || hasHeader(fd.Extended, "deleted file mode"):
			fc.Kind = FileDeleted
			fc.Path = fc.OldPath
		case fc.OldPath != "" && fc.Path != "" && fc.OldPath != fc.Path:
			fc.Kind = FileRenamed
		default:
			fc.Kind = FileModified
		}
		if fc.Path == "" {
			fc.Path = pathFromGitHeader(fd.Extended)
		}
		out.Added += fc.Added
		out.Deleted += fc.Deleted
		out.Files = append(out.Files, fc)
	}
	return out, nil
}

// stripPrefix removes git's a/ and b/ prefixes; /dev/null becomes "".
func stripPrefix(name string) string {
	switch {
	case name == "" || name == "/dev/null":
		return ""
	case strings.HasPrefix(name, "a/"), strings.HasPrefix(name, "b/"):
		return name[2:]
	}
	return name
}

func hasHeader(ext []string, prefix string) bool {
	for _, h := range ext {
		if strings.HasPrefix(h, prefix) {
			return true
		}
	}
	return false
}

func isBinary(ext []string) bool {
	for _, h := range ext {
		if strings.HasPrefix(h, "Binary files") || strings.HasPrefix(h, "GIT binary patch") {
			return true
		}
	}
	return false
}

// pathFromGitHeader reads the path of a diff with no ---/+++ lines, such
// as a binary or mode-only change.
func pathFromGitHeader(ext []string) string {
	for _, h := range ext {
		if rest, ok := strings.CutPrefix(h, "diff --git "); ok {
			if _, b, found := strings.Cut(rest, " b/"); found {
				return b
			}
		}
	}
	return ""
}
