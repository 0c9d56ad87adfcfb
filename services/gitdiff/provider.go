// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitdiff reads commit diffs and metadata out of local Git
// repositories by shelling out to the git binary.
package gitdiff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianRegress/pkg/validation"
	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// CommitInfo is the metadata of one commit.
type CommitInfo struct {
	Hash        string    `json:"hash"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject"`
	Parents     []string  `json:"parents"`
}

// Provider reads diffs from local repositories via the git CLI.
//
// # Description
//
// Each call shells out to git with the repository as the working
// directory and a context-bound command, so a cancelled analysis also
// kills its git child process. All failures surface as
// *engine.GitAccessError carrying the repository path and commit hash.
//
// # Thread Safety
//
// Safe for concurrent use; git invocations are independent processes.
type Provider struct {
	log *slog.Logger
}

// NewProvider creates a Provider. A nil logger falls back to
// slog.Default().
func NewProvider(log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{log: log.With(slog.String("component", "gitdiff"))}
}

// GetDiff returns the unified diff of one commit against its first
// parent, parsed into per-file hunks.
//
// # Inputs
//
//   - ctx: Must not be nil. Cancellation kills the git process.
//   - repoPath: Absolute path of the repository working tree.
//   - commitHash: Full or abbreviated commit hash.
//
// # Outputs
//
//   - []engine.DiffHunk: One entry per hunk. Root commits diff against
//     the empty tree.
//   - error: *engine.GitAccessError on any git or parse failure.
func (p *Provider) GetDiff(ctx context.Context, repoPath, commitHash string) ([]engine.DiffHunk, error) {
	if ctx == nil {
		return nil, engine.ErrNilContext
	}
	if err := validateTarget(repoPath, commitHash); err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: commitHash, Err: err}
	}

	out, err := runGit(ctx, repoPath, "show", "--format=", "--unified=3", "--no-color", commitHash)
	if err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: commitHash, Err: err}
	}

	hunks, err := parseUnifiedDiff(out)
	if err != nil {
		return nil, &engine.GitAccessError{
			RepositoryPath: repoPath,
			CommitHash:     commitHash,
			Err:            fmt.Errorf("parse diff: %w", err),
		}
	}
	p.log.Debug("diff retrieved", "commit", commitHash, "hunks", len(hunks))
	return hunks, nil
}

// GetCommitInfo returns the metadata of one commit.
func (p *Provider) GetCommitInfo(ctx context.Context, repoPath, commitHash string) (CommitInfo, error) {
	if ctx == nil {
		return CommitInfo{}, engine.ErrNilContext
	}
	if err := validateTarget(repoPath, commitHash); err != nil {
		return CommitInfo{}, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: commitHash, Err: err}
	}

	out, err := runGit(ctx, repoPath, "show", "-s",
		"--format=%H%x00%an%x00%ae%x00%at%x00%s%x00%P", commitHash)
	if err != nil {
		return CommitInfo{}, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: commitHash, Err: err}
	}

	info, err := parseCommitInfo(out)
	if err != nil {
		return CommitInfo{}, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: commitHash, Err: err}
	}
	return info, nil
}

// ListCommitRange returns the hashes between from (exclusive) and to
// (inclusive) in chronological order.
func (p *Provider) ListCommitRange(ctx context.Context, repoPath, from, to string) ([]string, error) {
	if ctx == nil {
		return nil, engine.ErrNilContext
	}
	if err := validation.ValidateRepositoryPath(repoPath); err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, Err: err}
	}
	if err := validation.ValidateRef(from); err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: from, Err: err}
	}
	if err := validation.ValidateRef(to); err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: to, Err: err}
	}

	out, err := runGit(ctx, repoPath, "rev-list", "--reverse", from+".."+to)
	if err != nil {
		return nil, &engine.GitAccessError{RepositoryPath: repoPath, CommitHash: to, Err: err}
	}

	var hashes []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			hashes = append(hashes, line)
		}
	}
	return hashes, nil
}

// validateTarget rejects repoPath and commitHash values that could be
// interpreted as git flags or revision expressions before they reach
// the subprocess.
func validateTarget(repoPath, commitHash string) error {
	if err := validation.ValidateRepositoryPath(repoPath); err != nil {
		return err
	}
	return validation.ValidateCommitHash(commitHash)
}
