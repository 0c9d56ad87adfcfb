// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitdiff

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// runGit executes a git subcommand inside repoPath.
func runGit(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("git %s: %w: %s",
				strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// parseUnifiedDiff converts raw `git show` output into engine hunks.
// Binary files produce no hunks and are skipped.
func parseUnifiedDiff(raw []byte) ([]engine.DiffHunk, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []engine.DiffHunk{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, err
	}

	hunks := make([]engine.DiffHunk, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		path := stripDiffPrefix(fd.NewName)
		if path == "" || path == "/dev/null" {
			path = stripDiffPrefix(fd.OrigName)
		}
		for _, h := range fd.Hunks {
			oldContent, newContent := splitHunkBody(h.Body)
			hunks = append(hunks, engine.DiffHunk{
				FilePath: path,
				OldRange: engine.LineRange{
					Start: int(h.OrigStartLine),
					Lines: int(h.OrigLines),
				},
				NewRange: engine.LineRange{
					Start: int(h.NewStartLine),
					Lines: int(h.NewLines),
				},
				OldContent: oldContent,
				NewContent: newContent,
			})
		}
	}
	return hunks, nil
}

// stripDiffPrefix removes the a/ or b/ marker git puts on diff paths.
func stripDiffPrefix(name string) string {
	if len(name) > 2 && (name[:2] == "a/" || name[:2] == "b/") {
		return name[2:]
	}
	return name
}

// splitHunkBody separates a hunk body into the old-side and new-side
// text. Context lines appear on both sides.
func splitHunkBody(body []byte) (string, string) {
	var oldLines, newLines []string
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case '-':
			oldLines = append(oldLines, line[1:])
		case '+':
			newLines = append(newLines, line[1:])
		case '\\':
			// "\ No newline at end of file" marker.
		default:
			text := line
			if text[0] == ' ' {
				text = text[1:]
			}
			oldLines = append(oldLines, text)
			newLines = append(newLines, text)
		}
	}
	return strings.Join(oldLines, "\n"), strings.Join(newLines, "\n")
}

// parseCommitInfo parses the NUL-separated `git show -s` format used by
// GetCommitInfo.
func parseCommitInfo(raw []byte) (CommitInfo, error) {
	fields := strings.Split(strings.TrimSpace(string(raw)), "\x00")
	if len(fields) < 6 {
		return CommitInfo{}, fmt.Errorf("malformed commit metadata: %d fields", len(fields))
	}

	epoch, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("parse commit timestamp %q: %w", fields[3], err)
	}

	var parents []string
	if p := strings.TrimSpace(fields[5]); p != "" {
		parents = strings.Fields(p)
	}
	return CommitInfo{
		Hash:        fields[0],
		Author:      fields[1],
		AuthorEmail: fields[2],
		Timestamp:   time.Unix(epoch, 0).UTC(),
		Subject:     fields[4],
		Parents:     parents,
	}, nil
}
