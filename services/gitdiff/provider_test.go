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
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianRegress/services/engine"
)

// These never touch git: invalid arguments must be rejected before the
// subprocess is spawned, so no repository is needed.

func TestGetDiffRejectsFlagShapedHash(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.GetDiff(context.Background(), "/tmp/repo", "--upload-pack=/bin/sh")
	if err == nil {
		t.Fatal("expected error for flag-shaped commit hash")
	}
	var gitErr *engine.GitAccessError
	if !errors.As(err, &gitErr) {
		t.Fatalf("error type = %T, want *engine.GitAccessError", err)
	}
}

func TestGetCommitInfoRejectsFlagShapedHash(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.GetCommitInfo(context.Background(), "/tmp/repo", "-v")
	if err == nil {
		t.Fatal("expected error for flag-shaped commit hash")
	}
}

func TestGetDiffRejectsFlagShapedRepoPath(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.GetDiff(context.Background(), "--work-tree=/", "abcd1234")
	if err == nil {
		t.Fatal("expected error for flag-shaped repository path")
	}
}

func TestListCommitRangeRejectsRangeExpression(t *testing.T) {
	p := NewProvider(nil)
	// A ref containing ".." would change the meaning of the rev-list range.
	_, err := p.ListCommitRange(context.Background(), "/tmp/repo", "main..evil", "HEAD")
	if err == nil {
		t.Fatal("expected error for ref containing range operator")
	}
}

func TestProviderNilContext(t *testing.T) {
	p := NewProvider(nil)
	if _, err := p.GetDiff(nil, "/tmp/repo", "abcd1234"); !errors.Is(err, engine.ErrNilContext) { //nolint:staticcheck
		t.Errorf("GetDiff nil ctx err = %v, want ErrNilContext", err)
	}
	if _, err := p.ListCommitRange(nil, "/tmp/repo", "a1b2c3d4", "HEAD"); !errors.Is(err, engine.ErrNilContext) { //nolint:staticcheck
		t.Errorf("ListCommitRange nil ctx err = %v, want ErrNilContext", err)
	}
}
