// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// subprocess calls. Commit hashes and ref names from HTTP requests and CLI
// arguments end up as git arguments; validating them first prevents argument
// injection and path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// hashPattern matches abbreviated or full commit hashes (SHA-1 or SHA-256).
var hashPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)

// refPattern matches the conservative subset of ref names we accept:
// branch and tag names, HEAD, and relative suffixes like ~2 or ^.
var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/~^-]{0,254}$`)

// ValidateCommitHash validates a commit hash before it is passed to git.
//
// Valid hashes are 4-64 hexadecimal characters. Anything else (flags,
// ranges, ref expressions) is rejected.
//
// Example:
//
//	if err := validation.ValidateCommitHash(hash); err != nil {
//	    return nil, fmt.Errorf("invalid commit: %w", err)
//	}
//	// Safe to use as a git argument
func ValidateCommitHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("commit hash cannot be empty")
	}
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("invalid commit hash: %q (must be 4-64 hex characters)", hash)
	}
	return nil
}

// ValidateRef validates a branch, tag, or ref expression before it is
// passed to git.
//
// The accepted grammar is stricter than git's own: no leading hyphen (so
// a ref can never be parsed as a flag), no "..", no leading slash or
// dot. HEAD, v1.2.0, release/2025.1, and main~3 all pass.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("invalid ref: %q (range syntax is not a single ref)", ref)
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("invalid ref format: %q", ref)
	}
	return nil
}

// ValidateRepositoryPath rejects repository paths that could smuggle git
// flags. Path existence is the caller's concern; this only blocks values
// that are not plausible paths at all.
func ValidateRepositoryPath(path string) error {
	if path == "" {
		return fmt.Errorf("repository path cannot be empty")
	}
	if strings.HasPrefix(path, "-") {
		return fmt.Errorf("invalid repository path: %q (must not begin with a hyphen)", path)
	}
	return nil
}
