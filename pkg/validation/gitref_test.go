// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import "testing"

func TestValidateCommitHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{"full sha1", "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2", false},
		{"abbreviated", "abc1234", false},
		{"minimum length", "dead", false},
		{"uppercase hex", "DEADBEEF", false},
		{"empty", "", true},
		{"too short", "abc", true},
		{"flag injection", "--upload-pack=/bin/sh", true},
		{"ref expression", "HEAD~1", true},
		{"non-hex", "not-a-hash", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommitHash(tt.hash)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommitHash(%q) error = %v, wantErr %v", tt.hash, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"branch", "main", false},
		{"tag", "v1.2.0", false},
		{"slash branch", "release/2025.1", false},
		{"HEAD", "HEAD", false},
		{"relative", "main~3", false},
		{"empty", "", true},
		{"leading hyphen", "-rf", true},
		{"range syntax", "main..feature", true},
		{"leading dot", ".hidden", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRepositoryPath(t *testing.T) {
	if err := ValidateRepositoryPath("/repos/demo"); err != nil {
		t.Errorf("valid path rejected: %v", err)
	}
	if err := ValidateRepositoryPath(""); err == nil {
		t.Error("empty path accepted")
	}
	if err := ValidateRepositoryPath("--git-dir=/etc"); err == nil {
		t.Error("flag-shaped path accepted")
	}
}
